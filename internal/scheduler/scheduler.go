// Package scheduler fires the daily job from inside a long-running process.
//
// One cron entry is registered. Overlapping fires are skipped, so a slow
// delivery cannot stack a second run on top of the first.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "paydigest/pkg/logx"
)

// Parser accepts 5- or 6-field expressions and descriptors such as "@daily".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Spec     string
	Location *time.Location
	// Timeout bounds a single run; zero means no limit.
	Timeout     time.Duration
	HistorySize int
}

// Job is the unit the scheduler fires.
type Job func(ctx context.Context) error

type HistoryItem struct {
	Started  time.Time
	Duration time.Duration
	Error    string
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	sched cron.Schedule
	job   Job

	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

// New parses the cron expression eagerly so a bad one fails at startup.
func New(cfg Config, job Job, log logx.Logger) (*Service, error) {
	if job == nil {
		return nil, errors.New("scheduler: nil job")
	}
	cfg.Spec = strings.TrimSpace(cfg.Spec)
	sched, err := Parser.Parse(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", cfg.Spec, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 30
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sched: sched, job: job, log: log}, nil
}

// Start is idempotent. Runs inherit ctx; cancelling it aborts an in-flight run.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(Parser),
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.c.Schedule(s.sched, cron.FuncJob(s.fire))
	s.c.Start()

	s.log.Info("scheduler started",
		logx.String("spec", s.cfg.Spec),
		logx.String("tz", s.cfg.Location.String()),
		logx.Time("next", s.sched.Next(time.Now().In(s.cfg.Location))),
	)
}

// Stop prevents new fires and waits for an in-flight run, up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; cancelling run")
		cancel()
		<-stopped.Done()
	}
	cancel()
	s.log.Info("scheduler stopped")
}

// Next returns the next fire time after now.
func (s *Service) Next(now time.Time) time.Time {
	return s.sched.Next(now.In(s.cfg.Location))
}

// History returns the most recent runs, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

// RunNow fires the job synchronously, outside the cron clock.
func (s *Service) RunNow(ctx context.Context) error {
	return s.exec(ctx)
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_ = s.exec(ctx)
}

func (s *Service) exec(ctx context.Context) error {
	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.job(runCtx)
	item := HistoryItem{Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("scheduled run failed", logx.Duration("took", item.Duration), logx.Err(err))
	} else {
		s.log.Info("scheduled run ok", logx.Duration("took", item.Duration))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
	return err
}

// cronLogger routes cron's own messages into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
