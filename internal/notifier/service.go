package notifier

import (
	"context"
	"fmt"
	"time"

	logx "paydigest/pkg/logx"
)

const (
	defaultMaxAttempts   = 3
	defaultRetryInterval = 5 * time.Second
	defaultSendTimeout   = 10 * time.Second
)

type Service struct {
	cfg    Config
	sender Sender
	log    logx.Logger
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryInterval < 0 {
		cfg.RetryInterval = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Service{cfg: cfg, sender: sender, log: log}
}

// DefaultConfig returns the stock delivery policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   defaultMaxAttempts,
		RetryInterval: defaultRetryInterval,
		SendTimeout:   defaultSendTimeout,
	}
}

// Deliver sends text, retrying at a fixed interval until it succeeds or
// MaxAttempts is reached. There is no wait after the last attempt.
// Cancelling ctx during a wait ends delivery as failed.
func (s *Service) Deliver(ctx context.Context, text string) Delivery {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if s.sender == nil {
		s.log.Error("delivery skipped", logx.Err(ErrNoSender))
		return Delivery{Err: ErrNoSender}
	}

	maxAttempts := s.cfg.MaxAttempts
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := s.sender.Send(callCtx, text)
		cancel()
		if err == nil {
			s.log.Info("summary delivered", logx.Int("attempt", attempt), logx.Duration("took", time.Since(start)))
			return Delivery{OK: true, Attempts: attempt, Took: time.Since(start)}
		}
		lastErr = err
		s.log.Warn("delivery attempt failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		if s.cfg.RetryInterval <= 0 {
			continue
		}
		t := time.NewTimer(s.cfg.RetryInterval)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			lastErr = fmt.Errorf("retry wait: %w (last send error: %v)", ctx.Err(), lastErr)
			s.log.Error("delivery abandoned", logx.Err(lastErr), logx.Int("attempts", attempt))
			return Delivery{Attempts: attempt, Err: lastErr, Took: time.Since(start)}
		}
	}

	s.log.Error("delivery failed", logx.Err(lastErr), logx.Int("attempts", maxAttempts))
	return Delivery{Attempts: maxAttempts, Err: lastErr, Took: time.Since(start)}
}
