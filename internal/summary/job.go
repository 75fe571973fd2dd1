package summary

import (
	"context"
	"time"

	"github.com/google/uuid"

	logx "paydigest/pkg/logx"
)

// Report is the outcome of one daily run.
type Report struct {
	RunID    string
	Result   Result
	Sweep    SweepResult
	SweepErr error
	Took     time.Duration
}

// Job is the daily batch: summarize yesterday, then sweep.
type Job struct {
	agg   *Aggregator
	sweep *Sweeper
	loc   *time.Location
	log   logx.Logger
	now   func() time.Time
}

func NewJob(agg *Aggregator, sweep *Sweeper, loc *time.Location, log logx.Logger) *Job {
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{agg: agg, sweep: sweep, loc: loc, log: log, now: time.Now}
}

// Yesterday returns the calendar day before now in loc.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return startOfDay(now, loc).AddDate(0, 0, -1)
}

// Run summarizes yesterday and always runs the retention sweep afterwards.
// The returned error is the summary's storage error, if any; sweep errors are
// only reported.
func (j *Job) Run(ctx context.Context) (Report, error) {
	start := j.now()
	rep := Report{RunID: uuid.NewString()}
	log := j.log.With(logx.String("run_id", rep.RunID))
	log.Info("daily run started", logx.String("day", Yesterday(start, j.loc).Format("2006-01-02")))

	agg := *j.agg
	agg.log = agg.log.With(logx.String("run_id", rep.RunID))
	res, err := agg.Summarize(ctx, Yesterday(start, j.loc))
	rep.Result = res

	sw := *j.sweep
	sw.log = sw.log.With(logx.String("run_id", rep.RunID))
	rep.Sweep, rep.SweepErr = sw.Sweep(ctx, start)

	rep.Took = j.now().Sub(start)
	log.Info("daily run finished",
		logx.String("day", res.Day),
		logx.String("outcome", res.Outcome.String()),
		logx.Int("attempts", res.Delivery.Attempts),
		logx.Int64("swept_payments", rep.Sweep.Payments),
		logx.Int64("swept_summaries", rep.Sweep.Summaries),
		logx.Duration("took", rep.Took),
	)
	return rep, err
}
