package summary

import (
	"context"
	"errors"
	"time"

	"paydigest/internal/storage"
	logx "paydigest/pkg/logx"
)

const DefaultRetentionDays = 730

type RetentionStore interface {
	DeletePaymentsBefore(ctx context.Context, t time.Time) (int64, error)
	DeleteSummariesBefore(ctx context.Context, day string) (int64, error)
}

type SweepConfig struct {
	Days     int
	Location *time.Location
}

type SweepResult struct {
	Cutoff    string
	Payments  int64
	Summaries int64
}

// Sweeper deletes payments and summaries older than the retention horizon.
type Sweeper struct {
	cfg   SweepConfig
	store RetentionStore
	log   logx.Logger
}

func NewSweeper(cfg SweepConfig, store RetentionStore, log logx.Logger) *Sweeper {
	if cfg.Days <= 0 {
		cfg.Days = DefaultRetentionDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{cfg: cfg, store: store, log: log}
}

// Sweep removes rows dated before (today - Days). Rows on the cutoff day stay.
// Both deletes are attempted; failures are logged and joined.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	cutoff := startOfDay(now, s.cfg.Location).AddDate(0, 0, -s.cfg.Days)
	res := SweepResult{Cutoff: cutoff.Format(storage.DayLayout)}
	log := s.log.With(logx.String("cutoff", res.Cutoff))

	var errs []error
	n, err := s.store.DeletePaymentsBefore(ctx, cutoff)
	if err != nil {
		log.Error("payment cleanup failed", logx.Err(err))
		errs = append(errs, err)
	}
	res.Payments = n

	n, err = s.store.DeleteSummariesBefore(ctx, res.Cutoff)
	if err != nil {
		log.Error("summary cleanup failed", logx.Err(err))
		errs = append(errs, err)
	}
	res.Summaries = n

	if len(errs) == 0 {
		log.Info("retention sweep done", logx.Int64("payments", res.Payments), logx.Int64("summaries", res.Summaries))
	}
	return res, errors.Join(errs...)
}
