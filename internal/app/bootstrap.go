package app

import (
	"context"
	"fmt"

	"paydigest/internal/config"
	"paydigest/internal/notifier"
	"paydigest/internal/storage"
	"paydigest/internal/summary"
	"paydigest/internal/transport/telegram"
	logx "paydigest/pkg/logx"
)

// NewLogger builds the process logger. Callers own the returned Service and
// must Close it.
func NewLogger(cfg *config.Config) (*logx.Service, logx.Logger) {
	return logx.New(mapLoggingConfig(cfg))
}

// Migrate applies pending schema migrations.
func Migrate(ctx context.Context, cfg *config.Config, log logx.Logger) (storage.MigrateResult, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return storage.MigrateResult{}, err
	}
	return storage.Migrate(ctx, sc, log.With(logx.String("comp", "migrate")))
}

// OpenStore makes sure the schema exists, then connects.
func OpenStore(ctx context.Context, cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := storage.Migrate(ctx, sc, log.With(logx.String("comp", "migrate"))); err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))
	return st, nil
}

// newSender returns nil when Telegram is not configured; delivery then fails
// with notifier.ErrNoSender and the summary stays unsent.
func newSender(cfg *config.Config, log logx.Logger) (notifier.Sender, error) {
	if !cfg.TelegramReady() {
		log.Warn("telegram not configured; summaries will be stored but not delivered")
		return nil, nil
	}
	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	s, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return s, nil
}

// NewJob wires aggregator, notifier and sweeper over store.
func NewJob(cfg *config.Config, store storage.Store, log logx.Logger) (*summary.Job, error) {
	sumCfg, err := mapSummaryConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := newSender(cfg, log)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")))

	agg := summary.NewAggregator(sumCfg, store, notif, log.With(logx.String("comp", "aggregator")))
	sweep := summary.NewSweeper(summary.SweepConfig{
		Days:     cfg.Retention.Days,
		Location: sumCfg.Location,
	}, store, log.With(logx.String("comp", "retention")))
	return summary.NewJob(agg, sweep, sumCfg.Location, log.With(logx.String("comp", "job"))), nil
}

// RunDaily runs the daily job once against a fresh connection and closes it.
// The error is non-nil when the database is unreachable or the summary could
// not be persisted; delivery failures are not errors.
func RunDaily(ctx context.Context, cfg *config.Config, log logx.Logger) (summary.Report, error) {
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return summary.Report{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("storage close failed", logx.Err(cerr))
		}
	}()

	job, err := NewJob(cfg, store, log)
	if err != nil {
		return summary.Report{}, err
	}
	rep, err := job.Run(ctx)
	if err != nil {
		return rep, fmt.Errorf("daily run %s: %w", rep.Result.Day, err)
	}
	return rep, nil
}
