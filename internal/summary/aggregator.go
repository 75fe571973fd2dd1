package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paydigest/internal/notifier"
	"paydigest/internal/storage"
	logx "paydigest/pkg/logx"
)

// Outcome is what Summarize did for a day.
type Outcome int

const (
	// OutcomeSkipped: a summary for the day already existed; nothing was sent.
	OutcomeSkipped Outcome = iota
	// OutcomeSent: stored, delivered and marked sent.
	OutcomeSent
	// OutcomeNotSent: stored, delivery failed; telegram_sent stays null.
	OutcomeNotSent
	// OutcomeFailed: storage failed before the summary was stored; nothing was sent.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSent:
		return "sent"
	case OutcomeNotSent:
		return "not_sent"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Store is the storage the aggregator needs.
type Store interface {
	SummaryExists(ctx context.Context, day string) (bool, error)
	DayTotals(ctx context.Context, from, to time.Time) (int, decimal.Decimal, error)
	InsertSummary(ctx context.Context, s storage.DailySummary) (bool, error)
	MarkSent(ctx context.Context, day string, at time.Time) error
}

// Deliverer is satisfied by *notifier.Service.
type Deliverer interface {
	Deliver(ctx context.Context, text string) notifier.Delivery
}

type Config struct {
	Location *time.Location
	Rounding Rounding
}

// Result describes one Summarize call.
type Result struct {
	Day      string
	Outcome  Outcome
	Count    int
	Total    decimal.Decimal
	Message  string
	Delivery notifier.Delivery
}

type Aggregator struct {
	cfg    Config
	store  Store
	notify Deliverer
	log    logx.Logger
	now    func() time.Time
}

func NewAggregator(cfg Config, store Store, notify Deliverer, log logx.Logger) *Aggregator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{cfg: cfg, store: store, notify: notify, log: log, now: time.Now}
}

// Summarize builds, stores and delivers the digest for the calendar day that
// contains day (in the configured location).
//
// A day is summarized at most once: an existing row short-circuits, and a
// concurrent run that loses the insert also reports OutcomeSkipped. The
// returned error is non-nil only for storage failures.
func (a *Aggregator) Summarize(ctx context.Context, day time.Time) (Result, error) {
	from := startOfDay(day, a.cfg.Location)
	to := from.AddDate(0, 0, 1)
	res := Result{Day: from.Format(storage.DayLayout)}
	log := a.log.With(logx.String("day", res.Day))

	exists, err := a.store.SummaryExists(ctx, res.Day)
	if err != nil {
		res.Outcome = OutcomeFailed
		log.Error("summary lookup failed", logx.Err(err))
		return res, err
	}
	if exists {
		res.Outcome = OutcomeSkipped
		log.Debug("summary already exists")
		return res, nil
	}

	res.Count, res.Total, err = a.store.DayTotals(ctx, from, to)
	if err != nil {
		res.Outcome = OutcomeFailed
		log.Error("aggregation failed", logx.Err(err))
		return res, err
	}
	res.Total = a.cfg.Rounding.Round(res.Total)
	res.Message = RenderMessage(res.Day, res.Count, res.Total, a.cfg.Rounding)

	created, err := a.store.InsertSummary(ctx, storage.DailySummary{
		Date:              res.Day,
		TotalTransactions: res.Count,
		TotalAmount:       res.Total,
		Message:           res.Message,
	})
	if err != nil {
		res.Outcome = OutcomeFailed
		log.Error("summary not stored; delivery skipped", logx.Err(err))
		return res, err
	}
	if !created {
		res.Outcome = OutcomeSkipped
		log.Info("summary stored by a concurrent run")
		return res, nil
	}
	log.Info("summary stored", logx.Int("count", res.Count), logx.Stringer("total", res.Total))

	res.Delivery = a.notify.Deliver(ctx, res.Message)
	if !res.Delivery.OK {
		res.Outcome = OutcomeNotSent
		log.Warn("summary stored but not delivered", logx.Int("attempts", res.Delivery.Attempts), logx.Err(res.Delivery.Err))
		return res, nil
	}

	res.Outcome = OutcomeSent
	if err := a.store.MarkSent(ctx, res.Day, a.now()); err != nil {
		log.Error("summary delivered but not marked sent", logx.Err(err))
		return res, err
	}
	return res, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
