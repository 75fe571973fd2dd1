package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"paydigest/internal/payment"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// DayLayout is the text form of a summary date.
const DayLayout = "2006-01-02"

// Config configures storage.
//
// Driver values:
//   - "sqlite": Path is the database file
//   - "mysql", "postgres": network database
type Config struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Params   string

	BusyTimeout     time.Duration // sqlite only; 0 means 5s
	ConnectTimeout  time.Duration // 0 means 10s
	MaxOpenConns    int           // network drivers; 0 means 10
	ConnMaxLifetime time.Duration
}

// DailySummary is one stored digest. TelegramSent is zero until delivery succeeds.
type DailySummary struct {
	Date              string
	TotalTransactions int
	TotalAmount       decimal.Decimal
	Message           string
	TelegramSent      time.Time
}

func (s DailySummary) Sent() bool { return !s.TelegramSent.IsZero() }

// Store is the persistence API used by the ingestor, the aggregator and the sweeper.
//
// Inserts are insert-if-absent: created=false means the key (payment id or date)
// already existed and nothing was written.
type Store interface {
	InsertPayment(ctx context.Context, ev payment.Event) (created bool, err error)
	// DayTotals counts payments with from <= create_time < to and sums their amounts.
	DayTotals(ctx context.Context, from, to time.Time) (count int, sum decimal.Decimal, err error)
	DeletePaymentsBefore(ctx context.Context, t time.Time) (int64, error)

	SummaryExists(ctx context.Context, day string) (bool, error)
	InsertSummary(ctx context.Context, s DailySummary) (created bool, err error)
	// MarkSent sets telegram_sent only if it is still null.
	MarkSent(ctx context.Context, day string, at time.Time) error
	GetSummary(ctx context.Context, day string) (DailySummary, error)
	ListSummaries(ctx context.Context, limit int) ([]DailySummary, error)
	DeleteSummariesBefore(ctx context.Context, day string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
