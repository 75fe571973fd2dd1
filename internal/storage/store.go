package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paydigest/internal/payment"
	logx "paydigest/pkg/logx"
)

type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger

	insertPaymentQ string
	insertSummaryQ string
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{
		db:  db,
		d:   d,
		log: log,
		insertPaymentQ: d.bind(d.ignoreConflict(
			`INSERT INTO payments(payment_id, status, amount, currency, create_time) VALUES(?,?,?,?,?)`,
			"payment_id")),
		insertSummaryQ: d.bind(d.ignoreConflict(
			`INSERT INTO daily_summaries(date, total_transactions, total_amount, daily_summary_message) VALUES(?,?,?,?)`,
			"date")),
	}
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) InsertPayment(ctx context.Context, ev payment.Event) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.insertPaymentQ,
		ev.PaymentID, ev.Status, ev.Amount.String(), ev.Currency, s.d.timeArg(ev.CreateTime))
	if err != nil {
		return false, fmt.Errorf("insert payment %s: %w", ev.PaymentID, err)
	}
	return affected(res)
}

func (s *sqlStore) DayTotals(ctx context.Context, from, to time.Time) (int, decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.bind(`SELECT amount FROM payments WHERE create_time >= ? AND create_time < ?`),
		s.d.timeArg(from), s.d.timeArg(to))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("day totals: %w", err)
	}
	defer rows.Close()

	// Summed here rather than with SUM(): SQLite would hand back a float.
	count := 0
	sum := decimal.Zero
	for rows.Next() {
		var amt decimal.Decimal
		if err := rows.Scan(&amt); err != nil {
			return 0, decimal.Zero, fmt.Errorf("day totals: scan: %w", err)
		}
		sum = sum.Add(amt)
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, decimal.Zero, fmt.Errorf("day totals: %w", err)
	}
	return count, sum, nil
}

func (s *sqlStore) DeletePaymentsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.d.bind(`DELETE FROM payments WHERE create_time < ?`), s.d.timeArg(t))
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqlStore) SummaryExists(ctx context.Context, day string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.d.bind(`SELECT 1 FROM daily_summaries WHERE date = ?`), day).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("summary exists %s: %w", day, err)
	}
	return true, nil
}

func (s *sqlStore) InsertSummary(ctx context.Context, sum DailySummary) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.insertSummaryQ,
		sum.Date, sum.TotalTransactions, sum.TotalAmount.StringFixed(2), sum.Message)
	if err != nil {
		return false, fmt.Errorf("insert summary %s: %w", sum.Date, err)
	}
	return affected(res)
}

func (s *sqlStore) MarkSent(ctx context.Context, day string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.d.bind(`UPDATE daily_summaries SET telegram_sent = ? WHERE date = ? AND telegram_sent IS NULL`),
		s.d.timeArg(at), day)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", day, err)
	}
	return nil
}

const summaryCols = `date, total_transactions, total_amount, daily_summary_message, telegram_sent`

func (s *sqlStore) GetSummary(ctx context.Context, day string) (DailySummary, error) {
	row := s.db.QueryRowContext(ctx, s.d.bind(`SELECT `+summaryCols+` FROM daily_summaries WHERE date = ?`), day)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DailySummary{}, ErrNotFound
	}
	if err != nil {
		return DailySummary{}, fmt.Errorf("get summary %s: %w", day, err)
	}
	return sum, nil
}

func (s *sqlStore) ListSummaries(ctx context.Context, limit int) ([]DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		s.d.bind(`SELECT `+summaryCols+` FROM daily_summaries ORDER BY date DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list summaries: scan: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteSummariesBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.d.bind(`DELETE FROM daily_summaries WHERE date < ?`), day)
	if err != nil {
		return 0, fmt.Errorf("delete summaries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (DailySummary, error) {
	var (
		day  dayText
		sum  DailySummary
		sent nullTime
	)
	if err := r.Scan(&day, &sum.TotalTransactions, &sum.TotalAmount, &sum.Message, &sent); err != nil {
		return DailySummary{}, err
	}
	sum.Date = day.Day
	sum.TelegramSent = sent.Time
	return sum, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
