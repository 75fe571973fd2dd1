package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout keeps timestamps lexically ordered so range filters work on TEXT.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// dialect captures what differs between engines: how to connect,
// placeholder style, insert-if-absent syntax and timestamp arguments.
type dialect struct {
	name string

	numbered bool // $1, $2 instead of ?

	// ignoreConflict turns "INSERT INTO t(cols) VALUES(...)" into an insert
	// that silently skips rows whose key column already exists.
	ignoreConflict func(insert, key string) string

	open func(cfg Config) (*sql.DB, error)
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return dialect{
			name:           "sqlite",
			ignoreConflict: onConflictDoNothing,
			open:           openSQLite,
		}, nil
	case "mysql":
		return dialect{
			name: "mysql",
			ignoreConflict: func(insert, key string) string {
				return insert + " ON DUPLICATE KEY UPDATE " + key + " = " + key
			},
			open: openMySQL,
		}, nil
	case "postgres", "postgresql", "pgx":
		return dialect{
			name:           "postgres",
			numbered:       true,
			ignoreConflict: onConflictDoNothing,
			open:           openPostgres,
		}, nil
	default:
		return dialect{}, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

func onConflictDoNothing(insert, key string) string {
	return insert + " ON CONFLICT(" + key + ") DO NOTHING"
}

// bind rewrites ? placeholders for engines that number them.
func (d dialect) bind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeArg encodes a timestamp argument. SQLite gets UTC text; the network
// drivers take time.Time and store it as UTC.
func (d dialect) timeArg(t time.Time) any {
	if d.name == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func openSQLite(cfg Config) (*sql.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func openMySQL(cfg Config) (*sql.DB, error) {
	mc, err := mysqlConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	poolLimits(db, cfg)
	return db, nil
}

func mysqlConfig(cfg Config) (*mysql.Config, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = connectTimeout(cfg)
	if p := strings.TrimSpace(cfg.Params); p != "" {
		vals, err := url.ParseQuery(p)
		if err != nil {
			return nil, fmt.Errorf("storage params: %w", err)
		}
		mc.Params = map[string]string{}
		for k := range vals {
			// Duplicate detection reads 0 affected rows from an unchanged upsert.
			if strings.EqualFold(k, "clientFoundRows") {
				continue
			}
			mc.Params[k] = vals.Get(k)
		}
	}
	return mc, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: strings.TrimSpace(cfg.Params),
	}
	pc, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pc.ConnectTimeout = connectTimeout(cfg)

	db := stdlib.OpenDB(*pc)
	poolLimits(db, cfg)
	return db, nil
}

func connectTimeout(cfg Config) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return 10 * time.Second
}

func poolLimits(db *sql.DB, cfg Config) {
	n := cfg.MaxOpenConns
	if n <= 0 {
		n = 10
	}
	db.SetMaxOpenConns(n)
	db.SetMaxIdleConns(n)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// ping verifies the connection within the connect timeout.
func ping(ctx context.Context, db *sql.DB, cfg Config) error {
	pctx, cancel := context.WithTimeout(ctx, connectTimeout(cfg))
	defer cancel()
	return db.PingContext(pctx)
}
