package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logx "paydigest/pkg/logx"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrateResult reports the schema version after Migrate.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate brings the schema for cfg.Driver up to date.
//
// It uses its own connection: closing a migrate instance closes the
// underlying *sql.DB for every driver.
func Migrate(ctx context.Context, cfg Config, log logx.Logger) (MigrateResult, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return MigrateResult{}, err
	}
	db, err := d.open(cfg)
	if err != nil {
		return MigrateResult{}, fmt.Errorf("migrate: open %s: %w", d.name, err)
	}
	if err := ping(ctx, db, cfg); err != nil {
		_ = db.Close()
		return MigrateResult{}, fmt.Errorf("migrate: connect %s: %w", d.name, err)
	}

	var drv database.Driver
	switch d.name {
	case "sqlite":
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case "mysql":
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "postgres":
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	}
	if err != nil {
		_ = db.Close()
		return MigrateResult{}, fmt.Errorf("migrate: driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.name)
	if err != nil {
		_ = drv.Close()
		return MigrateResult{}, fmt.Errorf("migrate: source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, d.name, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return MigrateResult{}, fmt.Errorf("migrate: init: %w", err)
	}
	m.Log = migrateLogger{log: log}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("migrate close failed", logx.Any("source_err", srcErr), logx.Any("db_err", dbErr))
		}
	}()

	// Let ctx cancel a long migration.
	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	res := MigrateResult{}
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return res, fmt.Errorf("migrate: up: %w", err)
	default:
		res.Changed = true
	}

	v, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return res, fmt.Errorf("migrate: version: %w", verr)
	}
	res.Version, res.Dirty = v, dirty
	log.Info("schema ready", logx.String("driver", d.name), logx.Int64("version", int64(v)), logx.Bool("changed", res.Changed))
	return res, nil
}

type migrateLogger struct{ log logx.Logger }

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return l.log.Enabled(logx.LevelDebug) }
