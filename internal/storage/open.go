package storage

import (
	"context"
	"fmt"

	logx "paydigest/pkg/logx"
)

// Open connects to the configured database and verifies the connection.
// The schema is not touched; call Migrate first.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := d.open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := ping(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}
	log.Debug("storage opened", logx.String("driver", d.name))
	return newSQLStore(db, d, log), nil
}
