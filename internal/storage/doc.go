package storage

// Package storage is the event store and summary store.
//
// It runs on database/sql over three engines:
//   - sqlite (modernc.org/sqlite, default)
//   - mysql (go-sql-driver/mysql)
//   - postgres (pgx stdlib)
//
// Schema changes live in migrations/<dialect> and are applied by Migrate.
