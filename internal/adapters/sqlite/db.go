// Package sqlite is the single-file job store used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"riskscan/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path, enables WAL and foreign keys
// and applies the embedded migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	// busy_timeout and foreign_keys are per connection, so they ride on the DSN.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistErr("open sqlite", err)
	}
	if _, err := sqlDB.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		sqlDB.Close()
		return nil, persistErr("enable WAL", err)
	}

	db := &DB{DB: sqlDB}
	if _, err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies pending migrations and returns the versions it ran.
func (db *DB) Migrate(ctx context.Context) ([]int64, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, persistErr("migrate", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

// Ping reports whether the database file is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
