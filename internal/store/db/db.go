// Package db wraps the sqlx connection pool konarr-core stores are built on.
//
// Per spec §5, store operations acquire a connection, run one or more
// queries, and release — no implicit transaction is held open across an I/O
// boundary, so a long-running task (the matcher over thousands of
// dependencies) never pins a pooled handle while it awaits unrelated work.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	// Postgres driver, registered for the lib/pq DSN scheme.
	_ "github.com/lib/pq"
	// SQLite driver, used for single-node/agent-local deployments.
	_ "github.com/mattn/go-sqlite3"

	"github.com/42ByteLabs/konarr-core/internal/config"
)

// DB wraps a sqlx connection pool plus the driver name as configured.
// cmd/konarrd reads Driver to decide whether to run the Postgres migrations;
// the store packages do not read it and always issue Postgres-style SQL
// ($n placeholders, ON CONFLICT).
type DB struct {
	*sqlx.DB
	Driver string
}

// Open establishes the pool described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	conn, err := sqlx.ConnectContext(ctx, sqlxDriverName(driver), cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{DB: conn, Driver: driver}, nil
}

func sqlxDriverName(driver string) string {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return "sqlite3"
	}
}

// Conn borrows a single connection from the pool for the duration of fn,
// matching the "acquire, do the unit of work, release" discipline in spec §5.
func (d *DB) Conn(ctx context.Context, fn func(*sqlx.Conn) error) error {
	conn, err := d.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// sanitizeDSN removes credentials from a DSN before it is logged.
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	}
	if idx := strings.Index(dsn, "://"); idx != -1 {
		if at := strings.Index(dsn[idx:], "@"); at != -1 {
			return dsn[:idx+3] + "***:***" + dsn[idx+at:]
		}
	}
	return dsn
}
