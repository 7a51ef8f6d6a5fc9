// Package migrate wraps golang-migrate/migrate so the daemon can bring a
// fresh or existing database up to the current schema before any store
// package touches it.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Config controls how migrations are located and applied.
//
// Schema migrations are written in PostgreSQL dialect and target the
// server's system-of-record database. A sqlite-backed DatabaseConfig (the
// agent's local default) never runs this package; the agent holds no
// migrated schema of its own.
type Config struct {
	// Timeout bounds the whole migration run, not each individual statement.
	Timeout time.Duration
}

// Manager drives golang-migrate against an already-open *sql.DB.
type Manager struct {
	db       *sql.DB
	cfg      Config
	migrator *migrate.Migrate
}

// New builds a Manager. It does not touch the database until Init, Up or Version is called.
func New(db *sql.DB, cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Manager{db: db, cfg: cfg}
}

// Init builds the underlying migrator from the embedded SQL source.
func (m *Manager) Init() error {
	source, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(m.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	m.migrator = migrator
	return nil
}

// Up applies every pending migration, bounded by cfg.Timeout.
func (m *Manager) Up(ctx context.Context) error {
	if m.migrator == nil {
		if err := m.Init(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := m.migrator.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("migration timed out after %s", m.cfg.Timeout)
	}
}

// Version reports the current schema version and whether it is dirty
// (a previous migration failed partway through and needs manual repair).
func (m *Manager) Version() (version uint, dirty bool, err error) {
	if m.migrator == nil {
		if err := m.Init(); err != nil {
			return 0, false, err
		}
	}
	version, dirty, err = m.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Sources lists the embedded migration filenames, mainly for diagnostics.
func Sources() ([]string, error) {
	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
