// Package components is the deduplicating registry of package identities
// (manager, namespace, name) and their version rows, per spec §4.3.
package components

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/errs"
	"github.com/42ByteLabs/konarr-core/internal/purl"
)

// Component is a canonical package identity row.
type Component struct {
	ID        int64     `db:"id"`
	Manager   string    `db:"manager"`
	Namespace string    `db:"namespace"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Version is a specific version of a Component.
type Version struct {
	ID           int64     `db:"id"`
	ComponentRef int64     `db:"component_ref"`
	Version      string    `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
}

// Store provides the Component Store operations.
type Store struct {
	db  *sqlx.DB
	cat *catalogue.Catalogue
}

// New builds a Store. cat classifies components on first insert only — spec
// §4.3 forbids overwriting an already-resolved category on re-sighting.
func New(db *sqlx.DB, cat *catalogue.Catalogue) *Store {
	return &Store{db: db, cat: cat}
}

// UpsertComponent finds an existing (manager, namespace, name) row or
// inserts one, classifying it via the catalogue only on first insert.
func (s *Store) UpsertComponent(ctx context.Context, manager, namespace, name string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM components WHERE manager = $1 AND namespace = $2 AND name = $3`,
		manager, namespace, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errs.Database("components", fmt.Errorf("lookup component: %w", err))
	}

	category := string(s.cat.Classify(manager, namespace, name))
	err = s.db.GetContext(ctx, &id,
		`INSERT INTO components (manager, namespace, name, category)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (manager, namespace, name) DO UPDATE SET manager = EXCLUDED.manager
         RETURNING id`,
		manager, namespace, name, category)
	if err != nil {
		return 0, errs.Database("components", fmt.Errorf("insert component: %w", err))
	}
	return id, nil
}

// UpsertVersion finds or creates a (component_ref, version) row.
func (s *Store) UpsertVersion(ctx context.Context, componentRef int64, version string) (int64, error) {
	if version == "" {
		version = "0.0.0"
	}

	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM component_versions WHERE component_ref = $1 AND version = $2`,
		componentRef, version)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errs.Database("components", fmt.Errorf("lookup version: %w", err))
	}

	err = s.db.GetContext(ctx, &id,
		`INSERT INTO component_versions (component_ref, version)
         VALUES ($1, $2)
         ON CONFLICT (component_ref, version) DO UPDATE SET version = EXCLUDED.version
         RETURNING id`,
		componentRef, version)
	if err != nil {
		return 0, errs.Database("components", fmt.Errorf("insert version: %w", err))
	}
	return id, nil
}

// Get fetches a component by its surrogate key.
func (s *Store) Get(ctx context.Context, id int64) (*Component, error) {
	var c Component
	if err := s.db.GetContext(ctx, &c, `SELECT * FROM components WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("component", fmt.Sprintf("%d", id))
		}
		return nil, errs.Database("components", fmt.Errorf("get component: %w", err))
	}
	return &c, nil
}

// CountTotal returns the number of distinct component identities, feeding
// the Statistics Rollup's stats.dependencies.total.
func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM components`); err != nil {
		return 0, errs.Database("components", fmt.Errorf("count total: %w", err))
	}
	return n, nil
}

// CountByCategory returns the number of components classified under a given
// catalogue category, feeding stats.dependencies.languages.
func (s *Store) CountByCategory(ctx context.Context, category catalogue.Category) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM components WHERE category = $1`, string(category))
	if err != nil {
		return 0, errs.Database("components", fmt.Errorf("count by category: %w", err))
	}
	return n, nil
}

// CountUnused returns the number of components that have never appeared in
// any snapshot's dependency graph, feeding stats.dependencies.unused.
func (s *Store) CountUnused(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
        SELECT count(*) FROM components c
        WHERE NOT EXISTS (SELECT 1 FROM dependencies d WHERE d.component_ref = c.id)`)
	if err != nil {
		return 0, errs.Database("components", fmt.Errorf("count unused: %w", err))
	}
	return n, nil
}

// FromPURL parses a package URL, runs the catalogue, and returns fresh
// (unsaved) Component/Version values — it never touches the database.
func (s *Store) FromPURL(raw string) (Component, Version, error) {
	p, err := purl.Parse(raw)
	if err != nil {
		return Component{}, Version{}, errs.InvalidData(fmt.Sprintf("parse purl %q: %v", raw, err))
	}

	c := Component{
		Manager:   p.Type,
		Namespace: p.Namespace,
		Name:      p.Name,
		Category:  string(s.cat.Classify(p.Type, p.Namespace, p.Name)),
	}
	v := Version{Version: p.Version}
	return c, v, nil
}
