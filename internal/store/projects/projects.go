// Package projects is the hierarchical project tree store: groups, servers,
// containers, and applications arranged parent/child, each with a pointer to
// its latest snapshot. Per spec §4.5.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// Type is the project kind, per spec §3.
type Type string

const (
	TypeGroup       Type = "Group"
	TypeApplication Type = "Application"
	TypeServer      Type = "Server"
	TypeCluster     Type = "Cluster"
	TypeContainer   Type = "Container"
)

// Status is the project lifecycle state.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusArchived Status = "Archived"
)

// Project is one node of the reporting tree.
type Project struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Type        Type      `db:"type"`
	Status      Status    `db:"status"`
	ParentRef   int64     `db:"parent_ref"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Store provides the Project Store operations.
type Store struct {
	db *sqlx.DB
}

// New builds a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// FindOrCreate finds a project by its unique name, creating one of the given
// type/parent if absent.
func (s *Store) FindOrCreate(ctx context.Context, name string, typ Type, parentRef int64) (*Project, error) {
	p, err := s.GetByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	var id int64
	execErr := s.db.GetContext(ctx, &id,
		`INSERT INTO projects (name, type, status, parent_ref)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		name, typ, StatusActive, parentRef)
	if execErr != nil {
		return nil, errs.Database("projects", fmt.Errorf("insert project: %w", execErr))
	}
	return s.Get(ctx, id)
}

// Get fetches a project by surrogate key.
func (s *Store) Get(ctx context.Context, id int64) (*Project, error) {
	var p Project
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("project", fmt.Sprintf("%d", id))
		}
		return nil, errs.Database("projects", fmt.Errorf("get project: %w", err))
	}
	return &p, nil
}

// GetByName fetches a project by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Project, error) {
	var p Project
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE name = $1`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("project", name)
		}
		return nil, errs.Database("projects", fmt.Errorf("get project by name: %w", err))
	}
	return &p, nil
}

// ListFilter narrows List results. Zero values mean "no filter", including
// ExcludeArchived: archived projects are returned unless the caller sets it
// to true.
type ListFilter struct {
	Type            Type
	TopLevelOnly    bool
	ExcludeArchived bool
	Limit           int
	Offset          int
}

// List pages through projects matching filter.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Project, error) {
	query := `SELECT * FROM projects WHERE 1=1`
	var args []any
	argN := 1

	if filter.ExcludeArchived {
		query += fmt.Sprintf(" AND status != $%d", argN)
		args = append(args, StatusArchived)
		argN++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argN)
		args = append(args, filter.Type)
		argN++
	}
	if filter.TopLevelOnly {
		query += " AND parent_ref = 0"
	}
	query += " ORDER BY name"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	var out []*Project
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errs.Database("projects", fmt.Errorf("list projects: %w", err))
	}
	return out, nil
}

// FetchChildren returns the project's direct children only — no recursion,
// per spec §4.5.
func (s *Store) FetchChildren(ctx context.Context, projectID int64) ([]*Project, error) {
	var out []*Project
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM projects WHERE parent_ref = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, errs.Database("projects", fmt.Errorf("fetch children: %w", err))
	}
	return out, nil
}

// FetchLatestSnapshotID returns the max-id ProjectSnapshot link for a
// project, matching spec §4.5's "latest = max(id), never by timestamp" rule.
// Callers must not call this when they already hold an in-memory snapshots
// list for the project, to avoid double-fetching the same link.
func (s *Store) FetchLatestSnapshotID(ctx context.Context, projectID int64) (int64, error) {
	var snapshotRef int64
	err := s.db.GetContext(ctx, &snapshotRef,
		`SELECT snapshot_ref FROM project_snapshots WHERE project_ref = $1 ORDER BY id DESC LIMIT 1`,
		projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errs.NotFound("project_snapshot", fmt.Sprintf("project=%d", projectID))
		}
		return 0, errs.Database("projects", fmt.Errorf("fetch latest snapshot: %w", err))
	}
	return snapshotRef, nil
}

// AddSnapshot links a snapshot to a project. It never supersedes earlier
// links — monotonicity is entirely by link id, per spec §5.
func (s *Store) AddSnapshot(ctx context.Context, projectID, snapshotID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_snapshots (project_ref, snapshot_ref) VALUES ($1, $2)`,
		projectID, snapshotID)
	if err != nil {
		return errs.Database("projects", fmt.Errorf("add snapshot link: %w", err))
	}
	return nil
}

// Archive sets a project's status to Archived. Children are left untouched
// — archival is not cascaded, per spec §4.5.
func (s *Store) Archive(ctx context.Context, projectID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = $1, updated_at = now() WHERE id = $2`,
		StatusArchived, projectID)
	if err != nil {
		return errs.Database("projects", fmt.Errorf("archive project: %w", err))
	}
	return nil
}

// CountByStatus returns the number of projects currently in a given status,
// feeding the Statistics Rollup's stats.projects.{active,inactive,archived}.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM projects WHERE status = $1`, status)
	if err != nil {
		return 0, errs.Database("projects", fmt.Errorf("count by status: %w", err))
	}
	return n, nil
}

// CountByType returns the number of projects of a given type, feeding
// stats.projects.{servers,groups,containers}.
func (s *Store) CountByType(ctx context.Context, typ Type) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM projects WHERE type = $1`, typ)
	if err != nil {
		return 0, errs.Database("projects", fmt.Errorf("count by type: %w", err))
	}
	return n, nil
}

// CountTotal returns every project regardless of status or type.
func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM projects`); err != nil {
		return 0, errs.Database("projects", fmt.Errorf("count total: %w", err))
	}
	return n, nil
}
