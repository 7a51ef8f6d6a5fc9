// Package snapshots is the immutable scan-record store: snapshot rows, their
// metadata sidecar, and their dependency links. The ingestion pipeline that
// writes them lives in internal/ingest. Per spec §4.4.
package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// State is the snapshot lifecycle state, per spec §3.
type State string

const (
	StateCreated    State = "Created"
	StateProcessing State = "Processing"
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
	StateStale      State = "Stale"
)

// Snapshot is one SBOM ingestion record.
type Snapshot struct {
	ID        int64     `db:"id"`
	State     State     `db:"state"`
	SBOMBytes []byte    `db:"sbom_bytes"`
	Error     *string   `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store provides the Snapshot Store operations.
type Store struct {
	db *sqlx.DB
}

// New builds a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateEmpty inserts a fresh snapshot in the Created state.
func (s *Store) CreateEmpty(ctx context.Context) (*Snapshot, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO snapshots (state) VALUES ($1) RETURNING id`, StateCreated)
	if err != nil {
		return nil, errs.Database("snapshots", fmt.Errorf("create empty snapshot: %w", err))
	}
	return s.Get(ctx, id)
}

// Get fetches a snapshot by surrogate key.
func (s *Store) Get(ctx context.Context, id int64) (*Snapshot, error) {
	var snap Snapshot
	if err := s.db.GetContext(ctx, &snap, `SELECT * FROM snapshots WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("snapshot", fmt.Sprintf("%d", id))
		}
		return nil, errs.Database("snapshots", fmt.Errorf("get snapshot: %w", err))
	}
	return &snap, nil
}

// AttachBOM stores raw bytes against a snapshot and moves it back to Created
// (ready for ingestion), per spec §4.4.
func (s *Store) AttachBOM(ctx context.Context, snapshotID int64, bom []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET sbom_bytes = $1, state = $2, updated_at = now() WHERE id = $3`,
		bom, StateCreated, snapshotID)
	if err != nil {
		return errs.Database("snapshots", fmt.Errorf("attach bom: %w", err))
	}
	return nil
}

// FindByBomSHA returns the id of a snapshot whose bom.sha metadata equals
// sha, and whether one was found. The snapshot's state is not checked.
func (s *Store) FindByBomSHA(ctx context.Context, sha string) (int64, bool, error) {
	var snapshotRef int64
	err := s.db.GetContext(ctx, &snapshotRef,
		`SELECT snapshot_ref FROM snapshot_metadata WHERE key = 'bom.sha' AND value = $1 LIMIT 1`, sha)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errs.Database("snapshots", fmt.Errorf("find by bom sha: %w", err))
	}
	return snapshotRef, true, nil
}

// SetMetadata upserts one metadata row, per spec §4.4's "(snapshot_ref, key)
// is unique" invariant.
func (s *Store) SetMetadata(ctx context.Context, snapshotID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_metadata (snapshot_ref, key, value) VALUES ($1, $2, $3)
         ON CONFLICT (snapshot_ref, key) DO UPDATE SET value = EXCLUDED.value`,
		snapshotID, key, value)
	if err != nil {
		return errs.Database("snapshots", fmt.Errorf("set metadata %s: %w", key, err))
	}
	return nil
}

// GetMetadata reads one metadata value, returning ("", false) if absent.
func (s *Store) GetMetadata(ctx context.Context, snapshotID int64, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM snapshot_metadata WHERE snapshot_ref = $1 AND key = $2`, snapshotID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errs.Database("snapshots", fmt.Errorf("get metadata %s: %w", key, err))
	}
	return value, true, nil
}

// AllMetadata reads every metadata row for a snapshot as a map.
func (s *Store) AllMetadata(ctx context.Context, snapshotID int64) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT key, value FROM snapshot_metadata WHERE snapshot_ref = $1`, snapshotID)
	if err != nil {
		return nil, errs.Database("snapshots", fmt.Errorf("list metadata: %w", err))
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errs.Database("snapshots", fmt.Errorf("scan metadata row: %w", err))
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Transition moves a snapshot to a new state, bumping updated_at and
// optionally recording an error.
func (s *Store) Transition(ctx context.Context, snapshotID int64, newState State, errMsg *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET state = $1, error = $2, updated_at = now() WHERE id = $3`,
		newState, errMsg, snapshotID)
	if err != nil {
		return errs.Database("snapshots", fmt.Errorf("transition snapshot: %w", err))
	}
	return nil
}

// SupersedeEarlierCompleted marks every previously Completed snapshot of a
// project (other than the given one) as Stale, preserving spec §3's "at
// most one Completed, not-superseded snapshot per project" invariant.
func (s *Store) SupersedeEarlierCompleted(ctx context.Context, projectID, keepSnapshotID int64) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE snapshots SET state = $1, updated_at = now()
        WHERE state = $2 AND id != $3 AND id IN (
            SELECT snapshot_ref FROM project_snapshots WHERE project_ref = $4
        )`,
		StateStale, StateCompleted, keepSnapshotID, projectID)
	if err != nil {
		return errs.Database("snapshots", fmt.Errorf("supersede earlier completed: %w", err))
	}
	return nil
}

// UpsertDependency links a snapshot to a component version, idempotently.
func (s *Store) UpsertDependency(ctx context.Context, snapshotID, componentRef, componentVersionRef int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO dependencies (snapshot_ref, component_ref, component_version_ref)
         VALUES ($1, $2, $3)
         ON CONFLICT (snapshot_ref, component_ref, component_version_ref)
         DO UPDATE SET snapshot_ref = EXCLUDED.snapshot_ref
         RETURNING id`,
		snapshotID, componentRef, componentVersionRef)
	if err != nil {
		return 0, errs.Database("snapshots", fmt.Errorf("upsert dependency: %w", err))
	}
	return id, nil
}

// Dependency is a (snapshot, component, version) link, joined with its
// component's name for matcher/alert consumption.
type Dependency struct {
	ID                  int64  `db:"id"`
	SnapshotRef         int64  `db:"snapshot_ref"`
	ComponentRef        int64  `db:"component_ref"`
	ComponentVersionRef int64  `db:"component_version_ref"`
	ComponentName       string `db:"component_name"`
	ComponentManager    string `db:"component_manager"`
	Version             string `db:"version"`
}

// FetchDependencies returns every dependency row for a snapshot, joined with
// the component name and resolved version string the matcher needs.
func (s *Store) FetchDependencies(ctx context.Context, snapshotID int64) ([]Dependency, error) {
	var out []Dependency
	err := s.db.SelectContext(ctx, &out, `
        SELECT d.id, d.snapshot_ref, d.component_ref, d.component_version_ref,
               c.name AS component_name, c.manager AS component_manager, cv.version AS version
        FROM dependencies d
        JOIN components c ON c.id = d.component_ref
        JOIN component_versions cv ON cv.id = d.component_version_ref
        WHERE d.snapshot_ref = $1`, snapshotID)
	if err != nil {
		return nil, errs.Database("snapshots", fmt.Errorf("fetch dependencies: %w", err))
	}
	return out, nil
}
