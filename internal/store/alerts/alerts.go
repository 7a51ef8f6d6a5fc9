// Package alerts is the (snapshot, dependency, advisory) finding store and
// its state machine, per spec §3 (Alert) and §4.7/§4.8.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// State is the alert's lifecycle state.
type State string

const (
	StateVulnerable State = "Vulnerable"
	StateSecure     State = "Secure"
	StateUnfixable  State = "Unfixable"
)

// Alert is one finding row.
type Alert struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	State         State     `db:"state"`
	SnapshotRef   int64     `db:"snapshot_ref"`
	DependencyRef int64     `db:"dependency_ref"`
	AdvisoryRef   int64     `db:"advisory_ref"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// AlertWithSeverity is an Alert joined with its advisory's severity, for
// the Alert Calculator's per-severity grouping.
type AlertWithSeverity struct {
	Alert
	Severity string `db:"severity"`
}

// Store provides the Alert finding store operations.
type Store struct {
	db *sqlx.DB
}

// New builds a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Upsert finds or creates an alert for (snapshot, dependency, advisory),
// always setting its state to Vulnerable — re-ingestion reopens rather than
// duplicates, per spec §3's Alert invariant.
func (s *Store) Upsert(ctx context.Context, name string, snapshotRef, dependencyRef, advisoryRef int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO alerts (name, state, snapshot_ref, dependency_ref, advisory_ref)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (snapshot_ref, dependency_ref, advisory_ref)
         DO UPDATE SET state = $2, updated_at = now()
         RETURNING id`,
		name, StateVulnerable, snapshotRef, dependencyRef, advisoryRef)
	if err != nil {
		return 0, errs.Database("alerts", fmt.Errorf("upsert alert %s: %w", name, err))
	}
	return id, nil
}

// MarkSecureExcept transitions every Vulnerable alert of a snapshot, other
// than those in keepIDs, to Secure. This is the "alerts no longer observed
// this run" half of spec §4.7's matcher loop.
func (s *Store) MarkSecureExcept(ctx context.Context, snapshotRef int64, keepIDs []int64) error {
	query := `UPDATE alerts SET state = $1, updated_at = now()
              WHERE snapshot_ref = $2 AND state = $3`
	args := []any{StateSecure, snapshotRef, StateVulnerable}

	if len(keepIDs) > 0 {
		query += " AND id NOT IN ("
		for i, id := range keepIDs {
			if i > 0 {
				query += ", "
			}
			query += fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		query += ")"
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errs.Database("alerts", fmt.Errorf("mark secure: %w", err))
	}
	return nil
}

// CountDistinctInsecureComponents returns the number of distinct components
// currently named by a Vulnerable alert, across every snapshot — feeding the
// Statistics Rollup's stats.dependencies.insecure.
func (s *Store) CountDistinctInsecureComponents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
        SELECT count(DISTINCT d.component_ref)
        FROM alerts a
        JOIN dependencies d ON d.id = a.dependency_ref
        WHERE a.state = $1`, StateVulnerable)
	if err != nil {
		return 0, errs.Database("alerts", fmt.Errorf("count insecure components: %w", err))
	}
	return n, nil
}

// ListVulnerable returns every Vulnerable alert of a snapshot, joined with
// its advisory's severity — input to the Alert Calculator (spec §4.8).
func (s *Store) ListVulnerable(ctx context.Context, snapshotRef int64) ([]AlertWithSeverity, error) {
	var out []AlertWithSeverity
	err := s.db.SelectContext(ctx, &out, `
        SELECT a.*, adv.severity AS severity
        FROM alerts a
        JOIN advisories adv ON adv.id = a.advisory_ref
        WHERE a.snapshot_ref = $1 AND a.state = $2`,
		snapshotRef, StateVulnerable)
	if err != nil {
		return nil, errs.Database("alerts", fmt.Errorf("list vulnerable: %w", err))
	}
	return out, nil
}
