// Package advisories is the local mirror of the upstream vulnerability
// database: one row per CVE/GHSA/etc. ID, with a metadata sidecar for
// description/cvss/urls. Per spec §3 and §4.6.
package advisories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// Severity is the advisory's worst reported rating.
type Severity string

const (
	SeverityCritical      Severity = "Critical"
	SeverityHigh          Severity = "High"
	SeverityMedium        Severity = "Medium"
	SeverityLow           Severity = "Low"
	SeverityInformational Severity = "Informational"
	SeverityUnmaintained  Severity = "Unmaintained"
	SeverityMalware       Severity = "Malware"
	SeverityUnknown       Severity = "Unknown"
)

// Source is the upstream feed an advisory was learned from.
type Source string

const (
	SourceNVD       Source = "NVD"
	SourceGHAD      Source = "GHAD"
	SourceAlpineSec Source = "AlpineSecDB"
	SourceUnknown   Source = "Unknown"
)

// Advisory is one vulnerability record.
type Advisory struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Source    Source    `db:"source"`
	Severity  Severity  `db:"severity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store provides the Advisory Store operations.
type Store struct {
	db *sqlx.DB
}

// New builds a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Upsert finds or creates an advisory by its unique name, updating its
// severity/source on every sighting (unlike components, advisories are
// refreshed in place as the upstream feed is re-synced).
func (s *Store) Upsert(ctx context.Context, name string, source Source, severity Severity) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO advisories (name, source, severity) VALUES ($1, $2, $3)
         ON CONFLICT (name) DO UPDATE SET source = EXCLUDED.source, severity = EXCLUDED.severity,
             updated_at = now()
         RETURNING id`,
		name, source, severity)
	if err != nil {
		return 0, errs.Database("advisories", fmt.Errorf("upsert advisory %s: %w", name, err))
	}
	return id, nil
}

// Get fetches an advisory by its unique name.
func (s *Store) Get(ctx context.Context, name string) (*Advisory, error) {
	var a Advisory
	err := s.db.GetContext(ctx, &a, `SELECT * FROM advisories WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("advisory", name)
		}
		return nil, errs.Database("advisories", fmt.Errorf("get advisory: %w", err))
	}
	return &a, nil
}

// SetMetadataIfAbsent writes a metadata key only if it is not already set,
// per spec §4.7's "attach metadata if the advisory row lacks those keys".
func (s *Store) SetMetadataIfAbsent(ctx context.Context, advisoryRef int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advisory_metadata (advisory_ref, key, value) VALUES ($1, $2, $3)
         ON CONFLICT (advisory_ref, key) DO NOTHING`,
		advisoryRef, key, value)
	if err != nil {
		return errs.Database("advisories", fmt.Errorf("set metadata %s: %w", key, err))
	}
	return nil
}

// HasMetadata reports whether a metadata key is already present.
func (s *Store) HasMetadata(ctx context.Context, advisoryRef int64, key string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM advisory_metadata WHERE advisory_ref = $1 AND key = $2)`,
		advisoryRef, key)
	if err != nil {
		return false, errs.Database("advisories", fmt.Errorf("check metadata %s: %w", key, err))
	}
	return exists, nil
}

// CountTotal returns the number of advisories currently tracked, feeding the
// Statistics Rollup's stats.advisories.total.
func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM advisories`); err != nil {
		return 0, errs.Database("advisories", fmt.Errorf("count total: %w", err))
	}
	return n, nil
}

// SourceFromRecordSource maps an upstream grype-db record_source string onto
// the internal Source enum via prefix rules, per spec §4.6.
func SourceFromRecordSource(recordSource string) Source {
	switch {
	case strings.HasPrefix(recordSource, "nvdv2:"), strings.HasPrefix(recordSource, "nvd:"):
		return SourceNVD
	case strings.HasPrefix(recordSource, "github:github:"), strings.HasPrefix(recordSource, "github:"):
		return SourceGHAD
	case strings.HasPrefix(recordSource, "vulnerabilities:alpine:"):
		return SourceAlpineSec
	default:
		return SourceUnknown
	}
}
