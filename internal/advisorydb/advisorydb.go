// Package advisorydb reads the local Grype-style vulnerability.db mirror: a
// separate read-only SQLite file synced by internal/sync, distinct from the
// Postgres-resident internal/store/advisories and internal/store/alerts
// tables this core owns. Per spec §4.6/§4.7.
package advisorydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"

	"github.com/42ByteLabs/konarr-core/internal/errs"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
)

// Vulnerability is one row of the `vulnerability` table: a package name and
// the semver-style constraint that affects it.
type Vulnerability struct {
	PK                int64   `db:"pk"`
	ID                string  `db:"id"`
	PackageName       string  `db:"package_name"`
	Namespace         string  `db:"namespace"`
	PackageQualifiers *string `db:"package_qualifiers"`
	VersionConstraint string  `db:"version_constraint"`
	VersionFormat     string  `db:"version_format"`
	CPEs              *string `db:"cpes"`
	RelatedVulns      *string `db:"related_vulnerabilities"`
	FixedInVersions   *string `db:"fixed_in_versions"`
	FixState          string  `db:"fix_state"`
	Advisories        *string `db:"advisories"`
}

// Metadata is one row of the `vulnerability_metadata` table: the
// description/severity/CVSS/URLs for a given (id, namespace) pair.
type Metadata struct {
	ID           string  `db:"id"`
	Namespace    string  `db:"namespace"`
	DataSource   string  `db:"data_source"`
	RecordSource string  `db:"record_source"`
	Severity     string  `db:"severity"`
	URLs         *string `db:"urls"`
	Description  string  `db:"description"`
	CVSS         *string `db:"cvss"`
}

// Source maps this record's record_source onto the Advisory Store's Source
// enum, reusing the same prefix rules as internal/store/advisories.
func (m Metadata) Source() advisories.Source {
	return advisories.SourceFromRecordSource(m.RecordSource)
}

// BuildInfo is the single row of the `id` table: the database's build
// timestamp and schema version.
type BuildInfo struct {
	BuildTimestamp time.Time `db:"build_timestamp"`
	SchemaVersion  int       `db:"schema_version"`
}

// DB is a read-only handle onto an installed vulnerability.db.
type DB struct {
	db *sqlx.DB
}

// Open connects to a Grype-style vulnerability.db. path may be either the
// database file itself, or a directory containing "5/vulnerability.db" (the
// schema-version-5 layout internal/sync installs).
func Open(path string) (*DB, error) {
	dbFile := path
	if filepath.Ext(path) == "" {
		dbFile = filepath.Join(path, "5", "vulnerability.db")
	}

	conn, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbFile))
	if err != nil {
		return nil, errs.Database("advisorydb", fmt.Errorf("open %s: %w", dbFile, err))
	}
	return &DB{db: conn}, nil
}

// NewFromSqlx wraps an already-open connection, letting callers (tests,
// connection-pool-aware callers) supply their own *sqlx.DB instead of going
// through Open.
func NewFromSqlx(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// BuildInfo reads the database's single `id` row.
func (d *DB) BuildInfo(ctx context.Context) (*BuildInfo, error) {
	var info BuildInfo
	err := d.db.GetContext(ctx, &info, `SELECT build_timestamp, schema_version FROM id LIMIT 1`)
	if err != nil {
		return nil, errs.Database("advisorydb", fmt.Errorf("build info: %w", err))
	}
	return &info, nil
}

// FindByPackageName returns every vulnerability row naming this package,
// manager-agnostic (the upstream grype-db schema carries no package manager
// column, per the Open Question decision recorded in DESIGN.md).
func (d *DB) FindByPackageName(ctx context.Context, packageName string) ([]Vulnerability, error) {
	var out []Vulnerability
	err := d.db.SelectContext(ctx, &out,
		`SELECT * FROM vulnerability WHERE package_name = ?`, packageName)
	if err != nil {
		return nil, errs.Database("advisorydb", fmt.Errorf("find by package name %s: %w", packageName, err))
	}
	return out, nil
}

// Metadata looks up a vulnerability's metadata row by ID, routing to the
// right namespace per spec §4.6: CVE- IDs are looked up under "nvd:cpe",
// GHSA- IDs under any "github:"-prefixed namespace. IDs that match neither
// prefix are not supported and return (nil, nil).
func (d *DB) Metadata(ctx context.Context, vulnID string) (*Metadata, error) {
	var query string
	var args []any

	switch {
	case strings.HasPrefix(vulnID, "CVE-"):
		query = `SELECT * FROM vulnerability_metadata WHERE id = ? AND namespace = ? LIMIT 1`
		args = []any{vulnID, "nvd:cpe"}
	case strings.HasPrefix(vulnID, "GHSA-"):
		query = `SELECT * FROM vulnerability_metadata WHERE id = ? AND namespace LIKE ? LIMIT 1`
		args = []any{vulnID, "github:%"}
	default:
		return nil, nil
	}

	var m Metadata
	err := d.db.GetContext(ctx, &m, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Database("advisorydb", fmt.Errorf("metadata %s: %w", vulnID, err))
	}
	return &m, nil
}
