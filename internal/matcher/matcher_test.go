package matcher

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/42ByteLabs/konarr-core/internal/advisorydb"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	"github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

func newMockSqlx(t *testing.T, driver string) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, driver), mock
}

func TestRun_MatchesUpsertsAndClosesUnconfirmed(t *testing.T) {
	ctx := context.Background()

	grypeDB, grypeMock := newMockSqlx(t, "sqlite3")
	advDB, advMock := newMockSqlx(t, "postgres")
	alertDB, alertMock := newMockSqlx(t, "postgres")

	advStore := advisories.New(advDB)
	alertStore := alerts.New(alertDB)
	db := advisorydb.NewFromSqlx(grypeDB)

	m := New(db, advStore, alertStore, nil)

	dep := snapshots.Dependency{
		ID:               2,
		ComponentRef:     1,
		ComponentName:    "openssl",
		ComponentManager: "generic",
		Version:          "1.5.0",
	}

	vulnCols := []string{"pk", "id", "package_name", "namespace", "package_qualifiers",
		"version_constraint", "version_format", "cpes", "related_vulnerabilities",
		"fixed_in_versions", "fix_state", "advisories"}
	grypeMock.ExpectQuery("SELECT \\* FROM vulnerability WHERE package_name").
		WithArgs("openssl").
		WillReturnRows(sqlmock.NewRows(vulnCols).AddRow(
			1, "CVE-2024-0001", "openssl", "nvd:cpe", nil,
			"<2.0.0", "semver", nil, nil, nil, "fixed", nil))

	metaCols := []string{"id", "namespace", "data_source", "record_source", "severity", "urls", "description", "cvss"}
	grypeMock.ExpectQuery("SELECT \\* FROM vulnerability_metadata WHERE id = \\? AND namespace = \\?").
		WithArgs("CVE-2024-0001", "nvd:cpe").
		WillReturnRows(sqlmock.NewRows(metaCols).AddRow(
			"CVE-2024-0001", "nvd:cpe", "nvd", "nvdv2:cpe", "Critical", "https://example.test/cve", "a bad bug", nil))

	advMock.ExpectQuery("INSERT INTO advisories").
		WithArgs("CVE-2024-0001", advisories.SourceNVD, advisories.SeverityCritical).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	for i := 0; i < 3; i++ {
		advMock.ExpectQuery("SELECT EXISTS").WillReturnRows(
			sqlmock.NewRows([]string{"exists"}).AddRow(false))
		advMock.ExpectExec("INSERT INTO advisory_metadata").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	alertMock.ExpectQuery("INSERT INTO alerts").
		WithArgs("CVE-2024-0001", alerts.StateVulnerable, int64(5), int64(2), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)))

	alertMock.ExpectExec("UPDATE alerts SET state").
		WithArgs(alerts.StateSecure, int64(5), alerts.StateVulnerable, int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.Run(ctx, 5, []snapshots.Dependency{dep})
	require.NoError(t, err)

	require.NoError(t, grypeMock.ExpectationsWereMet())
	require.NoError(t, advMock.ExpectationsWereMet())
	require.NoError(t, alertMock.ExpectationsWereMet())
}

func TestRun_SkipsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	grypeDB, grypeMock := newMockSqlx(t, "sqlite3")
	advDB, _ := newMockSqlx(t, "postgres")
	alertDB, alertMock := newMockSqlx(t, "postgres")

	m := New(advisorydb.NewFromSqlx(grypeDB), advisories.New(advDB), alerts.New(alertDB), nil)

	dep := snapshots.Dependency{ID: 1, ComponentName: "foo", Version: "0.0.0"}

	alertMock.ExpectExec("UPDATE alerts SET state").
		WithArgs(alerts.StateSecure, int64(7), alerts.StateVulnerable).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.Run(ctx, 7, []snapshots.Dependency{dep})
	require.NoError(t, err)
	require.NoError(t, grypeMock.ExpectationsWereMet())
	require.NoError(t, alertMock.ExpectationsWereMet())
}
