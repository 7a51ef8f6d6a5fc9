package advisorydb

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewFromSqlx(sqlx.NewDb(mockDB, "sqlite3")), mock
}

func TestFindByPackageName_ReturnsRows(t *testing.T) {
	db, mock := newTestDB(t)
	ctx := context.Background()

	cols := []string{"pk", "id", "package_name", "namespace", "package_qualifiers",
		"version_constraint", "version_format", "cpes", "related_vulnerabilities",
		"fixed_in_versions", "fix_state", "advisories"}
	mock.ExpectQuery("SELECT \\* FROM vulnerability WHERE package_name").
		WithArgs("openssl").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			1, "CVE-2024-0001", "openssl", "nvd:cpe", nil,
			"<3.0.1", "semver", nil, nil, nil, "fixed", nil))

	out, err := db.FindByPackageName(ctx, "openssl")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "CVE-2024-0001", out[0].ID)
}

func TestMetadata_RoutesCVEToNVDCPENamespace(t *testing.T) {
	db, mock := newTestDB(t)
	ctx := context.Background()

	cols := []string{"id", "namespace", "data_source", "record_source", "severity", "urls", "description", "cvss"}
	mock.ExpectQuery("SELECT \\* FROM vulnerability_metadata WHERE id = \\? AND namespace = \\?").
		WithArgs("CVE-2024-0001", "nvd:cpe").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"CVE-2024-0001", "nvd:cpe", "nvd", "nvdv2:cpe", "Critical", nil, "desc", nil))

	m, err := db.Metadata(ctx, "CVE-2024-0001")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, advisories.SourceNVD, m.Source())
}

func TestMetadata_RoutesGHSAToGithubNamespaceLike(t *testing.T) {
	db, mock := newTestDB(t)
	ctx := context.Background()

	cols := []string{"id", "namespace", "data_source", "record_source", "severity", "urls", "description", "cvss"}
	mock.ExpectQuery("SELECT \\* FROM vulnerability_metadata WHERE id = \\? AND namespace LIKE \\?").
		WithArgs("GHSA-xxxx-yyyy-zzzz", "github:%").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"GHSA-xxxx-yyyy-zzzz", "github:python", "github", "github:github:python", "High", nil, "desc", nil))

	m, err := db.Metadata(ctx, "GHSA-xxxx-yyyy-zzzz")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, advisories.SourceGHAD, m.Source())
}

func TestMetadata_UnsupportedIDReturnsNil(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	m, err := db.Metadata(ctx, "ALPINE-123")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestMetadata_NotFoundReturnsNilNoError(t *testing.T) {
	db, mock := newTestDB(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM vulnerability_metadata WHERE id = \\? AND namespace = \\?").
		WithArgs("CVE-9999-9999", "nvd:cpe").
		WillReturnError(sql.ErrNoRows)

	m, err := db.Metadata(ctx, "CVE-9999-9999")
	require.NoError(t, err)
	require.Nil(t, m)
}
