package stats

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/components"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func countRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func TestRun_WritesEveryCounter(t *testing.T) {
	projDB, projMock := newMock(t)
	compDB, compMock := newMock(t)
	alertDB, alertMock := newMock(t)
	advDB, advMock := newMock(t)
	settingsDB, settingsMock := newMock(t)

	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects$").WillReturnRows(countRows(10))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE status").
		WithArgs(projects.StatusActive).WillReturnRows(countRows(6))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE status").
		WithArgs(projects.StatusInactive).WillReturnRows(countRows(3))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE status").
		WithArgs(projects.StatusArchived).WillReturnRows(countRows(1))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE type").
		WithArgs(projects.TypeServer).WillReturnRows(countRows(2))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE type").
		WithArgs(projects.TypeGroup).WillReturnRows(countRows(1))
	projMock.ExpectQuery("SELECT count\\(\\*\\) FROM projects WHERE type").
		WithArgs(projects.TypeContainer).WillReturnRows(countRows(7))

	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components$").WillReturnRows(countRows(100))
	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components WHERE category").
		WithArgs(string(catalogue.ProgrammingLanguage)).WillReturnRows(countRows(5))
	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components c").WillReturnRows(countRows(20))

	alertMock.ExpectQuery("SELECT count\\(DISTINCT d.component_ref\\)").
		WithArgs(alertstore.StateVulnerable).WillReturnRows(countRows(15))

	advMock.ExpectQuery("SELECT count\\(\\*\\) FROM advisories$").WillReturnRows(countRows(42))

	settingsMock.MatchExpectationsInOrder(false)
	for i := 0; i < 13; i++ {
		settingsMock.ExpectExec("INSERT INTO settings").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	r := New(projects.New(projDB), components.New(compDB, nil), alertstore.New(alertDB), advisories.New(advDB), settings.New(settingsDB), nil)
	err := r.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, projMock.ExpectationsWereMet())
	require.NoError(t, compMock.ExpectationsWereMet())
	require.NoError(t, alertMock.ExpectationsWereMet())
	require.NoError(t, advMock.ExpectationsWereMet())
	require.NoError(t, settingsMock.ExpectationsWereMet())
}

func TestDependencyStatistics_SecureNeverNegative(t *testing.T) {
	projDB, _ := newMock(t)
	compDB, compMock := newMock(t)
	alertDB, alertMock := newMock(t)
	advDB, _ := newMock(t)
	settingsDB, settingsMock := newMock(t)
	settingsMock.MatchExpectationsInOrder(false)

	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components$").WillReturnRows(countRows(5))
	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components WHERE category").
		WithArgs(string(catalogue.ProgrammingLanguage)).WillReturnRows(countRows(1))
	compMock.ExpectQuery("SELECT count\\(\\*\\) FROM components c").WillReturnRows(countRows(0))

	alertMock.ExpectQuery("SELECT count\\(DISTINCT d.component_ref\\)").
		WithArgs(alertstore.StateVulnerable).WillReturnRows(countRows(9))

	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeyStatsDependenciesTotal), string(settings.TypeStatistics), "5").
		WillReturnResult(sqlmock.NewResult(0, 1))
	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeyStatsDependenciesLanguages), string(settings.TypeStatistics), "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeyStatsDependenciesSecure), string(settings.TypeStatistics), "0").
		WillReturnResult(sqlmock.NewResult(0, 1))
	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeyStatsDependenciesInsecure), string(settings.TypeStatistics), "9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeyStatsDependenciesUnused), string(settings.TypeStatistics), "0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := New(projects.New(projDB), components.New(compDB, nil), alertstore.New(alertDB), advisories.New(advDB), settings.New(settingsDB), nil)
	err := r.dependencyStatistics(context.Background())
	require.NoError(t, err)
	require.NoError(t, compMock.ExpectationsWereMet())
	require.NoError(t, alertMock.ExpectationsWereMet())
	require.NoError(t, settingsMock.ExpectationsWereMet())
}
