package alerts

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

var fixtureTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestRun_SkipsWhenSecurityDisabled(t *testing.T) {
	settingsDB, settingsMock := newMock(t)
	projDB, _ := newMock(t)
	snapDB, _ := newMock(t)
	alertDB, _ := newMock(t)

	settingsMock.ExpectQuery("SELECT \\* FROM settings WHERE name").
		WithArgs(string(settings.KeySecurity)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "value", "updated_at"}).
			AddRow(1, "security", "Toggle", "disabled", fixtureTime))

	c := New(projects.New(projDB), snapshots.New(snapDB), alertstore.New(alertDB), settings.New(settingsDB), nil)
	err := c.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, settingsMock.ExpectationsWereMet())
}

func TestRun_SummarizesAndRollsUpGlobal(t *testing.T) {
	settingsDB, settingsMock := newMock(t)
	projDB, projMock := newMock(t)
	snapDB, snapMock := newMock(t)
	alertDB, alertMock := newMock(t)
	snapMock.MatchExpectationsInOrder(false)

	settingsMock.ExpectQuery("SELECT \\* FROM settings WHERE name").
		WithArgs(string(settings.KeySecurity)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "value", "updated_at"}).
			AddRow(1, "security", "Toggle", "enabled", fixtureTime))

	projCols := []string{"id", "name", "title", "description", "type", "status", "parent_ref", "created_at", "updated_at"}
	projMock.ExpectQuery("SELECT \\* FROM projects WHERE 1=1 AND type").
		WithArgs(projects.TypeContainer, 1000).
		WillReturnRows(sqlmock.NewRows(projCols).AddRow(
			1, "app", "", "", "Container", "Active", 0, fixtureTime, fixtureTime))

	projMock.ExpectQuery("SELECT snapshot_ref FROM project_snapshots").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))

	alertCols := []string{"id", "name", "state", "snapshot_ref", "dependency_ref", "advisory_ref", "created_at", "updated_at", "severity"}
	alertMock.ExpectQuery("SELECT a\\.\\*, adv.severity").
		WithArgs(int64(10), alertstore.StateVulnerable).
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow(
			1, "CVE-1", "Vulnerable", 10, 2, 3, fixtureTime, fixtureTime, string(advisories.SeverityCritical)))

	snapMock.ExpectExec("INSERT INTO snapshot_metadata").
		WithArgs(int64(10), "security.alerts.critical", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	snapMock.ExpectExec("INSERT INTO snapshot_metadata").
		WithArgs(int64(10), "security.alerts.total", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	projMock.ExpectQuery("SELECT \\* FROM projects WHERE 1=1 AND type").
		WithArgs(projects.TypeServer, 1000).
		WillReturnRows(sqlmock.NewRows(projCols))

	for range severityOrder {
		settingsMock.ExpectExec("INSERT INTO settings").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	settingsMock.ExpectExec("INSERT INTO settings").WillReturnResult(sqlmock.NewResult(0, 1))

	c := New(projects.New(projDB), snapshots.New(snapDB), alertstore.New(alertDB), settings.New(settingsDB), nil)
	err := c.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, settingsMock.ExpectationsWereMet())
	require.NoError(t, projMock.ExpectationsWereMet())
	require.NoError(t, snapMock.ExpectationsWereMet())
	require.NoError(t, alertMock.ExpectationsWereMet())
}

func TestRollupGroups_SynthesizesSnapshotForNewServerProject(t *testing.T) {
	projDB, projMock := newMock(t)
	snapDB, snapMock := newMock(t)
	snapMock.MatchExpectationsInOrder(false)

	groupID := int64(5)
	childID := int64(1)
	synthesizedSnapshotID := int64(99)
	projCols := []string{"id", "name", "title", "description", "type", "status", "parent_ref", "created_at", "updated_at"}

	projMock.ExpectQuery("SELECT \\* FROM projects WHERE 1=1 AND type").
		WithArgs(projects.TypeServer, 1000).
		WillReturnRows(sqlmock.NewRows(projCols).AddRow(
			groupID, "group", "", "", "Server", "Active", 0, fixtureTime, fixtureTime))

	// Brand-new Server project: no snapshot link exists yet.
	projMock.ExpectQuery("SELECT snapshot_ref FROM project_snapshots").
		WithArgs(groupID).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_ref"}))

	snapMock.ExpectQuery("INSERT INTO snapshots").
		WithArgs(snapshots.StateCreated).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(synthesizedSnapshotID))
	snapMock.ExpectQuery("SELECT \\* FROM snapshots WHERE id").
		WithArgs(synthesizedSnapshotID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state", "sbom_bytes", "error", "created_at", "updated_at"}).
			AddRow(synthesizedSnapshotID, snapshots.StateCreated, nil, nil, fixtureTime, fixtureTime))

	projMock.ExpectExec("INSERT INTO project_snapshots").
		WithArgs(groupID, synthesizedSnapshotID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	projMock.ExpectQuery("SELECT \\* FROM projects WHERE parent_ref").
		WithArgs(groupID).
		WillReturnRows(sqlmock.NewRows(projCols).AddRow(
			childID, "container", "", "", "Container", "Active", groupID, fixtureTime, fixtureTime))

	snapMock.ExpectExec("INSERT INTO snapshot_metadata").
		WithArgs(synthesizedSnapshotID, "security.alerts.critical", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	snapMock.ExpectExec("INSERT INTO snapshot_metadata").
		WithArgs(synthesizedSnapshotID, "security.alerts.total", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := New(projects.New(projDB), snapshots.New(snapDB), alertstore.New(nil), settings.New(nil), nil)

	childSummaries := map[int64]Summary{
		childID: {advisories.SeverityCritical: 2},
	}

	err := c.rollupGroups(context.Background(), childSummaries)
	require.NoError(t, err)

	require.NoError(t, projMock.ExpectationsWereMet())
	require.NoError(t, snapMock.ExpectationsWereMet())
}
