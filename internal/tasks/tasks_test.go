package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/42ByteLabs/konarr-core/internal/advisorydb"
	"github.com/42ByteLabs/konarr-core/internal/matcher"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	"github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

var fixtureTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingTask struct {
	name string
	err  error
	ran  *[]string
}

func (t recordingTask) Name() string { return t.name }
func (t recordingTask) Run(ctx context.Context) error {
	*t.ran = append(*t.ran, t.name)
	return t.err
}

func TestOrchestrator_TickRunsEveryTaskDespiteFailures(t *testing.T) {
	var ran []string
	o := &Orchestrator{
		period: time.Hour,
		tasks: []Task{
			recordingTask{name: "a", ran: &ran},
			recordingTask{name: "b", err: errors.New("boom"), ran: &ran},
			recordingTask{name: "c", ran: &ran},
		},
		log:  observability.NewStandardLogger("test"),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	o.tick(context.Background())
	require.Equal(t, []string{"a", "b", "c"}, ran)
}

func TestOrchestrator_StartStop_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ran []string
	o := &Orchestrator{
		period: time.Hour,
		tasks:  []Task{recordingTask{name: "a", ran: &ran}},
		log:    observability.NewStandardLogger("test"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go o.Start(context.Background())
	o.Stop()
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestRescanTask_SkipsWhenFlagNotSet(t *testing.T) {
	settingsDB, settingsMock := newMock(t)
	projDB, _ := newMock(t)
	snapDB, _ := newMock(t)

	settingsMock.ExpectQuery("SELECT \\* FROM settings WHERE name").
		WithArgs(string(settings.KeySecurityRescan)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "value", "updated_at"}).
			AddRow(1, "security.rescan", "Toggle", "disabled", fixtureTime))

	task := NewRescanTask(settings.New(settingsDB), projects.New(projDB), snapshots.New(snapDB), nil, nil)
	err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, settingsMock.ExpectationsWereMet())
}

func TestRescanTask_ResetsFlagThenRescansContainers(t *testing.T) {
	settingsDB, settingsMock := newMock(t)
	projDB, projMock := newMock(t)
	snapDB, snapMock := newMock(t)
	grypeDB, _ := newMock(t)
	advDB, _ := newMock(t)
	alertDB, _ := newMock(t)

	settingsMock.ExpectQuery("SELECT \\* FROM settings WHERE name").
		WithArgs(string(settings.KeySecurityRescan)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "value", "updated_at"}).
			AddRow(1, "security.rescan", "Toggle", "enabled", fixtureTime))
	settingsMock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeySecurityRescan), string(settings.TypeToggle), "disabled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	projCols := []string{"id", "name", "title", "description", "type", "status", "parent_ref", "created_at", "updated_at"}
	projMock.ExpectQuery("SELECT \\* FROM projects WHERE 1=1 AND type").
		WithArgs(projects.TypeContainer, 1000).
		WillReturnRows(sqlmock.NewRows(projCols).AddRow(
			1, "app", "", "", "Container", "Active", 0, fixtureTime, fixtureTime))
	projMock.ExpectQuery("SELECT snapshot_ref FROM project_snapshots").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))

	depCols := []string{"id", "snapshot_ref", "component_ref", "component_version_ref", "component_name", "component_manager", "version"}
	snapMock.ExpectQuery("FROM dependencies").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(depCols))

	m := matcher.New(advisorydb.NewFromSqlx(grypeDB), advisories.New(advDB), alerts.New(alertDB), nil)

	task := NewRescanTask(settings.New(settingsDB), projects.New(projDB), snapshots.New(snapDB), m, nil)
	err := task.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, settingsMock.ExpectationsWereMet())
	require.NoError(t, projMock.ExpectationsWereMet())
	require.NoError(t, snapMock.ExpectationsWereMet())
}
