package projects

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var fixtureTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestFindOrCreate_ReturnsExisting(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	cols := []string{"id", "name", "title", "description", "type", "status", "parent_ref", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT \\* FROM projects WHERE name").
		WithArgs("nginx-prod").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "nginx-prod", "", "", "Container", "Active", 0, fixtureTime, fixtureTime))

	p, err := store.FindOrCreate(ctx, "nginx-prod", TypeContainer, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreate_InsertsOnMiss(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM projects WHERE name").
		WithArgs("new-app").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery("INSERT INTO projects").
		WithArgs("new-app", TypeApplication, StatusActive, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	cols := []string{"id", "name", "title", "description", "type", "status", "parent_ref", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT \\* FROM projects WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, "new-app", "", "", "Application", "Active", 0, fixtureTime, fixtureTime))

	p, err := store.FindOrCreate(ctx, "new-app", TypeApplication, 0)
	require.NoError(t, err)
	require.Equal(t, int64(9), p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchLatestSnapshotID_OrdersByLinkID(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT snapshot_ref FROM project_snapshots").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_ref"}).AddRow(int64(42)))

	id, err := store.FetchLatestSnapshotID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestArchive_DoesNotCascade(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE projects SET status").
		WithArgs(StatusArchived, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Archive(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
