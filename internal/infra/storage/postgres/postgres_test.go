package postgres

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/storage"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return Wrap(sqlx.NewDb(raw, "pgx")), mock
}

var runCols = []string{
	"id", "task", "status", "total", "processed", "failed", "skipped",
	"progress", "error_msg", "started_at", "finished_at",
}

func TestItemRepo_ListVideos(t *testing.T) {
	db, mock := newMockDB(t)
	modified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, name, path, media_type, date_modified").
		WithArgs(pq.Array([]string{"video"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "path", "media_type", "date_modified"}).
			AddRow("1", "Movie A", "/m/a.mkv", "video", modified).
			AddRow("2", "Movie B", "/m/b.mkv", "video", modified))

	items, err := NewItemRepo(db).ListVideos(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/m/a.mkv", items[0].Path)
	assert.Equal(t, domain.MediaTypeVideo, items[1].MediaType)
	assert.True(t, modified.Equal(items[0].DateModified))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO library_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO library_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewItemRepo(db).Upsert(context.Background(), []domain.Item{
		{ID: "1", Path: "/a", MediaType: domain.MediaTypeVideo, DateModified: time.Now()},
		{ID: "2", Path: "/b", MediaType: domain.MediaTypeAudio, DateModified: time.Now()},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_CreateAndUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepo(db)
	run := &domain.Run{
		ID:        "6f1c1c9e-8f0e-4a7c-9a43-0d5b8d1f0a11",
		Task:      "chapter-images",
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO maintenance_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), run))

	mock.ExpectExec("UPDATE maintenance_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	run.Status = domain.RunStatusCompleted
	require.NoError(t, repo.Update(context.Background(), run))

	mock.ExpectExec("UPDATE maintenance_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), run), storage.ErrRunNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_GetAndList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepo(db)
	started := time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)

	mock.ExpectQuery("FROM maintenance_runs WHERE id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("r1", "chapter-images", "completed", 10, 10, 2, 1, 100.0, "", started, finished))

	run, err := repo.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Failed)
	require.NotNil(t, run.FinishedAt)

	mock.ExpectQuery("FROM maintenance_runs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runCols))
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)

	mock.ExpectQuery("FROM maintenance_runs").
		WithArgs("chapter-images", 5).
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("r2", "chapter-images", "running", 10, 3, 0, 0, 30.0, "", started, nil).
			AddRow("r1", "chapter-images", "completed", 10, 10, 2, 1, 100.0, "", started, finished))

	runs, err := repo.ListRecent(context.Background(), "chapter-images", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Nil(t, runs[0].FinishedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
