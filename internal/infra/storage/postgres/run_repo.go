package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, task, status, total, processed, failed, skipped, progress, error_msg, started_at, finished_at`

// Create inserts a run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO maintenance_runs (` + runColumns + `)
		VALUES (:id, :task, :status, :total, :processed, :failed, :skipped, :progress, :error_msg, :started_at, :finished_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE maintenance_runs
		SET status = :status, total = :total, processed = :processed, failed = :failed,
		    skipped = :skipped, progress = :progress, error_msg = :error_msg, finished_at = :finished_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrRunNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM maintenance_runs WHERE id = $1`

	var run domain.Run
	err := r.db.GetContext(ctx, &run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRecent returns the latest runs of task.
func (r *RunRepo) ListRecent(ctx context.Context, task string, limit int) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM maintenance_runs
		WHERE task = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	var runs []*domain.Run
	if err := r.db.SelectContext(ctx, &runs, query, task, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
