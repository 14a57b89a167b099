package storage

import (
	"context"
	"errors"

	"github.com/vietddude/librarian/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run record doesn't exist
	ErrRunNotFound = errors.New("run not found")

	// ErrLockNotHeld is returned when refreshing a lock the caller no longer owns
	ErrLockNotHeld = errors.New("lock not held")
)

// ItemSource yields the items a maintenance task walks.
type ItemSource interface {
	// ListVideos returns every video item in stable path order
	ListVideos(ctx context.Context) ([]domain.Item, error)
}

// ItemRepository stores library items
type ItemRepository interface {
	ItemSource

	// Upsert saves items, replacing existing rows by ID
	Upsert(ctx context.Context, items []domain.Item) error

	// ListByTypes returns items of the given media types in path order
	ListByTypes(ctx context.Context, types ...domain.MediaType) ([]domain.Item, error)
}

// RunRepository stores maintenance run history
type RunRepository interface {
	// Create inserts a new run record
	Create(ctx context.Context, run *domain.Run) error

	// Update overwrites counters, status and timestamps of a run
	Update(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*domain.Run, error)

	// ListRecent returns the latest runs of a task, newest first
	ListRecent(ctx context.Context, task string, limit int) ([]*domain.Run, error)
}
