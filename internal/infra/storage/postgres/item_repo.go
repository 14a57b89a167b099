package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/librarian/internal/core/domain"
)

// ItemRepo implements storage.ItemRepository using PostgreSQL.
type ItemRepo struct {
	db *DB
}

// NewItemRepo creates a new PostgreSQL item repository.
func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

type itemRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Path         string    `db:"path"`
	MediaType    string    `db:"media_type"`
	DateModified time.Time `db:"date_modified"`
}

// ListVideos returns every video item.
func (r *ItemRepo) ListVideos(ctx context.Context) ([]domain.Item, error) {
	return r.ListByTypes(ctx, domain.MediaTypeVideo)
}

// ListByTypes returns items of the given media types ordered by path.
func (r *ItemRepo) ListByTypes(ctx context.Context, types ...domain.MediaType) ([]domain.Item, error) {
	query := `
		SELECT id, name, path, media_type, date_modified
		FROM library_items
		WHERE media_type = ANY($1)
		ORDER BY path ASC, id ASC
	`

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]domain.Item, len(rows))
	for i, row := range rows {
		items[i] = domain.Item{
			ID:           row.ID,
			Name:         row.Name,
			Path:         row.Path,
			MediaType:    domain.MediaType(row.MediaType),
			DateModified: row.DateModified,
		}
	}
	return items, nil
}

// Upsert saves items in one transaction.
func (r *ItemRepo) Upsert(ctx context.Context, items []domain.Item) error {
	query := `
		INSERT INTO library_items (id, name, path, media_type, date_modified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    path = EXCLUDED.path,
		    media_type = EXCLUDED.media_type,
		    date_modified = EXCLUDED.date_modified
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range items {
		if _, err := tx.ExecContext(ctx, query, it.ID, it.Name, it.Path, string(it.MediaType), it.DateModified); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}
