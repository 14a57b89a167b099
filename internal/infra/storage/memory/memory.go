package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/storage"
)

// MemoryStorage keeps items and runs in process memory.
type MemoryStorage struct {
	items map[string]domain.Item
	runs  map[string]*domain.Run
	mu    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string]domain.Item),
		runs:  make(map[string]*domain.Run),
	}
}

// -----------------------------------------------------------------------------
// Item Repository
// -----------------------------------------------------------------------------

type ItemRepo struct {
	store *MemoryStorage
}

func NewItemRepo(store *MemoryStorage) *ItemRepo {
	return &ItemRepo{store: store}
}

func (r *ItemRepo) ListVideos(ctx context.Context) ([]domain.Item, error) {
	return r.ListByTypes(ctx, domain.MediaTypeVideo)
}

func (r *ItemRepo) ListByTypes(ctx context.Context, types ...domain.MediaType) ([]domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	want := make(map[domain.MediaType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var out []domain.Item
	for _, it := range r.store.items {
		if want[it.MediaType] {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].ID < out[j].ID
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (r *ItemRepo) Upsert(ctx context.Context, items []domain.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, it := range items {
		r.store.items[it.ID] = it
	}
	return nil
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *run
	r.store.runs[run.ID] = &cp
	return nil
}

func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.runs[run.ID]; !ok {
		return storage.ErrRunNotFound
	}
	cp := *run
	r.store.runs[run.ID] = &cp
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	run, ok := r.store.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *RunRepo) ListRecent(ctx context.Context, task string, limit int) ([]*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Run
	for _, run := range r.store.runs {
		if run.Task == task {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
