package batch

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/librarian/internal/infra/storage"
)

// Locker guards a task against concurrent runs across processes. RefreshLock
// returns storage.ErrLockNotHeld once owner has lost the lock.
type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, name, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, name, owner string) error
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localLock
	now   func() time.Time
}

type localLock struct {
	owner   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]localLock),
		now:   time.Now,
	}
}

func (l *LocalLocker) AcquireLock(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.locks[name]; ok && l.now().Before(cur.expires) {
		return false, nil
	}
	l.locks[name] = localLock{owner: owner, expires: l.now().Add(ttl)}
	return true, nil
}

func (l *LocalLocker) RefreshLock(_ context.Context, name, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.locks[name]
	if !ok || cur.owner != owner || !l.now().Before(cur.expires) {
		return storage.ErrLockNotHeld
	}
	l.locks[name] = localLock{owner: owner, expires: l.now().Add(ttl)}
	return nil
}

func (l *LocalLocker) ReleaseLock(_ context.Context, name, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.locks[name]; ok && cur.owner == owner {
		delete(l.locks, name)
	}
	return nil
}
