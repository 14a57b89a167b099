package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/librarian/internal/infra/storage"
)

// ErrLockNotHeld is returned when refreshing a lock owned by someone else.
var ErrLockNotHeld = storage.ErrLockNotHeld

// Only the owner may extend or delete the lock.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// AcquireLock attempts to take the named lock for owner.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.lockKey(name), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshLock extends the TTL of a lock held by owner.
func (c *Client) RefreshLock(ctx context.Context, name, owner string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, c.rdb, []string{c.lockKey(name)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// ReleaseLock releases a lock held by owner. Releasing a lock owned by
// someone else is a no-op.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{c.lockKey(name)}, owner).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// LockOwner returns the current owner of the named lock, empty if free.
func (c *Client) LockOwner(ctx context.Context, name string) (string, error) {
	val, err := c.rdb.Get(ctx, c.lockKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lock: %w", err)
	}
	return val, nil
}
