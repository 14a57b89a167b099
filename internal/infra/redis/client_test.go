package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb, "test"), mr
}

func TestEndpointCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetEndpoint(ctx, "requests")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetEndpoint(ctx, "requests", "http://b", time.Minute))
	url, ok, err := c.GetEndpoint(ctx, "requests")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://b", url)
	assert.True(t, mr.Exists("test:endpoint:requests"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetEndpoint(ctx, "requests")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetEndpoint(ctx, "requests", "http://b", time.Minute))
	require.NoError(t, c.DeleteEndpoint(ctx, "requests"))
	_, ok, _ = c.GetEndpoint(ctx, "requests")
	assert.False(t, ok)
}

func TestRunLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "chapter-images", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "chapter-images", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	owner, err := c.LockOwner(ctx, "chapter-images")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	assert.ErrorIs(t, c.RefreshLock(ctx, "chapter-images", "owner-b", time.Minute), ErrLockNotHeld)
	require.NoError(t, c.RefreshLock(ctx, "chapter-images", "owner-a", 5*time.Minute))
	assert.Greater(t, mr.TTL("test:lock:chapter-images"), time.Minute)

	// releasing someone else's lock is a no-op
	require.NoError(t, c.ReleaseLock(ctx, "chapter-images", "owner-b"))
	owner, _ = c.LockOwner(ctx, "chapter-images")
	assert.Equal(t, "owner-a", owner)

	require.NoError(t, c.ReleaseLock(ctx, "chapter-images", "owner-a"))
	owner, _ = c.LockOwner(ctx, "chapter-images")
	assert.Empty(t, owner)
}

func TestRunLock_ExpiresAfterTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, _ := c.AcquireLock(ctx, "job", "a", time.Minute)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err := c.AcquireLock(ctx, "job", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
