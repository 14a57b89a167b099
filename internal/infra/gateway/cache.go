package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// EndpointCache stores the last selected endpoint per key.
type EndpointCache interface {
	GetEndpoint(ctx context.Context, key string) (string, bool, error)
	SetEndpoint(ctx context.Context, key, url string, ttl time.Duration) error
	DeleteEndpoint(ctx context.Context, key string) error
}

// CachedSelector serves a previous selection until its TTL expires or the
// caller invalidates it after a failed call.
type CachedSelector struct {
	inner  EndpointSelector
	cache  EndpointCache
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSelector wraps inner. A non-positive ttl disables caching.
func NewCachedSelector(inner EndpointSelector, cache EndpointCache, key string, ttl time.Duration) *CachedSelector {
	return &CachedSelector{
		inner:  inner,
		cache:  cache,
		key:    key,
		ttl:    ttl,
		logger: slog.Default().With("component", "endpoint-cache", "key", key),
	}
}

func (c *CachedSelector) SelectWorking(ctx context.Context, urls []string) (string, bool) {
	if c.ttl <= 0 || c.cache == nil {
		return c.inner.SelectWorking(ctx, urls)
	}

	key := c.cacheKey(urls)
	if url, ok, err := c.cache.GetEndpoint(ctx, key); err != nil {
		c.logger.Warn("Endpoint cache read failed", "error", err)
	} else if ok {
		return url, true
	}

	url, ok := c.inner.SelectWorking(ctx, urls)
	if !ok {
		return "", false
	}
	if err := c.cache.SetEndpoint(ctx, key, url, c.ttl); err != nil {
		c.logger.Warn("Endpoint cache write failed", "error", err)
	}
	return url, true
}

// Invalidate drops the cached selection for urls.
func (c *CachedSelector) Invalidate(ctx context.Context, urls []string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeleteEndpoint(ctx, c.cacheKey(urls)); err != nil {
		c.logger.Warn("Endpoint cache delete failed", "error", err)
	}
}

// cacheKey ties the entry to the candidate list so config changes miss.
func (c *CachedSelector) cacheKey(urls []string) string {
	return c.key + ":" + strings.Join(urls, ",")
}

// MemoryCache is an in-process EndpointCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	url     string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) GetEndpoint(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.url, true, nil
}

func (m *MemoryCache) SetEndpoint(_ context.Context, key, url string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{url: url, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) DeleteEndpoint(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
