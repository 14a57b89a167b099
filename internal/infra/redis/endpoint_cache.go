package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetEndpoint returns the cached endpoint for key.
func (c *Client) GetEndpoint(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.endpointKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get endpoint: %w", err)
	}
	return val, true, nil
}

// SetEndpoint caches url under key for ttl.
func (c *Client) SetEndpoint(ctx context.Context, key, url string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.endpointKey(key), url, ttl).Err(); err != nil {
		return fmt.Errorf("set endpoint: %w", err)
	}
	return nil
}

// DeleteEndpoint drops the cached endpoint for key.
func (c *Client) DeleteEndpoint(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.endpointKey(key)).Err(); err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}
