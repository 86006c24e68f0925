package factor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const tableCacheKey = "factor:table:v1"

// Cache keeps the reference table in Redis and coalesces concurrent reloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// Table returns the cached table or populates it using loader.
func (c *Cache) Table(ctx context.Context, loader func(context.Context) ([]ReferencePoint, error)) ([]ReferencePoint, error) {
	if loader == nil {
		return nil, errors.New("factor: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, tableCacheKey).Bytes()
	if err == nil {
		var points []ReferencePoint
		if err := json.Unmarshal(payload, &points); err == nil && len(points) > 0 {
			return points, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	ch := c.group.DoChan(tableCacheKey, func() (interface{}, error) {
		points, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		// an empty table is a configuration error and must not be cached
		if len(points) > 0 {
			raw, err := json.Marshal(points)
			if err != nil {
				return nil, err
			}
			if err := c.client.Set(ctx, tableCacheKey, raw, c.ttl).Err(); err != nil {
				return nil, err
			}
		}
		return points, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]ReferencePoint), nil
	}
}

// Invalidate drops the cached table.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, tableCacheKey).Err()
}
