package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

const searchCacheKeyPrefix = "search:"

// RedisSearchCache implements SearchCache using Redis.
// Pages are stored as JSON using the model's own tags.
type RedisSearchCache struct {
	client *redis.Client
}

var _ SearchCache = (*RedisSearchCache)(nil)

// NewRedisSearchCache creates a new Redis-backed search cache.
func NewRedisSearchCache(client *redis.Client) *RedisSearchCache {
	return &RedisSearchCache{client: client}
}

// Get returns nil, nil on cache miss.
func (c *RedisSearchCache) Get(ctx context.Context, key string) (*model.SearchPage, error) {
	data, err := c.client.Get(ctx, searchCacheKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil
		}
		recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var page model.SearchPage
	if err := json.Unmarshal(data, &page); err != nil {
		recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize search page: %w", err)
	}

	recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusHit)
	return &page, nil
}

// Set stores a page under key with the specified TTL.
func (c *RedisSearchCache) Set(ctx context.Context, key string, page *model.SearchPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("serialize search page: %w", err)
	}

	if err := c.client.Set(ctx, searchCacheKeyPrefix+key, data, ttl).Err(); err != nil {
		recordCacheOp(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	recordCacheOp(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}
