package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// conversionCacheKeyPrefix is the prefix for conversion cache keys in Redis.
	conversionCacheKeyPrefix = "conversion:"
)

// conversionJSON is the JSON representation of a Conversion for caching.
// Using explicit struct avoids coupling to domain model's JSON tags.
type conversionJSON struct {
	ID           string `json:"id"`
	EmoteID      string `json:"emote_id"`
	SourceURL    string `json:"source_url"`
	Status       string `json:"status"`
	ObjectKey    string `json:"object_key"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// RedisConversionCache implements ConversionCache using Redis as the backing store.
type RedisConversionCache struct {
	client *redis.Client
}

var _ ConversionCache = (*RedisConversionCache)(nil)

// NewRedisConversionCache creates a new Redis-backed conversion cache.
func NewRedisConversionCache(client *redis.Client) *RedisConversionCache {
	return &RedisConversionCache{
		client: client,
	}
}

// Get retrieves a conversion from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisConversionCache) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	data, err := c.client.Get(ctx, c.buildKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil // Cache miss
		}
		recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	conv, err := c.deserialize(data)
	if err != nil {
		recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize conversion: %w", err)
	}

	recordCacheOp(metrics.CacheOpGet, metrics.CacheStatusHit)
	return conv, nil
}

// Set stores a conversion in Redis cache with the specified TTL.
func (c *RedisConversionCache) Set(ctx context.Context, conv *model.Conversion, ttl time.Duration) error {
	data, err := c.serialize(conv)
	if err != nil {
		return fmt.Errorf("serialize conversion: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(conv.ID), data, ttl).Err(); err != nil {
		recordCacheOp(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	recordCacheOp(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// Delete removes a conversion from Redis cache.
func (c *RedisConversionCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.buildKey(id)).Err(); err != nil {
		recordCacheOp(metrics.CacheOpDelete, metrics.CacheStatusError)
		return fmt.Errorf("redis del: %w", err)
	}

	recordCacheOp(metrics.CacheOpDelete, metrics.CacheStatusSuccess)
	return nil
}

// buildKey constructs the Redis key for a conversion.
func (c *RedisConversionCache) buildKey(id uuid.UUID) string {
	return conversionCacheKeyPrefix + id.String()
}

func (c *RedisConversionCache) serialize(conv *model.Conversion) ([]byte, error) {
	v := conversionJSON{
		ID:           conv.ID.String(),
		EmoteID:      conv.EmoteID,
		SourceURL:    conv.SourceURL,
		Status:       string(conv.Status),
		ObjectKey:    conv.ObjectKey,
		ErrorMessage: conv.ErrorMessage,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(v)
}

func (c *RedisConversionCache) deserialize(data []byte) (*model.Conversion, error) {
	var v conversionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse conversion ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &model.Conversion{
		ID:           id,
		EmoteID:      v.EmoteID,
		SourceURL:    v.SourceURL,
		Status:       model.Status(v.Status),
		ObjectKey:    v.ObjectKey,
		ErrorMessage: v.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func recordCacheOp(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, metrics.CacheTypeRedis).Inc()
}
