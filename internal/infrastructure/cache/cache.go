package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
)

// ConversionCache defines the interface for caching conversion records.
// Implementations should handle serialization/deserialization transparently.
type ConversionCache interface {
	// Get retrieves a conversion from cache by ID.
	// Returns nil, nil if the conversion is not found in cache (cache miss).
	Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error)

	// Set stores a conversion in cache with the specified TTL.
	Set(ctx context.Context, conv *model.Conversion, ttl time.Duration) error

	// Delete removes a conversion from cache by ID.
	// Returns nil if the conversion was not in cache.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SearchCache caches pages of 7TV search results.
type SearchCache interface {
	// Get returns the cached page for key, or nil, nil on a miss.
	Get(ctx context.Context, key string) (*model.SearchPage, error)

	// Set stores a page under key with the specified TTL.
	Set(ctx context.Context, key string, page *model.SearchPage, ttl time.Duration) error
}
