package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/cache"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedConversionServiceConfig holds configuration for CachedConversionService.
type CachedConversionServiceConfig struct {
	// CacheTTL is the TTL for cached conversion records.
	CacheTTL time.Duration
}

// DefaultCachedConversionServiceConfig returns the default configuration.
func DefaultCachedConversionServiceConfig() CachedConversionServiceConfig {
	return CachedConversionServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedConversionService wraps ConversionService with a read-through cache.
type cachedConversionService struct {
	delegate ConversionService
	cache    cache.ConversionCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// NewCachedConversionService creates a ConversionService that caches Get.
// The worker invalidates entries when it changes a conversion's status.
func NewCachedConversionService(
	delegate ConversionService,
	conversionCache cache.ConversionCache,
	cfg CachedConversionServiceConfig,
) ConversionService {
	return &cachedConversionService{
		delegate: delegate,
		cache:    conversionCache,
		cacheTTL: cfg.CacheTTL,
	}
}

// Create delegates to the underlying service; new records are not cached.
func (s *cachedConversionService) Create(ctx context.Context, emoteURL string) (*CreateConversionOutput, error) {
	return s.delegate.Create(ctx, emoteURL)
}

func (s *cachedConversionService) DownloadURL(ctx context.Context, conv *model.Conversion) (string, error) {
	return s.delegate.DownloadURL(ctx, conv)
}

func (s *cachedConversionService) OpenClip(ctx context.Context, conv *model.Conversion) (io.ReadCloser, error) {
	return s.delegate.OpenClip(ctx, conv)
}

// Get coalesces concurrent lookups of the same ID with singleflight.
func (s *cachedConversionService) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	result, err, shared := s.sfGroup.Do(id.String(), func() (any, error) {
		return s.getWithCache(ctx, id)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	// Callers get their own copy so cached data is never mutated.
	conv := *result.(*model.Conversion)
	return &conv, nil
}

func (s *cachedConversionService) getWithCache(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	conv, err := s.cache.Get(ctx, id)
	if err != nil {
		slog.Warn("cache get failed, falling back to database",
			"conversion_id", id,
			"error", err,
		)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = s.delegate.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, conv, s.cacheTTL); err != nil {
		slog.Warn("failed to cache conversion",
			"conversion_id", id,
			"error", err,
		)
	}

	return conv, nil
}
