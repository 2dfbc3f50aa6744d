package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/cache"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/seventv"
)

const (
	// SearchPageSize is the number of emotes per search page.
	SearchPageSize = 72
	// TrendingSize is the number of emotes listed on the landing page.
	TrendingSize = 9
)

// ErrEmptyQuery is returned when a search has no query text.
var ErrEmptyQuery = errors.New("search query cannot be empty")

// EmoteSearcher runs searches against the emote catalog.
type EmoteSearcher interface {
	Search(ctx context.Context, p seventv.SearchParams) (*model.SearchPage, error)
}

// SearchService defines emote catalog lookups.
type SearchService interface {
	// Search returns one page of emotes matching query. Pages start at 1.
	Search(ctx context.Context, query string, page int) (*model.SearchPage, error)

	// Trending lists the top emotes for sort (TOP_ALL_TIME, TRENDING_DAILY,
	// UPLOAD_DATE; anything else means TOP_ALL_TIME).
	Trending(ctx context.Context, sort string) (*model.SearchPage, error)
}

// SearchServiceConfig holds configuration for SearchService.
type SearchServiceConfig struct {
	CacheTTL    time.Duration
	TrendingTTL time.Duration
}

// DefaultSearchServiceConfig returns the default configuration.
func DefaultSearchServiceConfig() SearchServiceConfig {
	return SearchServiceConfig{
		CacheTTL:    2 * time.Minute,
		TrendingTTL: 10 * time.Minute,
	}
}

type searchService struct {
	searcher EmoteSearcher
	cache    cache.SearchCache
	sfGroup  singleflight.Group

	cacheTTL    time.Duration
	trendingTTL time.Duration
}

// NewSearchService creates a SearchService. searchCache may be nil.
func NewSearchService(searcher EmoteSearcher, searchCache cache.SearchCache, cfg SearchServiceConfig) SearchService {
	return &searchService{
		searcher:    searcher,
		cache:       searchCache,
		cacheTTL:    cfg.CacheTTL,
		trendingTTL: cfg.TrendingTTL,
	}
}

func (s *searchService) Search(ctx context.Context, query string, page int) (*model.SearchPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}

	params := seventv.SearchParams{
		Query:   query,
		Page:    page,
		PerPage: SearchPageSize,
		Sort:    seventv.SortTopAllTime,
	}
	key := fmt.Sprintf("q=%s:p=%d", strings.ToLower(query), page)
	return s.lookup(ctx, key, params, s.cacheTTL)
}

func (s *searchService) Trending(ctx context.Context, sort string) (*model.SearchPage, error) {
	params := seventv.SearchParams{
		Page:    1,
		PerPage: TrendingSize,
		Sort:    seventv.ParseSort(sort),
	}
	key := "trending:" + string(params.Sort)
	return s.lookup(ctx, key, params, s.trendingTTL)
}

// lookup is cache-aside behind singleflight so concurrent identical
// searches hit 7TV once.
func (s *searchService) lookup(ctx context.Context, key string, params seventv.SearchParams, ttl time.Duration) (*model.SearchPage, error) {
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		if page := s.cached(ctx, key); page != nil {
			return page, nil
		}

		page, err := s.searcher.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("search emotes: %w", err)
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, key, page, ttl); err != nil {
				slog.Warn("failed to cache search page", "key", key, "error", err)
			}
		}
		return page, nil
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*model.SearchPage), nil
}

func (s *searchService) cached(ctx context.Context, key string) *model.SearchPage {
	if s.cache == nil {
		return nil
	}
	page, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("search cache get failed, querying 7TV", "key", key, "error", err)
		return nil
	}
	return page
}
