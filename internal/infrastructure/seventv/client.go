// Package seventv is a client for the 7TV GraphQL emote search API.
package seventv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
)

const (
	DefaultURL     = "https://api.7tv.app/v4/gql"
	DefaultTimeout = 15 * time.Second
)

// ErrSearchFailed is returned when the API answers with GraphQL errors or
// an unusable payload.
var ErrSearchFailed = errors.New("7tv search failed")

// Sort is the ordering applied to search results.
type Sort string

const (
	SortTopAllTime    Sort = "TOP_ALL_TIME"
	SortTrendingDaily Sort = "TRENDING_DAILY"
	SortUploadDate    Sort = "UPLOAD_DATE"
)

// ParseSort maps s to a known Sort, falling back to SortTopAllTime.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortTopAllTime, SortTrendingDaily, SortUploadDate:
		return Sort(s)
	default:
		return SortTopAllTime
	}
}

// SearchParams selects one page of results. An empty Query lists all emotes.
type SearchParams struct {
	Query   string
	Page    int
	PerPage int
	Sort    Sort
}

const searchQuery = `query EmoteSearch($query: String, $page: Int, $perPage: Int!, $sort: Sort!, $tags: [String!]!) {
  emotes {
    search(query: $query, page: $page, perPage: $perPage, sort: $sort, tags: {tags: $tags, match: ANY}, filters: {}) {
      items {
        id
        defaultName
        images { url mime width height frameCount scale }
      }
      totalCount
      pageCount
    }
  }
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlImage struct {
	URL        string `json:"url"`
	MIME       string `json:"mime"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount *int   `json:"frameCount"`
	Scale      *int   `json:"scale"`
}

type gqlItem struct {
	ID          string     `json:"id"`
	DefaultName string     `json:"defaultName"`
	Images      []gqlImage `json:"images"`
}

type gqlResponse struct {
	Data struct {
		Emotes struct {
			Search struct {
				Items      []gqlItem `json:"items"`
				TotalCount int       `json:"totalCount"`
				PageCount  int       `json:"pageCount"`
			} `json:"search"`
		} `json:"emotes"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client queries the 7TV API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client for endpoint. A zero timeout selects DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout / 3,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout / 2,
			},
		},
	}
}

// Search runs one emote search.
func (c *Client) Search(ctx context.Context, p SearchParams) (*model.SearchPage, error) {
	page, err := c.search(ctx, p)
	status := metrics.UpstreamSuccess
	if err != nil {
		status = metrics.UpstreamError
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(metrics.UpstreamSearch, status).Inc()
	return page, err
}

func (c *Client) search(ctx context.Context, p SearchParams) (*model.SearchPage, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	var query any
	if p.Query != "" {
		query = p.Query
	}

	body, err := json.Marshal(gqlRequest{
		Query: searchQuery,
		Variables: map[string]any{
			"query":   query,
			"page":    p.Page,
			"perPage": p.PerPage,
			"sort":    map[string]string{"sortBy": string(ParseSort(string(p.Sort))), "order": "DESCENDING"},
			"tags":    []string{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode)
	}

	var payload gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, payload.Errors[0].Message)
	}

	result := payload.Data.Emotes.Search
	page := &model.SearchPage{
		Emotes:     make([]model.Emote, 0, len(result.Items)),
		Page:       p.Page,
		PageCount:  result.PageCount,
		TotalCount: result.TotalCount,
	}
	for _, item := range result.Items {
		page.Emotes = append(page.Emotes, toEmote(item))
	}
	return page, nil
}

func toEmote(item gqlItem) model.Emote {
	e := model.Emote{
		ID:     item.ID,
		Name:   item.DefaultName,
		Images: make([]model.EmoteImage, 0, len(item.Images)),
	}
	for _, img := range item.Images {
		if img.URL == "" {
			continue
		}
		frames := 1
		if img.FrameCount != nil {
			frames = *img.FrameCount
		}
		var scale int
		if img.Scale != nil {
			scale = *img.Scale
		}
		e.Images = append(e.Images, model.EmoteImage{
			URL:        img.URL,
			MIME:       img.MIME,
			Width:      img.Width,
			Height:     img.Height,
			FrameCount: frames,
			Scale:      scale,
		})
	}
	return e
}
