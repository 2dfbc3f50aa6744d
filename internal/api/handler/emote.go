package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/usecase"
)

// Response types

type AnimatedItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

type StaticItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	PNGURL   string `json:"png_url,omitempty"`
}

type SearchPageResponse struct {
	AnimatedItems []AnimatedItem `json:"animated_items"`
	StaticItems   []StaticItem   `json:"static_items"`
	Page          int            `json:"page"`
	PageCount     int            `json:"page_count"`
	TotalCount    int            `json:"total_count"`
}

// ImageFetcher retrieves an upstream image into memory.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*source.Object, error)
}

// EmoteHandler serves emote search and the image download proxy.
type EmoteHandler struct {
	search       usecase.SearchService
	images       ImageFetcher
	allowedHosts []string
}

// NewEmoteHandler creates a new EmoteHandler.
func NewEmoteHandler(search usecase.SearchService, images ImageFetcher, allowedHosts []string) *EmoteHandler {
	return &EmoteHandler{search: search, images: images, allowedHosts: allowedHosts}
}

// Search handles GET /v1/emotes/search?q=&page=
func (h *EmoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "invalid_page", "Page must be a positive integer")
			return
		}
		page = n
	}

	result, err := h.search.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		h.searchError(w, err)
		return
	}
	JSON(w, http.StatusOK, toSearchPageResponse(result))
}

// Trending handles GET /v1/emotes/trending?sort=
func (h *EmoteHandler) Trending(w http.ResponseWriter, r *http.Request) {
	result, err := h.search.Trending(r.Context(), r.URL.Query().Get("sort"))
	if err != nil {
		h.searchError(w, err)
		return
	}
	JSON(w, http.StatusOK, toSearchPageResponse(result))
}

func (h *EmoteHandler) searchError(w http.ResponseWriter, err error) {
	if errors.Is(err, usecase.ErrEmptyQuery) {
		ServiceError(w, err)
		return
	}
	slog.Warn("emote search failed", "error", err)
	Error(w, http.StatusBadGateway, "upstream_error", "Error querying 7TV")
}

// DownloadImage handles GET /download-image?url=
// The image is fetched server-side and returned as an attachment.
func (h *EmoteHandler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		Error(w, http.StatusUnprocessableEntity, "missing_url", "url is required")
		return
	}

	u, err := source.ValidateURL(raw, h.allowedHosts)
	if err != nil {
		ServiceError(w, err)
		return
	}

	obj, err := h.images.Fetch(r.Context(), u.String())
	if err != nil {
		slog.Warn("image download failed", "url", u.String(), "error", err)
		Error(w, http.StatusBadGateway, "upstream_error", "Error downloading image")
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": obj.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}

func toSearchPageResponse(p *model.SearchPage) SearchPageResponse {
	resp := SearchPageResponse{
		AnimatedItems: []AnimatedItem{},
		StaticItems:   []StaticItem{},
		Page:          p.Page,
		PageCount:     p.PageCount,
		TotalCount:    p.TotalCount,
	}
	for _, e := range p.Emotes {
		var imageURL string
		if img, ok := e.BestImage(); ok {
			imageURL = img.URL
		}
		if e.IsAnimated() {
			resp.AnimatedItems = append(resp.AnimatedItems, AnimatedItem{ID: e.ID, Name: e.Name, ImageURL: imageURL})
			continue
		}
		item := StaticItem{ID: e.ID, Name: e.Name, ImageURL: imageURL}
		if png, ok := e.StaticPNG(); ok {
			item.PNGURL = png.URL
		}
		resp.StaticItems = append(resp.StaticItems, item)
	}
	return resp
}
