package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/usecase"
)

// Request/Response types

type CreateConversionRequest struct {
	EmoteURL string `json:"emote_url"`
}

type ConversionResponse struct {
	ID           string `json:"id"`
	EmoteID      string `json:"emote_id"`
	SourceURL    string `json:"source_url"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ConversionHandler handles stored conversion requests.
type ConversionHandler struct {
	svc usecase.ConversionService
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(svc usecase.ConversionService) *ConversionHandler {
	return &ConversionHandler{svc: svc}
}

// Create handles POST /v1/conversions
// Returns 202 for a newly queued conversion and 200 when an existing one is reused.
func (h *ConversionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.EmoteURL == "" {
		Error(w, http.StatusUnprocessableEntity, "missing_emote_url", "emote_url is required")
		return
	}

	out, err := h.svc.Create(r.Context(), req.EmoteURL)
	if err != nil {
		ServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if out.Reused {
		status = http.StatusOK
	}
	JSON(w, status, h.toResponse(r, out.Conversion))
}

// Get handles GET /v1/conversions/{id}
func (h *ConversionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_conversion_id", "Conversion ID must be a valid UUID")
		return
	}

	conv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, h.toResponse(r, conv))
}

// Clip handles GET /v1/conversions/{id}/clip
// Serves the stored WebM through the API for clients that cannot reach storage.
func (h *ConversionHandler) Clip(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_conversion_id", "Conversion ID must be a valid UUID")
		return
	}

	conv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	rc, err := h.svc.OpenClip(r.Context(), conv)
	if err != nil {
		ServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(conv.ObjectKey)}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Info("clip copy interrupted", "conversion_id", conv.ID, "error", err)
	}
}

func (h *ConversionHandler) toResponse(r *http.Request, c *model.Conversion) ConversionResponse {
	resp := ConversionResponse{
		ID:           c.ID.String(),
		EmoteID:      c.EmoteID,
		SourceURL:    c.SourceURL,
		Status:       c.Status.String(),
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}
	if c.IsReady() {
		u, err := h.svc.DownloadURL(r.Context(), c)
		if err != nil {
			slog.Warn("failed to presign clip download", "conversion_id", c.ID, "error", err)
		} else {
			resp.DownloadURL = u
		}
	}
	return resp
}
