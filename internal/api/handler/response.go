package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/seventv"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/transcoder"
	"github.com/hszk-dev/emoteclip/internal/usecase"
)

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, err string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// ServiceError writes the JSON error response for an error returned by a use case.
func ServiceError(w http.ResponseWriter, err error) {
	var terr *transcoder.Error

	switch {
	case errors.Is(err, source.ErrInvalidURL):
		Error(w, http.StatusBadRequest, "invalid_url", "Invalid URL")
	case errors.Is(err, source.ErrHostNotAllowed):
		Error(w, http.StatusBadRequest, "host_not_allowed", "Host not allowed")
	case errors.Is(err, usecase.ErrEmptyQuery):
		Error(w, http.StatusBadRequest, "invalid_query", "Search query is required")
	case errors.Is(err, repository.ErrConversionNotFound):
		Error(w, http.StatusNotFound, "conversion_not_found", "Conversion not found")
	case errors.Is(err, usecase.ErrConversionNotReady):
		Error(w, http.StatusConflict, "conversion_not_ready", "Conversion has no clip yet")
	case errors.Is(err, repository.ErrObjectNotFound):
		Error(w, http.StatusNotFound, "clip_not_found", "Clip not found in storage")
	case errors.Is(err, seventv.ErrSearchFailed):
		Error(w, http.StatusBadGateway, "upstream_error", "Error querying 7TV")
	case errors.As(err, &terr):
		Error(w, transcoderStatus(terr.Kind), terr.Kind.String(), terr.Message)
	default:
		slog.Error("unhandled service error", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func transcoderStatus(k transcoder.Kind) int {
	switch k {
	case transcoder.KindInvalidInput, transcoder.KindUnrecognizedFormat:
		return http.StatusUnprocessableEntity
	case transcoder.KindStreamSetup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
