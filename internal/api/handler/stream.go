package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hszk-dev/emoteclip/internal/usecase"
)

const (
	dispositionInline     = "inline; filename=emote.webm"
	dispositionAttachment = "attachment; filename=emote.webm"
)

// StreamHandler converts emotes on the fly and streams the WebM to the client.
type StreamHandler struct {
	svc     usecase.StreamService
	timeout time.Duration
}

// NewStreamHandler creates a new StreamHandler. timeout bounds one
// conversion end to end; zero means no limit beyond the request context.
func NewStreamHandler(svc usecase.StreamService, timeout time.Duration) *StreamHandler {
	return &StreamHandler{svc: svc, timeout: timeout}
}

// Stream handles GET|POST /convert/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dispositionInline)
}

// Download handles GET|POST /convert/download
func (h *StreamHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dispositionAttachment)
}

// serve writes the clip as it is produced. Errors before the first chunk are
// reported as JSON; once bytes are on the wire the connection is aborted so
// the client sees a truncated response instead of a corrupt 200.
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, disposition string) {
	emoteURL := r.FormValue("emote_url")
	if emoteURL == "" {
		Error(w, http.StatusUnprocessableEntity, "missing_emote_url", "emote_url is required")
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	stream, err := h.svc.Open(ctx, emoteURL)
	if err != nil {
		ServiceError(w, err)
		return
	}
	defer func() { _ = stream.Close() }()

	log := slog.With("emote_id", stream.EmoteID)

	chunk, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn("conversion failed before first chunk", "error", err)
		ServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				log.Info("client went away", "error", werr)
				return
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return
		}

		chunk, err = stream.Next()
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error("conversion failed mid-stream", "error", err)
			panic(http.ErrAbortHandler)
		}
	}
}
