package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/transcoder"
)

// ChunkStream is a pull-based byte stream that must be closed.
// *transcoder.Stream satisfies it.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}

// StreamOpener starts a streaming conversion of source.
type StreamOpener func(ctx context.Context, source string) (ChunkStream, error)

// TranscoderStreams adapts a Transcoder to a StreamOpener.
func TranscoderStreams(tc transcoder.Transcoder) StreamOpener {
	return func(ctx context.Context, source string) (ChunkStream, error) {
		s, err := tc.Stream(ctx, source)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// StreamService converts emotes directly to the client without storing them.
type StreamService interface {
	// Open validates emoteURL and starts converting it. The caller must
	// Close the returned stream.
	Open(ctx context.Context, emoteURL string) (*ClipStream, error)
}

type streamService struct {
	open         StreamOpener
	allowedHosts []string
}

// NewStreamService creates a StreamService backed by tc.
func NewStreamService(tc transcoder.Transcoder, allowedHosts []string) StreamService {
	return NewStreamServiceWithOpener(TranscoderStreams(tc), allowedHosts)
}

// NewStreamServiceWithOpener creates a StreamService that starts conversions with open.
func NewStreamServiceWithOpener(open StreamOpener, allowedHosts []string) StreamService {
	return &streamService{open: open, allowedHosts: allowedHosts}
}

func (s *streamService) Open(ctx context.Context, emoteURL string) (*ClipStream, error) {
	u, err := source.ValidateURL(emoteURL, s.allowedHosts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	src, err := s.open(ctx, u.String())
	if err != nil {
		recordConversion(metrics.ModeStream, err, time.Since(start))
		return nil, err
	}

	metrics.ActiveStreams.Inc()
	return &ClipStream{
		EmoteID: model.ExtractEmoteID(u.String()),
		src:     src,
		started: start,
	}, nil
}

// ClipStream is an open streaming conversion with metrics attached.
type ClipStream struct {
	EmoteID string

	src     ChunkStream
	started time.Time
	once    sync.Once
	written int64
}

// Next returns the next WebM chunk; see transcoder.Stream.Next.
func (c *ClipStream) Next() ([]byte, error) {
	chunk, err := c.src.Next()
	if n := len(chunk); n > 0 {
		c.written += int64(n)
		metrics.StreamedBytesTotal.Add(float64(n))
	}
	if err != nil {
		c.finish(err)
	}
	return chunk, err
}

// Close stops the conversion if it is still running.
func (c *ClipStream) Close() error {
	err := c.src.Close()
	c.finish(transcoder.ErrStreamClosed)
	return err
}

func (c *ClipStream) finish(err error) {
	c.once.Do(func() {
		metrics.ActiveStreams.Dec()
		outcome := recordConversion(metrics.ModeStream, err, time.Since(c.started))
		slog.Info("stream finished",
			"emote_id", c.EmoteID,
			"outcome", outcome,
			"bytes", c.written,
			"duration", time.Since(c.started),
		)
	})
}

// recordConversion counts a finished conversion and returns its outcome label.
func recordConversion(mode string, err error, elapsed time.Duration) string {
	outcome := outcomeOf(err)
	metrics.ConversionsTotal.WithLabelValues(mode, outcome).Inc()
	metrics.ConversionDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	return outcome
}

func outcomeOf(err error) string {
	var terr *transcoder.Error
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return metrics.OutcomeSuccess
	case errors.Is(err, transcoder.ErrStreamClosed):
		return metrics.OutcomeAbandoned
	case errors.As(err, &terr):
		return terr.Kind.String()
	default:
		return transcoder.KindUnexpected.String()
	}
}
