package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/cache"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/transcoder"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts before marking as failed.
	DefaultMaxRetries = 3

	clipContentType = "video/webm"

	msgDownloadFailed = "Unable to download the emote."
	msgRetriesFailed  = "Unable to convert the emote after several attempts."
)

// SourceDownloader fetches an emote to a local file.
type SourceDownloader interface {
	Download(ctx context.Context, rawURL, dest string) (int64, error)
}

// ClipServiceConfig holds configuration for ClipService.
type ClipServiceConfig struct {
	// TempDir is the base directory for per-task working directories.
	TempDir string
	// MaxRetries is the maximum number of retry attempts before marking the conversion as failed.
	MaxRetries int
}

// DefaultClipServiceConfig returns the default configuration.
func DefaultClipServiceConfig() ClipServiceConfig {
	return ClipServiceConfig{
		TempDir:    os.TempDir(),
		MaxRetries: DefaultMaxRetries,
	}
}

// ClipService converts queued emotes into stored clips.
type ClipService interface {
	// ProcessTask handles a conversion task from the message queue.
	// Returns nil on success or permanent failure (the conversion is FAILED).
	// Returns error for transient failures that should trigger a retry.
	ProcessTask(ctx context.Context, task repository.ConversionTask) error
}

type clipService struct {
	repo       repository.ConversionRepository
	storage    repository.ObjectStorage
	downloader SourceDownloader
	transcoder transcoder.Transcoder
	cache      cache.ConversionCache

	tempDir    string
	maxRetries int
}

// NewClipService creates a new ClipService. conversionCache may be nil; when
// set, entries are invalidated on every status change.
func NewClipService(
	repo repository.ConversionRepository,
	storage repository.ObjectStorage,
	downloader SourceDownloader,
	tc transcoder.Transcoder,
	conversionCache cache.ConversionCache,
	cfg ClipServiceConfig,
) ClipService {
	return &clipService{
		repo:       repo,
		storage:    storage,
		downloader: downloader,
		transcoder: tc,
		cache:      conversionCache,
		tempDir:    cfg.TempDir,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *clipService) ProcessTask(ctx context.Context, task repository.ConversionTask) error {
	log := slog.With("conversion_id", task.ConversionID, "retry_count", task.RetryCount)

	if task.RetryCount >= s.maxRetries {
		if err := s.markFailed(ctx, task.ConversionID, msgRetriesFailed); err != nil {
			// Ack anyway; the record stays PROCESSING.
			log.Error("failed to mark conversion as failed", "error", err)
		}
		return nil
	}

	workDir, err := os.MkdirTemp(s.tempDir, "emoteclip-"+task.ConversionID.String()+"-")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputPath := filepath.Join(workDir, "emote_input-"+task.ConversionID.String())
	if _, err := s.downloader.Download(ctx, task.SourceURL, inputPath); err != nil {
		if isPermanentDownloadError(err) {
			log.Warn("source download rejected", "error", err)
			return s.fail(ctx, task.ConversionID, msgDownloadFailed)
		}
		return fmt.Errorf("download source: %w", err)
	}

	outputPath := filepath.Join(workDir, "clip.webm")
	start := time.Now()
	result, err := s.transcoder.Convert(ctx, inputPath, outputPath)
	recordConversion(metrics.ModeFile, err, time.Since(start))
	if err != nil {
		var terr *transcoder.Error
		if errors.As(err, &terr) && terr.Kind != transcoder.KindUnexpected {
			log.Warn("conversion rejected", "kind", terr.Kind.String(), "error", err)
			return s.fail(ctx, task.ConversionID, terr.Message)
		}
		return fmt.Errorf("convert: %w", err)
	}

	log.Info("conversion finished",
		"source_duration", result.Duration.String(),
		"speed_factor", result.Plan.SpeedFactor,
	)

	if err := s.upload(ctx, result.OutputPath, task.ObjectKey); err != nil {
		return fmt.Errorf("upload clip: %w", err)
	}

	if err := s.markReady(ctx, task.ConversionID); err != nil {
		return fmt.Errorf("update conversion status: %w", err)
	}

	return nil
}

func isPermanentDownloadError(err error) bool {
	return errors.Is(err, source.ErrUnexpectedStatus) ||
		errors.Is(err, source.ErrTooLarge) ||
		errors.Is(err, source.ErrInvalidURL)
}

// fail records a permanent failure. The task is acknowledged unless the
// status update itself failed.
func (s *clipService) fail(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.markFailed(ctx, id, reason); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *clipService) upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := s.storage.Upload(ctx, key, file, clipContentType); err != nil {
		return fmt.Errorf("storage upload: %w", err)
	}
	return nil
}

func (s *clipService) markReady(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, func(c *model.Conversion) error {
		return c.TransitionTo(model.StatusReady)
	})
}

func (s *clipService) markFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.transition(ctx, id, func(c *model.Conversion) error {
		return c.Fail(reason)
	})
}

// transition applies change to a PROCESSING conversion and persists it.
// Conversions in any other state are left untouched.
func (s *clipService) transition(ctx context.Context, id uuid.UUID, change func(*model.Conversion) error) error {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get conversion: %w", err)
	}

	if conv.Status != model.StatusProcessing {
		return nil
	}

	if err := change(conv); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, conv); err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			slog.Warn("failed to invalidate conversion cache", "conversion_id", id, "error", err)
		}
	}
	return nil
}
