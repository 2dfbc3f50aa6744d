package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/source"
)

// ErrConversionNotReady is returned when a download URL is requested for a
// conversion that has no clip yet.
var ErrConversionNotReady = errors.New("conversion is not ready")

const msgEnqueueFailed = "Unable to queue the conversion."

// CreateConversionOutput contains the result of requesting a conversion.
type CreateConversionOutput struct {
	Conversion *model.Conversion
	// Reused is true when an existing clip or in-flight conversion was returned.
	Reused bool
}

// ConversionService defines stored (asynchronous) conversions.
type ConversionService interface {
	// Create requests a stored clip for emoteURL. A clip already in storage
	// is reused and returned READY; a conversion already in progress for the
	// same emote is returned as is; otherwise a task is queued.
	Create(ctx context.Context, emoteURL string) (*CreateConversionOutput, error)

	// Get retrieves a conversion by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error)

	// DownloadURL returns a presigned URL for a READY conversion's clip.
	DownloadURL(ctx context.Context, conv *model.Conversion) (string, error)

	// OpenClip opens a READY conversion's clip from storage.
	// Caller must close the returned reader.
	OpenClip(ctx context.Context, conv *model.Conversion) (io.ReadCloser, error)
}

// ConversionServiceConfig holds configuration for ConversionService.
type ConversionServiceConfig struct {
	AllowedHosts   []string
	DownloadExpiry time.Duration
}

// DefaultConversionServiceConfig returns the default configuration.
func DefaultConversionServiceConfig() ConversionServiceConfig {
	return ConversionServiceConfig{
		AllowedHosts:   source.DefaultAllowedHosts,
		DownloadExpiry: 15 * time.Minute,
	}
}

type conversionService struct {
	repo    repository.ConversionRepository
	storage repository.ObjectStorage
	queue   repository.MessageQueue

	allowedHosts   []string
	downloadExpiry time.Duration
}

// NewConversionService creates a new ConversionService instance.
func NewConversionService(
	repo repository.ConversionRepository,
	storage repository.ObjectStorage,
	queue repository.MessageQueue,
	cfg ConversionServiceConfig,
) ConversionService {
	return &conversionService{
		repo:           repo,
		storage:        storage,
		queue:          queue,
		allowedHosts:   cfg.AllowedHosts,
		downloadExpiry: cfg.DownloadExpiry,
	}
}

func (s *conversionService) Create(ctx context.Context, emoteURL string) (*CreateConversionOutput, error) {
	u, err := source.ValidateURL(emoteURL, s.allowedHosts)
	if err != nil {
		return nil, err
	}

	conv, err := model.NewConversion(u.String())
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByEmoteID(ctx, conv.EmoteID)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	if len(existing) > 0 && existing[0].Status == model.StatusProcessing {
		return &CreateConversionOutput{Conversion: existing[0], Reused: true}, nil
	}

	stored, err := s.storage.Exists(ctx, conv.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("check clip: %w", err)
	}
	if stored {
		if err := conv.TransitionTo(model.StatusReady); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversion: %w", err)
		}
		return &CreateConversionOutput{Conversion: conv, Reused: true}, nil
	}

	if err := conv.TransitionTo(model.StatusProcessing); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversion: %w", err)
	}

	task := repository.ConversionTask{
		ConversionID: conv.ID,
		SourceURL:    conv.SourceURL,
		ObjectKey:    conv.ObjectKey,
	}
	if err := s.queue.PublishConversionTask(ctx, task); err != nil {
		// Leave a terminal record behind rather than one stuck in PROCESSING.
		if ferr := conv.Fail(msgEnqueueFailed); ferr == nil {
			if uerr := s.repo.Update(ctx, conv); uerr != nil {
				slog.Error("failed to mark unqueued conversion failed", "conversion_id", conv.ID, "error", uerr)
			}
		}
		return nil, fmt.Errorf("publish conversion task: %w", err)
	}

	return &CreateConversionOutput{Conversion: conv}, nil
}

func (s *conversionService) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *conversionService) DownloadURL(ctx context.Context, conv *model.Conversion) (string, error) {
	if !conv.IsReady() {
		return "", ErrConversionNotReady
	}
	u, err := s.storage.GeneratePresignedDownloadURL(ctx, conv.ObjectKey, s.downloadExpiry)
	if err != nil {
		return "", fmt.Errorf("generate download URL: %w", err)
	}
	return u, nil
}

func (s *conversionService) OpenClip(ctx context.Context, conv *model.Conversion) (io.ReadCloser, error) {
	if !conv.IsReady() {
		return nil, ErrConversionNotReady
	}
	rc, err := s.storage.Download(ctx, conv.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}
	return rc, nil
}
