package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
)

// ConversionRepository defines the interface for conversion persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type ConversionRepository interface {
	// Create persists a new conversion.
	// Returns ErrDuplicateConversion if the ID is already taken.
	Create(ctx context.Context, conv *model.Conversion) error

	// GetByID retrieves a conversion by its unique identifier.
	// Returns nil and ErrConversionNotFound if the conversion does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Conversion, error)

	// ListByEmoteID returns the conversions of an emote, newest first.
	ListByEmoteID(ctx context.Context, emoteID string) ([]*model.Conversion, error)

	// Update persists changes to an existing conversion.
	// Returns ErrConversionNotFound if the conversion does not exist.
	Update(ctx context.Context, conv *model.Conversion) error
}
