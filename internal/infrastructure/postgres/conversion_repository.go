package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConversionRepository implements repository.ConversionRepository using PostgreSQL.
type ConversionRepository struct {
	db DBTX
}

// NewConversionRepository creates a new ConversionRepository instance.
func NewConversionRepository(db DBTX) *ConversionRepository {
	return &ConversionRepository{db: db}
}

const conversionColumns = `id, emote_id, source_url, status, object_key, error_message, created_at, updated_at`

// Create persists a new conversion.
func (r *ConversionRepository) Create(ctx context.Context, conv *model.Conversion) error {
	const query = `
		INSERT INTO conversions (` + conversionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableConversions).Inc()

	_, err := r.db.Exec(ctx, query,
		conv.ID,
		conv.EmoteID,
		conv.SourceURL,
		conv.Status.String(),
		conv.ObjectKey,
		nullString(conv.ErrorMessage),
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateConversion
		}
		return fmt.Errorf("failed to create conversion: %w", err)
	}

	return nil
}

// GetByID retrieves a conversion by its unique identifier.
func (r *ConversionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	const query = `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE id = $1
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableConversions).Inc()

	conv, err := scanConversion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrConversionNotFound
		}
		return nil, fmt.Errorf("failed to get conversion by ID: %w", err)
	}

	return conv, nil
}

// ListByEmoteID returns the conversions of an emote, newest first.
func (r *ConversionRepository) ListByEmoteID(ctx context.Context, emoteID string) ([]*model.Conversion, error) {
	const query = `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE emote_id = $1
		ORDER BY created_at DESC
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableConversions).Inc()

	rows, err := r.db.Query(ctx, query, emoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions by emote ID: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversion
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversions: %w", err)
	}

	return convs, nil
}

// Update persists status, key and error changes of an existing conversion.
func (r *ConversionRepository) Update(ctx context.Context, conv *model.Conversion) error {
	const query = `
		UPDATE conversions
		SET status = $2, object_key = $3, error_message = $4, updated_at = $5
		WHERE id = $1
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableConversions).Inc()

	conv.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, query,
		conv.ID,
		conv.Status.String(),
		conv.ObjectKey,
		nullString(conv.ErrorMessage),
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversion: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrConversionNotFound
	}

	return nil
}

// scanConversion scans one row from either pgx.Row or pgx.Rows.
func scanConversion(row pgx.Row) (*model.Conversion, error) {
	var (
		conv         model.Conversion
		status       string
		errorMessage *string
	)

	err := row.Scan(
		&conv.ID,
		&conv.EmoteID,
		&conv.SourceURL,
		&status,
		&conv.ObjectKey,
		&errorMessage,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.Status = model.Status(status)
	if errorMessage != nil {
		conv.ErrorMessage = *errorMessage
	}

	return &conv, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time verification that ConversionRepository implements repository.ConversionRepository.
var _ repository.ConversionRepository = (*ConversionRepository)(nil)
