package repository

import (
	"context"

	"github.com/google/uuid"
)

// ConversionTask is the message asking a worker to convert one emote.
type ConversionTask struct {
	ConversionID uuid.UUID `json:"conversion_id"`
	SourceURL    string    `json:"source_url"`
	ObjectKey    string    `json:"object_key"`
	RetryCount   int       `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishConversionTask sends a conversion task to the queue.
	PublishConversionTask(ctx context.Context, task ConversionTask) error

	// ConsumeConversionTasks blocks delivering tasks to handler until ctx is
	// cancelled or the delivery channel closes. A handler error schedules a
	// retry; tasks past the retry limit are dropped.
	ConsumeConversionTasks(ctx context.Context, handler func(ctx context.Context, task ConversionTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
