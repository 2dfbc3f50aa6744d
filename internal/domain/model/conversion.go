package model

import (
	"errors"
	"path"
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of a conversion.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Valid status transitions:
// PENDING -> PROCESSING -> READY
//        \             \-> FAILED
//         \-> READY (clip already stored)
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusReady},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Conversion tracks one asynchronous emote-to-clip conversion.
type Conversion struct {
	ID        uuid.UUID
	EmoteID   string
	SourceURL string
	Status    Status
	// ObjectKey is where the finished clip is stored.
	ObjectKey string
	// ErrorMessage is the user-facing reason for FAILED.
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrEmptySourceURL    = errors.New("source URL cannot be empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSourceURLTooLong  = errors.New("source URL exceeds maximum length of 2048 characters")
)

const maxSourceURLLength = 2048

// NewConversion creates a new Conversion with PENDING status.
// The clip key is derived from the emote ID found in sourceURL.
func NewConversion(sourceURL string) (*Conversion, error) {
	if sourceURL == "" {
		return nil, ErrEmptySourceURL
	}
	if len(sourceURL) > maxSourceURLLength {
		return nil, ErrSourceURLTooLong
	}

	emoteID := ExtractEmoteID(sourceURL)
	now := time.Now()
	return &Conversion{
		ID:        uuid.New(),
		EmoteID:   emoteID,
		SourceURL: sourceURL,
		Status:    StatusPending,
		ObjectKey: ClipKey(emoteID),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ClipKey returns the storage key of the clip for an emote.
// Format: clips/{emote_id}.webm
func ClipKey(emoteID string) string {
	return path.Join("clips", emoteID+".webm")
}

// TransitionTo attempts to change the conversion status.
// Returns error if the transition is not allowed.
func (c *Conversion) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !c.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	c.Status = next
	c.UpdatedAt = time.Now()
	return nil
}

// Fail moves the conversion to FAILED and records the reason.
func (c *Conversion) Fail(reason string) error {
	if err := c.TransitionTo(StatusFailed); err != nil {
		return err
	}
	c.ErrorMessage = reason
	return nil
}

// IsReady returns true if the clip can be downloaded.
func (c *Conversion) IsReady() bool {
	return c.Status == StatusReady
}

// IsFailed returns true if the conversion failed.
func (c *Conversion) IsFailed() bool {
	return c.Status == StatusFailed
}
