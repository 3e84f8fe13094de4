package deckchat

import (
	"context"
	"time"
)

type EventType string

const (
	EventIndexed   EventType = "indexed"
	EventForgotten EventType = "forgotten"
)

// Event describes a change to a user's index.
type Event struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id"`
	DocumentID     int64     `json:"document_id,omitempty"`
	FilePath       string    `json:"file_path,omitempty"`
	ChunkCount     int       `json:"chunk_count,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher receives index lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
