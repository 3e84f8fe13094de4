package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"deckrag/src/core/deckchat"
	"deckrag/src/storage/postgres/ingestionctrl"
)

const (
	Topic = "deck_events"

	eventTypeKey = "event_type"
)

// Publisher sends deck lifecycle events to the message queue.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{
		publisher: publisher,
		topic:     Topic,
	}
}

func (p *Publisher) Publish(ctx context.Context, evt deckchat.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(eventTypeKey, string(evt.Type))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event message: %w", err)
	}
	return nil
}

// HistoryRepository records what each user has indexed.
type HistoryRepository interface {
	RecordIndexed(ctx context.Context, ingestion *ingestionctrl.Ingestion) error
	MarkForgotten(ctx context.Context, userID string, at time.Time) error
}

// Handler consumes deck events and keeps the ingestion history.
type Handler struct {
	repo   HistoryRepository
	logger watermill.LoggerAdapter
}

func NewHandler(repo HistoryRepository, logger watermill.LoggerAdapter) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// Handle processes one event message. Malformed messages are dropped.
func (h *Handler) Handle(msg *message.Message) error {
	var evt deckchat.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		h.logger.Error("Dropping malformed deck event", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	ctx := msg.Context()
	fields := watermill.LogFields{"type": evt.Type, "user_id": evt.UserID}

	switch evt.Type {
	case deckchat.EventIndexed:
		err := h.repo.RecordIndexed(ctx, &ingestionctrl.Ingestion{
			ID:             evt.DocumentID,
			UserID:         evt.UserID,
			FilePath:       evt.FilePath,
			ChunkCount:     evt.ChunkCount,
			EmbeddingModel: evt.EmbeddingModel,
			IndexedAt:      evt.OccurredAt,
		})
		if err != nil {
			return fmt.Errorf("failed to record indexed deck: %w", err)
		}
	case deckchat.EventForgotten:
		if err := h.repo.MarkForgotten(ctx, evt.UserID, evt.OccurredAt); err != nil {
			return fmt.Errorf("failed to record forgotten deck: %w", err)
		}
	default:
		h.logger.Info("Ignoring unknown deck event", fields)
		return nil
	}

	h.logger.Info("Deck event processed", fields)
	return nil
}
