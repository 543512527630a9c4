package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Topics для Kafka
const (
	TopicStatusEvents    = "fulfillment.status.events"
	TopicDeadLetterQueue = "fulfillment.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// StatusEventEnvelope — wire-формат статусного события конвейера.
type StatusEventEnvelope struct {
	ID          string           `json:"id"`
	OrderID     string           `json:"order_id"`
	EventType   domain.EventType `json:"event_type"`
	Message     string           `json:"message,omitempty"`
	StockLevels map[string]int32 `json:"stock_levels,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
	PublishedAt time.Time        `json:"published_at"`
}

// NewStatusEventEnvelope оборачивает событие для публикации в Kafka.
func NewStatusEventEnvelope(event domain.StatusEvent) StatusEventEnvelope {
	return StatusEventEnvelope{
		ID:          event.ID,
		OrderID:     event.OrderID,
		EventType:   event.Type,
		Message:     event.Message,
		StockLevels: event.StockLevels,
		OccurredAt:  event.OccurredAt,
		PublishedAt: time.Now().UTC(),
	}
}
