package kafka

import (
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// EventTopicPublisher публикует статусные события конвейера в Kafka topic.
// Ключом сообщения служит order_id: события одного заказа попадают в одну
// партицию и сохраняют порядок.
type EventTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewEventPublisher создаёт Kafka-паблишер для статусных событий.
func NewEventPublisher(producer *Producer, topic string) domain.EventPublisher {
	if topic == "" {
		topic = TopicStatusEvents
	}
	return &EventTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *EventTopicPublisher) Publish(event domain.StatusEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}

	key := event.OrderID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishEvent(p.topic, key, NewStatusEventEnvelope(event))
}

var _ domain.EventPublisher = (*EventTopicPublisher)(nil)
