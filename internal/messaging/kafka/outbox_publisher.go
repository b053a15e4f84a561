package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka,
// выбирая topic по типу агрегата: события заказа и складские сигналы
// уходят в разные topic'и с партиционированием по AggregateID.
type OutboxTopicPublisher struct {
	producer   *Producer
	orderTopic string
	stockTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, orderTopic, stockTopic string) domain.OutboxPublisher {
	if orderTopic == "" {
		orderTopic = TopicOrderEvents
	}
	if stockTopic == "" {
		stockTopic = TopicStockAlerts
	}
	return &OutboxTopicPublisher{
		producer:   producer,
		orderTopic: orderTopic,
		stockTopic: stockTopic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := p.orderTopic
	if event.AggregateType == "stock" {
		topic = p.stockTopic
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
