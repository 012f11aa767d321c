// Package events publishes order lifecycle events to Kafka for downstream
// consumers (analytics, inventory). Publishing is best-effort: callers log
// failures and never fail the triggering operation on one.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/models"
)

type OrderEvent struct {
	Event      string        `json:"event"` // placed, status_changed, cancelled
	OrderID    string        `json:"order_id"`
	UserID     string        `json:"user_id"`
	Status     models.Status `json:"status"`
	Total      string        `json:"total"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg *config.KafkaConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishOrderEvent writes one keyed JSON message per lifecycle event.
func (p *Publisher) PublishOrderEvent(ctx context.Context, order models.Order, event string) error {
	payload, err := json.Marshal(OrderEvent{
		Event:      event,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total.String(),
		OccurredAt: time.Now(),
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%s", event, order.ID)),
		Value: payload,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
