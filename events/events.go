// Package events publishes order lifecycle events for downstream consumers
// such as the point-of-sale integration.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/order"
)

// TypeOrderPlaced is emitted once an order was accepted by the remote store.
const TypeOrderPlaced = "order.placed"

// OrderEvent is the message body.
type OrderEvent struct {
	Type       string      `json:"type"`
	OrderID    string      `json:"orderId"`
	Queued     bool        `json:"queued"`
	OccurredAt time.Time   `json:"occurredAt"`
	Order      order.Order `json:"order"`
}

// Publisher sends order events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, id string, o order.Order, queued bool) error
	Close() error
}

// NoOpPublisher drops every event
type NoOpPublisher struct{}

func (NoOpPublisher) PublishOrderPlaced(context.Context, string, order.Order, bool) error {
	return nil
}

func (NoOpPublisher) Close() error { return nil }

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic, keyed by idempotency key so
// every event of one order lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	logger core.Logger
	now    func() time.Time
}

// NewKafkaWriter builds the writer used by KafkaPublisher
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers: %w", core.ErrMissingConfiguration)
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic: %w", core.ErrMissingConfiguration)
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}, nil
}

// NewKafkaPublisher creates a publisher for cfg
func NewKafkaPublisher(cfg core.EventsConfig, logger core.Logger) (*KafkaPublisher, error) {
	w, err := NewKafkaWriter(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	return newKafkaPublisher(w, logger), nil
}

func newKafkaPublisher(w messageWriter, logger core.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		logger: core.ComponentLogger(logger, "events"),
		now:    time.Now,
	}
}

// PublishOrderPlaced emits TypeOrderPlaced for an accepted order
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, id string, o order.Order, queued bool) error {
	evt := OrderEvent{
		Type:       TypeOrderPlaced,
		OrderID:    id,
		Queued:     queued,
		OccurredAt: p.now().UTC(),
		Order:      o,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", TypeOrderPlaced, err)
	}
	key := o.IdempotencyKey
	if key == "" {
		key = id
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("Failed to publish order event", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
		return fmt.Errorf("publish %s: %w", TypeOrderPlaced, err)
	}
	p.logger.Debug("Order event published", map[string]interface{}{
		"order_id": id,
		"queued":   queued,
	})
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
