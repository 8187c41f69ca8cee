// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const TypeOrderCommitted = "order.committed"

// OrderCommitted is the event payload. Owner ids are not included.
type OrderCommitted struct {
	Type           string             `json:"type"`
	OrderNumber    string             `json:"orderNumber"`
	IdempotencyKey string             `json:"idempotencyKey"`
	OwnerKind      domain.OwnerKind   `json:"ownerKind"`
	Lines          []domain.OrderLine `json:"items"`
	TotalCents     int64              `json:"total"`
	Currency       string             `json:"currency"`
	CommittedAt    time.Time          `json:"committedAt"`
}

type Publisher interface {
	PublishOrderCommitted(ctx context.Context, order *domain.Order) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafka returns a publisher writing to topic. Messages are keyed by order
// number so events for one order stay on one partition.
func NewKafka(brokers []string, topic string, logger *zap.Logger) Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger) *kafkaPublisher {
	return &kafkaPublisher{writer: w, logger: logging.OrNop(logger)}
}

func (p *kafkaPublisher) PublishOrderCommitted(ctx context.Context, order *domain.Order) error {
	payload, err := json.Marshal(OrderCommitted{
		Type:           TypeOrderCommitted,
		OrderNumber:    order.Number,
		IdempotencyKey: order.IdempotencyKey,
		OwnerKind:      order.Owner.Kind,
		Lines:          order.Lines,
		TotalCents:     order.TotalCents,
		Currency:       order.Currency,
		CommittedAt:    order.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(order.Number),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(TypeOrderCommitted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	p.logger.Debug("order event published", zap.String("order_number", order.Number))
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type nopPublisher struct{}

// Nop discards events; used when no brokers are configured.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) PublishOrderCommitted(context.Context, *domain.Order) error { return nil }

func (nopPublisher) Close() error { return nil }
