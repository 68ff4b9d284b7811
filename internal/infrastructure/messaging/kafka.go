// Package messaging forwards outbox events to external brokers.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

const writeTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher relays outbox messages to a single topic. Messages are keyed
// by aggregate id so events of one movement or session stay ordered within a
// partition.
type KafkaPublisher struct {
	writer MessageWriter
}

var _ postgres.OutboxHandler = (*KafkaPublisher)(nil)

// NewKafkaWriter builds the producer-side writer.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Handle implements postgres.OutboxHandler.
func (p *KafkaPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return fmt.Errorf("write %s event to kafka: %w", msg.EventType, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg *postgres.OutboxMessage) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.AggregateID.String()),
		Value: msg.Payload,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.EventType)},
			{Key: "aggregate-type", Value: []byte(msg.AggregateType)},
			{Key: "message-id", Value: []byte(msg.ID.String())},
		},
	}
}

// LogHandler acknowledges outbox messages by logging them. Used when no
// broker is configured.
type LogHandler struct{}

var _ postgres.OutboxHandler = LogHandler{}

// Handle implements postgres.OutboxHandler.
func (LogHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	logger.Info(ctx, "outbox event",
		"message_id", msg.ID,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"event_type", msg.EventType,
		"payload_bytes", len(msg.Payload),
	)
	return nil
}
