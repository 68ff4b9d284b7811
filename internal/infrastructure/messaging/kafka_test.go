package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/postgres"
)

type fakeWriter struct {
	messages    []kafka.Message
	err         error
	hadDeadline bool
	closed      bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.hadDeadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func outboxMessage() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "Movement",
		AggregateID:   id.New(),
		EventType:     "MovementCompleted",
		Payload:       []byte(`{"quantity":5}`),
		CreatedAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Handle(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	msg := outboxMessage()

	require.NoError(t, p.Handle(context.Background(), msg))

	require.Len(t, w.messages, 1)
	got := w.messages[0]
	assert.True(t, w.hadDeadline)
	assert.Equal(t, msg.AggregateID.String(), string(got.Key))
	assert.JSONEq(t, `{"quantity":5}`, string(got.Value))
	assert.Equal(t, msg.CreatedAt, got.Time)

	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "MovementCompleted", headers["event-type"])
	assert.Equal(t, "Movement", headers["aggregate-type"])
	assert.Equal(t, msg.ID.String(), headers["message-id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_HandleError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("broker down")})

	err := p.Handle(context.Background(), outboxMessage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MovementCompleted")
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "stockledger.events")

	assert.Equal(t, "stockledger.events", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestLogHandler(t *testing.T) {
	assert.NoError(t, LogHandler{}.Handle(context.Background(), outboxMessage()))
}
