package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

const (
	outboxTable    = "sys_outbox"
	outboxDLQTable = "sys_outbox_dlq"

	// maxOutboxRetries is the retry budget before a message is parked as failed.
	maxOutboxRetries = 5
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage is one row of sys_outbox. Payload is the JSON encoding of
// domain.Event.Payload.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

var outboxColumns = ExtractDBColumns[OutboxMessage]()

var errOutboxNoTx = errors.New("outbox publish requires transaction context")

// OutboxPublisher records domain events in sys_outbox as part of the
// caller's transaction, so an event exists exactly when its change commits.
type OutboxPublisher struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Publish implements domain.EventPublisher.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.Event) error {
	return p.PublishBatch(ctx, []domain.Event{event})
}

// PublishBatch writes events with one multi-row INSERT.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []domain.Event) error {
	t := p.txManager.GetTx(ctx)
	if t == nil {
		return errOutboxNoTx
	}
	if len(events) == 0 {
		return nil
	}

	sql, args, err := p.insertEvents(events, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := t.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert outbox messages: %w", err)
	}
	return nil
}

func (p *OutboxPublisher) insertEvents(events []domain.Event, now time.Time) (string, []any, error) {
	q := p.builder.Insert(outboxTable).
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at")
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return "", nil, fmt.Errorf("marshal %s payload: %w", e.EventType, err)
		}
		q = q.Values(id.New(), e.AggregateType, e.AggregateID, e.EventType, payload, OutboxStatusPending, now)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build outbox insert: %w", err)
	}
	return sql, args, nil
}

// OutboxHandler delivers one message. A returned error schedules a retry.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay forwards pending outbox messages to an OutboxHandler.
// Used by the background worker.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	handler   OutboxHandler
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

func NewOutboxRelay(pool *pgxpool.Pool, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		pool:      pool,
		batchSize: batchSize,
		handler:   handler,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch claims up to batchSize due messages with FOR UPDATE SKIP
// LOCKED, hands each to the handler and records the outcome, all in one
// transaction. Parallel workers never deliver the same message twice.
// It returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	sql, args, err := r.builder.Select(outboxColumns...).
		From(outboxTable).
		Where(squirrel.Eq{"status": OutboxStatusPending}).
		Where(squirrel.Or{squirrel.Eq{"next_retry_at": nil}, squirrel.LtOrEq{"next_retry_at": r.now()}}).
		OrderBy("created_at").
		Limit(uint64(r.batchSize)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox claim: %w", err)
	}

	delivered := 0
	err = pgx.BeginFunc(ctx, r.pool, func(t pgx.Tx) error {
		var batch []*OutboxMessage
		if err := pgxscan.Select(ctx, t, &batch, sql, args...); err != nil {
			return fmt.Errorf("claim outbox messages: %w", err)
		}
		for _, msg := range batch {
			ok, err := r.deliver(ctx, t, msg)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, nil
}

// deliver reports whether the handler accepted msg. The error is non-nil
// only when recording the outcome failed.
func (r *OutboxRelay) deliver(ctx context.Context, t pgx.Tx, msg *OutboxMessage) (bool, error) {
	now := r.now()
	update := r.builder.Update(outboxTable).Where(squirrel.Eq{"id": msg.ID})

	handleErr := r.handler.Handle(ctx, msg)
	if handleErr == nil {
		update = update.Set("status", OutboxStatusPublished).Set("published_at", now)
	} else {
		attempt := msg.RetryCount + 1
		status := OutboxStatusPending
		if attempt >= maxOutboxRetries {
			status = OutboxStatusFailed
		}
		logger.Warn(ctx, "outbox message failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"retry", attempt,
			"error", handleErr,
		)
		update = update.
			Set("retry_count", attempt).
			Set("last_error", handleErr.Error()).
			Set("next_retry_at", nextRetry(now, attempt)).
			Set("status", status)
	}

	sql, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build outbox update: %w", err)
	}
	if _, err := t.Exec(ctx, sql, args...); err != nil {
		return false, fmt.Errorf("record outbox outcome for %s: %w", msg.ID, err)
	}
	return handleErr == nil, nil
}

// nextRetry backs off linearly, one more minute per attempt.
func nextRetry(now time.Time, attempt int) time.Time {
	return now.Add(time.Duration(attempt) * time.Minute)
}

// MoveToDLQ moves messages that exhausted their retries to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM `+outboxTable+`
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO `+outboxDLQTable+`
		SELECT *, NOW(), last_error FROM moved
	`, OutboxStatusFailed, maxOutboxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}
