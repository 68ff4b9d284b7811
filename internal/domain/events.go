package domain

import (
	"context"
	"encoding/json"
	"time"

	"stockledger/internal/core/id"
)

// Event types written to the transactional outbox.
const (
	EventMovementCompleted    = "MovementCompleted"
	EventMovementReversed     = "MovementReversed"
	EventSnapshotSynced       = "SnapshotSynced"
	EventCountSessionApproved = "CountSessionApproved"
)

// Event is a domain event recorded in the same transaction as the change
// that produced it.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// EventPublisher records events. Implementations must join the caller's
// transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// AuditAction represents the type of audited operation.
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionReverse AuditAction = "reverse"
	AuditActionApprove AuditAction = "approve"
	AuditActionCancel  AuditAction = "cancel"
)

// AuditLogger persists change history for ledger-affecting operations.
type AuditLogger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes map[string]any) error
}

// NopAuditLogger discards audit entries.
type NopAuditLogger struct{}

// LogChange implements AuditLogger.
func (NopAuditLogger) LogChange(context.Context, string, id.ID, AuditAction, map[string]any) error {
	return nil
}

// AuditEntry is a stored audit record as returned to readers.
type AuditEntry struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   id.ID           `json:"entityId"`
	Action     AuditAction     `json:"action"`
	UserID     string          `json:"userId"`
	Changes    json.RawMessage `json:"changes"`
	RequestID  string          `json:"requestId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditReader returns an entity's change history, newest first.
type AuditReader interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error)
}
