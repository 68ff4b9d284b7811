package snapshot

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository persists snapshot records.
type Repository interface {
	// Upsert writes records by natural key. Only the quantity and
	// UpdatedAt of an existing record change, and only when the quantity
	// differs. Returns the number of rows inserted or changed.
	Upsert(ctx context.Context, records []*Record) (int64, error)

	Get(ctx context.Context, key Key) (*Record, error)
	GetByID(ctx context.Context, id id.ID) (*Record, error)
	List(ctx context.Context, filter Filter) (domain.ListResult[*Record], error)

	// SetCounted overwrites the quantity with a counted value and stamps
	// LastCountedAt.
	SetCounted(ctx context.Context, id id.ID, qty int64, at time.Time) error

	// TouchMovement stamps LastMovementAt on every lot of item at location.
	TouchMovement(ctx context.Context, itemID id.ID, locationCode string, at time.Time) error

	// ZeroInactive zeroes the records of items that are no longer active.
	ZeroInactive(ctx context.Context, at time.Time) (int64, error)
}
