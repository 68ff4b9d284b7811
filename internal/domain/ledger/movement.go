package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/location"
)

// MovementType is the kind of quantity change.
type MovementType string

const (
	MovementReceipt    MovementType = "receipt"
	MovementIssue      MovementType = "issue"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
)

// MovementStatus is the movement lifecycle state. Draft to completed is the
// only transition; deletion is a flag, not a status.
type MovementStatus string

const (
	StatusDraft     MovementStatus = "draft"
	StatusCompleted MovementStatus = "completed"
)

// ReversalKind records how a deleted movement was undone.
type ReversalKind string

const (
	// ReversalNone marks drafts deleted without ledger effect.
	ReversalNone    ReversalKind = "none"
	ReversalExact   ReversalKind = "exact"
	ReversalClamped ReversalKind = "clamped"
)

// ReversalOutcome is the result of undoing a movement.
type ReversalOutcome struct {
	Kind      ReversalKind `json:"kind"`
	Shortfall int64        `json:"shortfall,omitempty"`
}

// Movement is one entry of the movement log. Every ledger mutation writes
// exactly one movement per affected item.
type Movement struct {
	ID     id.ID          `db:"id" json:"id"`
	ItemID id.ID          `db:"item_id" json:"itemId"`
	Type   MovementType   `db:"type" json:"type"`
	Status MovementStatus `db:"status" json:"status"`

	// Quantity is positive; for adjustments it is the new absolute value
	Quantity     int64  `db:"quantity" json:"quantity"`
	FromLocation string `db:"from_location" json:"fromLocation,omitempty"`
	ToLocation   string `db:"to_location" json:"toLocation,omitempty"`

	BatchKey  string `db:"batch_key" json:"batchKey"`
	Reference string `db:"reference" json:"reference,omitempty"`

	// Captured on completion of an adjustment
	PreviousLocationQty *int64 `db:"prev_location_qty" json:"previousLocationQty,omitempty"`
	PreviousAggregate   *int64 `db:"prev_aggregate" json:"previousAggregate,omitempty"`

	CreatedBy   string     `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`

	Deleted           bool         `db:"deleted" json:"deleted"`
	DeletedBy         string       `db:"deleted_by" json:"deletedBy,omitempty"`
	DeletedAt         *time.Time   `db:"deleted_at" json:"deletedAt,omitempty"`
	DeleteReason      string       `db:"delete_reason" json:"deleteReason,omitempty"`
	Reversal          ReversalKind `db:"reversal" json:"reversal,omitempty"`
	ReversalShortfall int64        `db:"reversal_shortfall" json:"reversalShortfall,omitempty"`

	Version int `db:"version" json:"version"`
}

// NewMovement creates a draft movement in its own batch.
func NewMovement(itemID id.ID, typ MovementType, qty int64) *Movement {
	return &Movement{
		ID:        id.New(),
		ItemID:    itemID,
		Type:      typ,
		Status:    StatusDraft,
		Quantity:  qty,
		BatchKey:  id.NewBatchKey(),
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
}

// Normalize canonicalizes location keys and fills defaults.
func (m *Movement) Normalize() {
	m.FromLocation = location.CanonicalKey(m.FromLocation)
	m.ToLocation = location.CanonicalKey(m.ToLocation)
	if m.BatchKey == "" {
		m.BatchKey = id.NewBatchKey()
	}
	if m.Status == "" {
		m.Status = StatusDraft
	}
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

// Validate implements entity.Validatable. Location requirements depend on
// the type: receipt and adjustment need a destination, issue a source,
// transfer both.
func (m *Movement) Validate(ctx context.Context) error {
	if id.IsNil(m.ItemID) {
		return apperror.NewValidation("item is required").
			WithDetail("field", "itemId")
	}

	switch m.Status {
	case StatusDraft, StatusCompleted:
	default:
		return apperror.NewValidation("status must be draft or completed").
			WithDetail("field", "status").
			WithDetail("value", string(m.Status))
	}

	from := location.CanonicalKey(m.FromLocation)
	to := location.CanonicalKey(m.ToLocation)

	switch m.Type {
	case MovementReceipt:
		if to == "" {
			return missingLocation(m.Type, "toLocation")
		}
	case MovementIssue:
		if from == "" {
			return missingLocation(m.Type, "fromLocation")
		}
	case MovementTransfer:
		if from == "" {
			return missingLocation(m.Type, "fromLocation")
		}
		if to == "" {
			return missingLocation(m.Type, "toLocation")
		}
		if from == to {
			return apperror.NewValidation("transfer source and destination must differ").
				WithDetail("location", from)
		}
	case MovementAdjustment:
		if to == "" {
			return missingLocation(m.Type, "toLocation")
		}
	default:
		return apperror.NewValidation("unknown movement type").
			WithDetail("field", "type").
			WithDetail("value", string(m.Type))
	}

	if m.Type == MovementAdjustment {
		if m.Quantity < 0 {
			return apperror.NewValidation("adjusted quantity cannot be negative").
				WithDetail("field", "quantity")
		}
	} else if m.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", m.Quantity)
	}

	return nil
}

// IsCompleted reports whether the movement affected the ledger.
func (m *Movement) IsCompleted() bool {
	return m.Status == StatusCompleted
}

// Apply performs the movement against an item and flips it to completed.
// The item is left untouched on error.
func (m *Movement) Apply(item *StockItem, at time.Time) error {
	var err error
	switch m.Type {
	case MovementReceipt:
		err = item.Receive(m.ToLocation, m.Quantity)
	case MovementIssue:
		err = item.Issue(m.FromLocation, m.Quantity)
	case MovementTransfer:
		err = item.Transfer(m.FromLocation, m.ToLocation, m.Quantity)
	case MovementAdjustment:
		var prevLoc, prevAgg int64
		prevLoc, prevAgg, err = item.Adjust(m.ToLocation, m.Quantity)
		if err == nil {
			m.PreviousLocationQty = &prevLoc
			m.PreviousAggregate = &prevAgg
		}
	default:
		err = apperror.NewValidation("unknown movement type").
			WithDetail("value", string(m.Type))
	}
	if err != nil {
		return err
	}

	m.Status = StatusCompleted
	m.CompletedAt = &at
	return nil
}

// MarkDeleted flags the movement and records how it was reversed.
func (m *Movement) MarkDeleted(actor, reason string, outcome ReversalOutcome, at time.Time) {
	m.Deleted = true
	m.DeletedBy = actor
	m.DeletedAt = &at
	m.DeleteReason = reason
	m.Reversal = outcome.Kind
	m.ReversalShortfall = outcome.Shortfall
}

func missingLocation(typ MovementType, field string) error {
	return apperror.NewValidation(string(typ)+" requires "+field).
		WithDetail("field", field).
		WithDetail("type", string(typ))
}
