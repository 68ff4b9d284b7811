package dto

import (
	"time"

	"stockledger/internal/domain/ledger"
)

// CreateMovementRequest records a movement. Drafts wait for completion of
// their batch; completed movements reach the ledger immediately.
type CreateMovementRequest struct {
	ItemID       string `json:"itemId" binding:"required"`
	Type         string `json:"type" binding:"required,oneof=receipt issue transfer adjustment"`
	Status       string `json:"status" binding:"omitempty,oneof=draft completed"`
	Quantity     int64  `json:"quantity" binding:"min=0"`
	FromLocation string `json:"fromLocation"`
	ToLocation   string `json:"toLocation"`
	BatchKey     string `json:"batchKey"`
	Reference    string `json:"reference"`
}

// ToEntity converts DTO to a movement.
func (r *CreateMovementRequest) ToEntity() (*ledger.Movement, error) {
	itemID, err := ParseOptionalID("itemId", r.ItemID)
	if err != nil {
		return nil, err
	}
	m := ledger.NewMovement(*itemID, ledger.MovementType(r.Type), r.Quantity)
	m.FromLocation = r.FromLocation
	m.ToLocation = r.ToLocation
	m.Reference = r.Reference
	if r.BatchKey != "" {
		m.BatchKey = r.BatchKey
	}
	if r.Status != "" {
		m.Status = ledger.MovementStatus(r.Status)
	}
	return m, nil
}

// MovementListQuery filters GET /movements.
type MovementListQuery struct {
	ListQuery
	CreatedRange
	ItemID    string   `form:"itemId"`
	Actor     string   `form:"actor"`
	Types     []string `form:"type"`
	Status    string   `form:"status" binding:"omitempty,oneof=draft completed"`
	BatchKey  string   `form:"batchKey"`
	Reference string   `form:"reference"`
}

// ToFilter converts the query to a domain filter.
func (q MovementListQuery) ToFilter() (ledger.MovementFilter, error) {
	itemID, err := ParseOptionalID("itemId", q.ItemID)
	if err != nil {
		return ledger.MovementFilter{}, err
	}
	f := ledger.MovementFilter{
		ListFilter: q.ListQuery.ToFilter(),
		ItemID:     itemID,
		Actor:      q.Actor,
		BatchKey:   q.BatchKey,
		Reference:  q.Reference,
		Created:    q.ToRange(),
	}
	for _, t := range q.Types {
		f.Types = append(f.Types, ledger.MovementType(t))
	}
	if q.Status != "" {
		st := ledger.MovementStatus(q.Status)
		f.Status = &st
	}
	return f, nil
}

// MovementResponse is the response body for a movement log entry.
type MovementResponse struct {
	ID                  string     `json:"id"`
	ItemID              string     `json:"itemId"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	Quantity            int64      `json:"quantity"`
	FromLocation        string     `json:"fromLocation,omitempty"`
	ToLocation          string     `json:"toLocation,omitempty"`
	BatchKey            string     `json:"batchKey"`
	Reference           string     `json:"reference,omitempty"`
	PreviousLocationQty *int64     `json:"previousLocationQty,omitempty"`
	PreviousAggregate   *int64     `json:"previousAggregate,omitempty"`
	CreatedBy           string     `json:"createdBy"`
	CreatedAt           time.Time  `json:"createdAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	Deleted             bool       `json:"deleted"`
	DeletedBy           string     `json:"deletedBy,omitempty"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	DeleteReason        string     `json:"deleteReason,omitempty"`
	Reversal            string     `json:"reversal,omitempty"`
	ReversalShortfall   int64      `json:"reversalShortfall,omitempty"`
	Version             int        `json:"version"`
}

// FromMovement creates response DTO from a movement.
func FromMovement(m *ledger.Movement) MovementResponse {
	return MovementResponse{
		ID:                  m.ID.String(),
		ItemID:              m.ItemID.String(),
		Type:                string(m.Type),
		Status:              string(m.Status),
		Quantity:            m.Quantity,
		FromLocation:        m.FromLocation,
		ToLocation:          m.ToLocation,
		BatchKey:            m.BatchKey,
		Reference:           m.Reference,
		PreviousLocationQty: m.PreviousLocationQty,
		PreviousAggregate:   m.PreviousAggregate,
		CreatedBy:           m.CreatedBy,
		CreatedAt:           m.CreatedAt,
		CompletedAt:         m.CompletedAt,
		Deleted:             m.Deleted,
		DeletedBy:           m.DeletedBy,
		DeletedAt:           m.DeletedAt,
		DeleteReason:        m.DeleteReason,
		Reversal:            string(m.Reversal),
		ReversalShortfall:   m.ReversalShortfall,
		Version:             m.Version,
	}
}

// FromMovements maps a slice of movements.
func FromMovements(ms []*ledger.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMovement(m))
	}
	return out
}

// DeleteMovementRequest carries the optional reversal reason.
type DeleteMovementRequest struct {
	Reason string `form:"reason" json:"reason"`
}

// BatchResponse lists the movements affected by a batch operation.
type BatchResponse struct {
	BatchKey  string             `json:"batchKey"`
	Movements []MovementResponse `json:"movements"`
}
