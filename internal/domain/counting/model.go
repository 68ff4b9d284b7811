// Package counting provides cycle-count sessions: a frozen picture of the
// snapshot is counted blind, reviewed, and approved into corrective ledger
// movements.
package counting

import (
	"context"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// SessionType classifies why a count was opened.
type SessionType string

const (
	TypeCycle SessionType = "cycle"
	TypeFull  SessionType = "full"
	TypeSpot  SessionType = "spot"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusReview    Status = "review"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts "counting" as an alias of active.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPlanned, StatusActive, StatusReview, StatusApproved, StatusCancelled:
		return s, nil
	case "counting":
		return StatusActive, nil
	default:
		return "", apperror.NewValidation("unknown session status").
			WithDetail("field", "status").
			WithDetail("value", raw)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// Stats are the running totals of a session.
type Stats struct {
	TotalLines       int         `db:"total_lines" json:"totalLines"`
	CountedLines     int         `db:"counted_lines" json:"countedLines"`
	DiscrepancyLines int         `db:"discrepancy_lines" json:"discrepancyLines"`
	MonetaryGap      types.Money `db:"monetary_gap" json:"monetaryGap"`
}

// Add returns s with delta applied.
func (s Stats) Add(delta Stats) Stats {
	return Stats{
		TotalLines:       s.TotalLines + delta.TotalLines,
		CountedLines:     s.CountedLines + delta.CountedLines,
		DiscrepancyLines: s.DiscrepancyLines + delta.DiscrepancyLines,
		MonetaryGap:      s.MonetaryGap.Add(delta.MonetaryGap),
	}
}

// IsZero reports whether applying s changes nothing.
func (s Stats) IsZero() bool {
	return s.TotalLines == 0 && s.CountedLines == 0 && s.DiscrepancyLines == 0 && s.MonetaryGap.IsZero()
}

// Session is a cycle-count document.
type Session struct {
	entity.BaseDocument

	// Code is CC-YYYY-NNNNN
	Code   string      `db:"code" json:"code"`
	Type   SessionType `db:"session_type" json:"type"`
	Status Status      `db:"status" json:"status"`
	Scope  Scope       `db:"scope" json:"scope"`

	// Counters restricts count entry to these users when non-empty
	Counters []string `db:"counters" json:"counters"`
	Notes    string   `db:"notes" json:"notes,omitempty"`

	Stats `json:"stats"`

	StartedAt    *time.Time `db:"started_at" json:"startedAt,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedBy   string     `db:"approved_by" json:"approvedBy,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`
}

// NewSession creates an active session.
func NewSession(typ SessionType, scope Scope) *Session {
	doc := entity.NewBaseDocument()
	started := doc.CreatedAt
	return &Session{
		BaseDocument: doc,
		Type:         typ,
		Status:       StatusActive,
		Scope:        scope,
		Counters:     []string{},
		Stats:        Stats{MonetaryGap: types.Zero()},
		StartedAt:    &started,
	}
}

// Validate implements entity.Validatable.
func (s *Session) Validate(ctx context.Context) error {
	switch s.Type {
	case TypeCycle, TypeFull, TypeSpot:
	default:
		return apperror.NewValidation("session type must be cycle, full or spot").
			WithDetail("field", "type").
			WithDetail("value", string(s.Type))
	}
	for _, c := range s.Counters {
		if strings.TrimSpace(c) == "" {
			return apperror.NewValidation("counter ids cannot be empty").
				WithDetail("field", "counters")
		}
	}
	return nil
}

// transition moves the session to next when it is currently in one of from.
func (s *Session) transition(action string, next Status, from ...Status) error {
	for _, f := range from {
		if s.Status == f {
			s.Status = next
			return nil
		}
	}
	return apperror.NewInvalidStateTransition("count session", string(s.Status), action).
		WithDetail("to", string(next))
}

// AllowsCounter reports whether userID may enter counts.
func (s *Session) AllowsCounter(userID string) bool {
	if len(s.Counters) == 0 {
		return true
	}
	for _, c := range s.Counters {
		if c == userID {
			return true
		}
	}
	return false
}

// Line is one (item, location, lot) to count, with the system quantity frozen
// at session creation.
type Line struct {
	ID         id.ID `db:"id" json:"id"`
	SessionID  id.ID `db:"session_id" json:"sessionId"`
	LineNo     int   `db:"line_no" json:"lineNo"`
	SnapshotID id.ID `db:"snapshot_id" json:"snapshotId"`

	ItemID       id.ID  `db:"item_id" json:"itemId"`
	ItemCode     string `db:"item_code" json:"itemCode"`
	ItemName     string `db:"item_name" json:"itemName"`
	LocationCode string `db:"location_code" json:"locationCode"`
	Lot          string `db:"lot" json:"lot"`

	SystemQty     int64       `db:"system_qty" json:"systemQty"`
	CountedQty    *int64      `db:"counted_qty" json:"countedQty"`
	DiffQty       int64       `db:"diff_qty" json:"diffQty"`
	IsDiscrepancy bool        `db:"is_discrepancy" json:"isDiscrepancy"`
	UnitCost      types.Money `db:"unit_cost" json:"unitCost"`

	CountedBy string     `db:"counted_by" json:"countedBy,omitempty"`
	CountedAt *time.Time `db:"counted_at" json:"countedAt,omitempty"`
	Notes     string     `db:"notes" json:"notes,omitempty"`
	Recount   bool       `db:"recount" json:"recount"`
	Version   int        `db:"version" json:"version"`
}

// IsCounted reports whether a count has been entered.
func (l *Line) IsCounted() bool {
	return l.CountedQty != nil
}

// contribution is what the line adds to session stats in its current state.
func (l *Line) contribution() Stats {
	st := Stats{MonetaryGap: types.Zero()}
	if !l.IsCounted() {
		return st
	}
	st.CountedLines = 1
	if l.IsDiscrepancy {
		st.DiscrepancyLines = 1
	}
	st.MonetaryGap = types.Extend(l.DiffQty, l.UnitCost)
	return st
}

// Record stores a counted quantity and returns the change to session stats.
func (l *Line) Record(qty int64, actor, notes string, at time.Time) (Stats, error) {
	if qty < 0 {
		return Stats{}, apperror.NewValidation("counted quantity cannot be negative").
			WithDetail("field", "countedQty").
			WithDetail("value", qty)
	}
	before := l.contribution()

	l.CountedQty = &qty
	l.DiffQty = qty - l.SystemQty
	l.IsDiscrepancy = l.DiffQty != 0
	l.CountedBy = actor
	l.CountedAt = &at
	l.Recount = false
	if notes != "" {
		l.Notes = notes
	}

	return delta(before, l.contribution()), nil
}

// Reset clears the count so the line must be counted again.
func (l *Line) Reset() Stats {
	before := l.contribution()
	l.CountedQty = nil
	l.DiffQty = 0
	l.IsDiscrepancy = false
	l.CountedBy = ""
	l.CountedAt = nil
	l.Recount = true
	return delta(before, l.contribution())
}

func delta(before, after Stats) Stats {
	return Stats{
		CountedLines:     after.CountedLines - before.CountedLines,
		DiscrepancyLines: after.DiscrepancyLines - before.DiscrepancyLines,
		MonetaryGap:      after.MonetaryGap.Sub(before.MonetaryGap),
	}
}

// Candidate is a snapshot record resolved by a scope, joined with the item
// and location attributes the scope filters on.
type Candidate struct {
	SnapshotID   id.ID       `db:"snapshot_id"`
	ItemID       id.ID       `db:"item_id"`
	ItemCode     string      `db:"item_code"`
	ItemName     string      `db:"item_name"`
	Category     string      `db:"category"`
	ABCClass     string      `db:"abc_class"`
	UnitCost     types.Money `db:"unit_cost"`
	LocationCode string      `db:"location_code"`
	Zone         string      `db:"zone"`
	Lot          string      `db:"lot"`
	Quantity     int64       `db:"quantity"`
}

// NewLine freezes a candidate into line lineNo of a session.
func NewLine(sessionID id.ID, lineNo int, c Candidate) *Line {
	return &Line{
		ID:           id.New(),
		SessionID:    sessionID,
		LineNo:       lineNo,
		SnapshotID:   c.SnapshotID,
		ItemID:       c.ItemID,
		ItemCode:     c.ItemCode,
		ItemName:     c.ItemName,
		LocationCode: c.LocationCode,
		Lot:          c.Lot,
		SystemQty:    c.Quantity,
		UnitCost:     c.UnitCost,
		Version:      1,
	}
}
