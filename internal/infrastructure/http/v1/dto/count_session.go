package dto

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/counting"
)

// CreateCountSessionRequest opens a count session over a scope.
type CreateCountSessionRequest struct {
	Type     string         `json:"type" binding:"omitempty,oneof=cycle full spot"`
	Scope    counting.Scope `json:"scope"`
	Counters []string       `json:"counters"`
	Notes    string         `json:"notes"`
}

// ToRequest converts DTO to a service request.
func (r *CreateCountSessionRequest) ToRequest() counting.CreateRequest {
	return counting.CreateRequest{
		Type:     counting.SessionType(r.Type),
		Scope:    r.Scope,
		Counters: r.Counters,
		Notes:    r.Notes,
	}
}

// EnterCountRequest records a count for a line addressed by path.
type EnterCountRequest struct {
	CountedQty *int64 `json:"countedQty" binding:"required"`
	Notes      string `json:"notes"`
	Version    *int   `json:"version"`
}

// ToRequest converts DTO to a service request.
func (r *EnterCountRequest) ToRequest(sessionID, lineID id.ID) counting.EntryRequest {
	return counting.EntryRequest{
		SessionID:       sessionID,
		LineID:          lineID,
		CountedQty:      *r.CountedQty,
		Notes:           r.Notes,
		ExpectedVersion: r.Version,
	}
}

// LookupCountRequest records a count for the line of an item at a location.
type LookupCountRequest struct {
	ItemID     string `json:"itemId" binding:"required"`
	Location   string `json:"location" binding:"required"`
	Lot        string `json:"lot"`
	CountedQty *int64 `json:"countedQty" binding:"required"`
	Notes      string `json:"notes"`
	Version    *int   `json:"version"`
}

// ToRequest converts DTO to a service request.
func (r *LookupCountRequest) ToRequest(sessionID id.ID) (counting.EntryRequest, error) {
	itemID, err := id.Parse(r.ItemID)
	if err != nil {
		return counting.EntryRequest{}, apperror.NewValidation("invalid itemId format").
			WithDetail("field", "itemId")
	}
	return counting.EntryRequest{
		SessionID:       sessionID,
		ItemID:          itemID,
		Location:        r.Location,
		Lot:             r.Lot,
		CountedQty:      *r.CountedQty,
		Notes:           r.Notes,
		ExpectedVersion: r.Version,
	}, nil
}

// CancelCountSessionRequest carries the cancellation reason.
type CancelCountSessionRequest struct {
	Reason string `json:"reason"`
}

// CountSessionListQuery filters GET /count-sessions.
type CountSessionListQuery struct {
	ListQuery
	CreatedRange
	Statuses []string `form:"status"`
	Types    []string `form:"type"`
}

// ToFilter converts the query to a domain filter. Status accepts the
// "counting" alias of active.
func (q CountSessionListQuery) ToFilter() (counting.ListFilter, error) {
	f := counting.ListFilter{
		ListFilter: q.ListQuery.ToFilter(),
		Created:    q.ToRange(),
	}
	for _, raw := range q.Statuses {
		st, err := counting.ParseStatus(raw)
		if err != nil {
			return counting.ListFilter{}, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, t := range q.Types {
		f.Types = append(f.Types, counting.SessionType(t))
	}
	return f, nil
}

// CountLineListQuery filters GET /count-sessions/:id/lines.
type CountLineListQuery struct {
	ListQuery
	Location      string `form:"location"`
	ItemID        string `form:"itemId"`
	Counted       *bool  `form:"counted"`
	Discrepancies bool   `form:"discrepancies"`
	Recount       bool   `form:"recount"`
}

// ToFilter converts the query to a domain filter.
func (q CountLineListQuery) ToFilter() (counting.LineFilter, error) {
	itemID, err := ParseOptionalID("itemId", q.ItemID)
	if err != nil {
		return counting.LineFilter{}, err
	}
	return counting.LineFilter{
		ListFilter:    q.ListQuery.ToFilter(),
		LocationCode:  q.Location,
		ItemID:        itemID,
		Counted:       q.Counted,
		Discrepancies: q.Discrepancies,
		Recount:       q.Recount,
	}, nil
}

// ApprovalResponse is the approved session with the corrections it posted.
type ApprovalResponse struct {
	Session   *counting.Session  `json:"session"`
	Movements []MovementResponse `json:"movements"`
}

// FromApproval creates response DTO from an approval result.
func FromApproval(res *counting.ApprovalResult) ApprovalResponse {
	return ApprovalResponse{
		Session:   res.Session,
		Movements: FromMovements(res.Movements),
	}
}
