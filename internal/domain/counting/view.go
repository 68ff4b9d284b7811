package counting

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
)

// BlindLine is what a counter sees: no system quantity and nothing derived
// from it.
type BlindLine struct {
	ID           id.ID      `json:"id"`
	SessionID    id.ID      `json:"sessionId"`
	LineNo       int        `json:"lineNo"`
	ItemID       id.ID      `json:"itemId"`
	ItemCode     string     `json:"itemCode"`
	ItemName     string     `json:"itemName"`
	LocationCode string     `json:"locationCode"`
	Lot          string     `json:"lot"`
	CountedQty   *int64     `json:"countedQty"`
	CountedBy    string     `json:"countedBy,omitempty"`
	CountedAt    *time.Time `json:"countedAt,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Recount      bool       `json:"recount"`
	Version      int        `json:"version"`
}

// Blind strips the expected quantity from a line.
func (l *Line) Blind() BlindLine {
	return BlindLine{
		ID:           l.ID,
		SessionID:    l.SessionID,
		LineNo:       l.LineNo,
		ItemID:       l.ItemID,
		ItemCode:     l.ItemCode,
		ItemName:     l.ItemName,
		LocationCode: l.LocationCode,
		Lot:          l.Lot,
		CountedQty:   l.CountedQty,
		CountedBy:    l.CountedBy,
		CountedAt:    l.CountedAt,
		Notes:        l.Notes,
		Recount:      l.Recount,
		Version:      l.Version,
	}
}

// ViewLines returns lines as the caller may see them: full lines for
// privileged readers, BlindLine values otherwise.
func ViewLines(ctx context.Context, lines []*Line) any {
	if security.IsPrivileged(ctx) {
		return lines
	}
	out := make([]BlindLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Blind())
	}
	return out
}

// ViewLine is ViewLines for a single line.
func ViewLine(ctx context.Context, line *Line) any {
	if security.IsPrivileged(ctx) {
		return line
	}
	return line.Blind()
}

// BlindStats is session progress without discrepancy figures.
type BlindStats struct {
	TotalLines   int `json:"totalLines"`
	CountedLines int `json:"countedLines"`
}

// BlindSession is a session as a counter sees it.
type BlindSession struct {
	ID          id.ID       `json:"id"`
	Code        string      `json:"code"`
	Type        SessionType `json:"type"`
	Status      Status      `json:"status"`
	Scope       Scope       `json:"scope"`
	Counters    []string    `json:"counters"`
	Notes       string      `json:"notes,omitempty"`
	Stats       BlindStats  `json:"stats"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	SubmittedAt *time.Time  `json:"submittedAt,omitempty"`
	ApprovedAt  *time.Time  `json:"approvedAt,omitempty"`
	CancelledAt *time.Time  `json:"cancelledAt,omitempty"`
	Version     int         `json:"version"`
}

// ViewSession returns the session, hiding discrepancy stats from
// non-privileged readers.
func ViewSession(ctx context.Context, s *Session) any {
	if security.IsPrivileged(ctx) {
		return s
	}
	return BlindSession{
		ID:          s.ID,
		Code:        s.Code,
		Type:        s.Type,
		Status:      s.Status,
		Scope:       s.Scope,
		Counters:    s.Counters,
		Notes:       s.Notes,
		Stats:       BlindStats{TotalLines: s.TotalLines, CountedLines: s.CountedLines},
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		SubmittedAt: s.SubmittedAt,
		ApprovedAt:  s.ApprovedAt,
		CancelledAt: s.CancelledAt,
		Version:     s.Version,
	}
}

// ViewSessions applies ViewSession to a page.
func ViewSessions(ctx context.Context, sessions []*Session) any {
	if security.IsPrivileged(ctx) {
		return sessions
	}
	out := make([]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ViewSession(ctx, s))
	}
	return out
}
