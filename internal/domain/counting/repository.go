package counting

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository persists sessions and their lines.
type Repository interface {
	Create(ctx context.Context, s *Session) error

	// Update writes status, timestamps and notes with an optimistic version
	// check. Stats are written only by ApplyStatsDelta and SetStats.
	Update(ctx context.Context, s *Session) error

	GetByID(ctx context.Context, id id.ID) (*Session, error)
	GetForUpdate(ctx context.Context, id id.ID) (*Session, error)

	// GetForShare locks the session against status changes while counts
	// are entered.
	GetForShare(ctx context.Context, id id.ID) (*Session, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Session], error)

	// ApplyStatsDelta adds delta to the stored stats atomically.
	ApplyStatsDelta(ctx context.Context, sessionID id.ID, delta Stats) error

	// SetStats overwrites the stored stats.
	SetStats(ctx context.Context, sessionID id.ID, stats Stats) error

	// InsertLines bulk-inserts frozen lines.
	InsertLines(ctx context.Context, lines []*Line) error

	GetLineForUpdate(ctx context.Context, sessionID, lineID id.ID) (*Line, error)
	FindLineForUpdate(ctx context.Context, sessionID, itemID id.ID, locationCode, lot string) (*Line, error)

	// UpdateLine writes count fields when the stored version equals
	// expectedVersion, and increments it.
	UpdateLine(ctx context.Context, line *Line, expectedVersion int) error

	ListLines(ctx context.Context, sessionID id.ID, filter LineFilter) (domain.ListResult[*Line], error)

	// AllLines returns every line in line order.
	AllLines(ctx context.Context, sessionID id.ID) ([]*Line, error)

	// Uncounted returns the number of lines without a count and up to limit
	// of their line numbers.
	Uncounted(ctx context.Context, sessionID id.ID, limit int) (int, []int, error)
}

// SnapshotSource resolves scopes against the inventory snapshot and takes
// approved counts back. The postgres snapshot repository satisfies it.
type SnapshotSource interface {
	// Candidates returns records of active items matching the query's
	// filters, ordered by location, item code and lot. The predicate is
	// evaluated by the caller.
	Candidates(ctx context.Context, q ScopeQuery) ([]Candidate, error)

	SetCounted(ctx context.Context, id id.ID, qty int64, at time.Time) error
}

// ListFilter narrows session lists.
type ListFilter struct {
	domain.ListFilter

	Statuses []Status
	Types    []SessionType
	Created  domain.DateRange
}

// LineFilter narrows line lists.
type LineFilter struct {
	domain.ListFilter

	LocationCode  string
	ItemID        *id.ID
	Counted       *bool
	Discrepancies bool
	Recount       bool
}
