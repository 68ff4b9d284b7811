// Package domain holds the contracts shared by the ledger, snapshot and
// counting services: list paging, lifecycle hooks, events and audit.
package domain

import (
	"time"

	"stockledger/internal/core/id"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// ListFilter is the paging and search part every list query shares.
// Search matches code and name case-insensitively. OrderBy takes a column
// name with an optional "-" prefix for descending order.
type ListFilter struct {
	Search         string
	IDs            []id.ID
	IncludeDeleted bool
	OrderBy        string
	Limit          int
	Offset         int
}

// Normalize replaces an out-of-range page with the default.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = defaultPageSize
	}
	f.Offset = max(f.Offset, 0)
}

// DateRange bounds a list by time, inclusive. Either end may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	return (r.From == nil || !t.Before(*r.From)) && (r.To == nil || !t.After(*r.To))
}

// ListResult is one page of T plus the unpaged total.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
