// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// --- Listing ---

// ListQuery carries the paging and search parameters shared by list endpoints.
type ListQuery struct {
	Search         string `form:"search"`
	OrderBy        string `form:"orderBy"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
	IncludeDeleted bool   `form:"includeDeleted"`
}

// ToFilter converts the query to a domain filter.
func (q ListQuery) ToFilter() domain.ListFilter {
	return domain.ListFilter{
		Search:         q.Search,
		OrderBy:        q.OrderBy,
		Limit:          q.Limit,
		Offset:         q.Offset,
		IncludeDeleted: q.IncludeDeleted,
	}
}

// CreatedRange is an optional creation-time window.
type CreatedRange struct {
	CreatedFrom *time.Time `form:"createdFrom" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo   *time.Time `form:"createdTo" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToRange converts the window to a domain range.
func (r CreatedRange) ToRange() domain.DateRange {
	return domain.DateRange{From: r.CreatedFrom, To: r.CreatedTo}
}

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse maps a domain page to a response page.
func NewListResponse[E, T any](res domain.ListResult[E], mapFn func(E) T) ListResponse[T] {
	items := make([]T, 0, len(res.Items))
	for _, e := range res.Items {
		items = append(items, mapFn(e))
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	}
}

// Page is a list response whose items were already shaped for the caller,
// e.g. blind count lines.
type Page struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewPage copies the paging fields of res around pre-shaped items.
func NewPage[E any](res domain.ListResult[E], items any) Page {
	return Page{Items: items, TotalCount: res.TotalCount, Limit: res.Limit, Offset: res.Offset}
}

// ParseOptionalID parses an optional id query value.
func ParseOptionalID(field, raw string) (*id.ID, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := id.Parse(raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid " + field + " format").
			WithDetail("field", field)
	}
	return &v, nil
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
