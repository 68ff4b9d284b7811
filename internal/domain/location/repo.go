package location

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository defines the interface for Location persistence.
type Repository interface {
	Create(ctx context.Context, loc *Location) error

	// CreateIfAbsent inserts unless the code already exists.
	// Returns false when another writer got there first.
	CreateIfAbsent(ctx context.Context, loc *Location) (bool, error)

	Update(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, id id.ID) (*Location, error)
	GetByCode(ctx context.Context, code string) (*Location, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Location], error)
	SetDeletionMark(ctx context.Context, id id.ID, marked bool) error
}

// ListFilter narrows location lists.
type ListFilter struct {
	domain.ListFilter

	Zones       []string
	AutoCreated *bool
}
