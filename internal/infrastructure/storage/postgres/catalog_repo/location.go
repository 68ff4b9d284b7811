package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/domain"
	"stockledger/internal/domain/location"
	"stockledger/internal/infrastructure/storage/postgres"
)

const locationTable = "cat_locations"

// LocationRepo implements location.Repository.
type LocationRepo struct {
	*postgres.Table[*location.Location]
}

var _ location.Repository = (*LocationRepo)(nil)

func NewLocationRepo(txm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		Table: postgres.NewTable(txm, locationTable, "location",
			func() *location.Location { return &location.Location{} }),
	}
}

func (r *LocationRepo) Create(ctx context.Context, loc *location.Location) error {
	return r.Insert(ctx, loc)
}

func (r *LocationRepo) CreateIfAbsent(ctx context.Context, loc *location.Location) (bool, error) {
	return r.InsertIfAbsent(ctx, loc)
}

// Update writes everything but the code, which is immutable.
func (r *LocationRepo) Update(ctx context.Context, loc *location.Location) error {
	return r.Table.Update(ctx, loc, "code")
}

// GetByCode returns the live location with code.
func (r *LocationRepo) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	return r.Get(ctx, r.Select().Where(liveCode(code)), code)
}

func (r *LocationRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return r.Exists(ctx, liveCode(code))
}

// List returns locations matching the filter.
func (r *LocationRepo) List(ctx context.Context, filter location.ListFilter) (domain.ListResult[*location.Location], error) {
	q := r.Select()
	if len(filter.Zones) > 0 {
		q = q.Where(squirrel.Eq{"zone": filter.Zones})
	}
	if filter.AutoCreated != nil {
		q = q.Where(squirrel.Eq{"auto_created": *filter.AutoCreated})
	}
	return listCatalog(ctx, r.Table, q, filter.ListFilter)
}
