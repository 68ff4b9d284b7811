package memstore

import (
	"context"
	"slices"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/location"
)

// Locations implements location.Repository.
type Locations struct{ s *Store }

var _ location.Repository = (*Locations)(nil)

func (r *Locations) byCode(code string) *location.Location {
	for _, l := range r.s.state.locations {
		if l.Code == code {
			return l
		}
	}
	return nil
}

// Create implements location.Repository.
func (r *Locations) Create(ctx context.Context, loc *location.Location) error {
	defer r.s.lock(ctx)()
	if r.byCode(loc.Code) != nil {
		return apperror.NewDuplicate("location", "code", loc.Code)
	}
	if id.IsNil(loc.ID) {
		loc.ID = id.New()
	}
	r.s.state.locations[loc.ID] = cloneLocation(loc)
	return nil
}

// CreateIfAbsent implements location.Repository.
func (r *Locations) CreateIfAbsent(ctx context.Context, loc *location.Location) (bool, error) {
	defer r.s.lock(ctx)()
	if r.byCode(loc.Code) != nil {
		return false, nil
	}
	r.s.state.locations[loc.ID] = cloneLocation(loc)
	return true, nil
}

// Update implements location.Repository.
func (r *Locations) Update(ctx context.Context, loc *location.Location) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.locations[loc.ID]
	if !ok {
		return apperror.NewNotFound("location", loc.ID.String())
	}
	if stored.Version != loc.Version {
		return apperror.NewConcurrentModification("location", loc.ID.String())
	}
	loc.Version++
	r.s.state.locations[loc.ID] = cloneLocation(loc)
	return nil
}

// GetByID implements location.Repository.
func (r *Locations) GetByID(ctx context.Context, locID id.ID) (*location.Location, error) {
	defer r.s.lock(ctx)()
	l, ok := r.s.state.locations[locID]
	if !ok {
		return nil, apperror.NewNotFound("location", locID.String())
	}
	return cloneLocation(l), nil
}

// GetByCode implements location.Repository.
func (r *Locations) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	defer r.s.lock(ctx)()
	l := r.byCode(code)
	if l == nil {
		return nil, apperror.NewNotFound("location", code)
	}
	return cloneLocation(l), nil
}

// ExistsByCode implements location.Repository.
func (r *Locations) ExistsByCode(ctx context.Context, code string) (bool, error) {
	defer r.s.lock(ctx)()
	return r.byCode(code) != nil, nil
}

// List implements location.Repository.
func (r *Locations) List(ctx context.Context, f location.ListFilter) (domain.ListResult[*location.Location], error) {
	defer r.s.lock(ctx)()

	var out []*location.Location
	search := strings.ToLower(f.Search)
	for _, l := range r.s.state.locations {
		if l.DeletionMark && !f.IncludeDeleted {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, l.ID) {
			continue
		}
		if len(f.Zones) > 0 && !slices.Contains(f.Zones, l.Zone) {
			continue
		}
		if f.AutoCreated != nil && l.AutoCreated != *f.AutoCreated {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.Code), search) &&
			!strings.Contains(strings.ToLower(l.Name), search) {
			continue
		}
		out = append(out, cloneLocation(l))
	}
	slices.SortFunc(out, func(a, b *location.Location) int { return strings.Compare(a.Code, b.Code) })
	return page(out, f.ListFilter), nil
}

// SetDeletionMark implements location.Repository.
func (r *Locations) SetDeletionMark(ctx context.Context, locID id.ID, marked bool) error {
	defer r.s.lock(ctx)()
	l, ok := r.s.state.locations[locID]
	if !ok {
		return apperror.NewNotFound("location", locID.String())
	}
	l.DeletionMark = marked
	l.Version++
	return nil
}
