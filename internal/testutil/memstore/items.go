package memstore

import (
	"context"
	"slices"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
)

// Items implements ledger.ItemRepository.
type Items struct{ s *Store }

var _ ledger.ItemRepository = (*Items)(nil)

// Put stores an item as is, bypassing service rules. Tests use it to seed
// legacy states such as duplicates or inferred-only stock.
func (r *Items) Put(item *ledger.StockItem) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.items[item.ID] = cloneItem(item)
}

// Create implements ledger.ItemRepository.
func (r *Items) Create(ctx context.Context, item *ledger.StockItem) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.items[item.ID]; ok {
		return apperror.NewDuplicate("stock item", "id", item.ID.String())
	}
	r.s.state.items[item.ID] = cloneItem(item)
	return nil
}

// Update implements ledger.ItemRepository.
func (r *Items) Update(ctx context.Context, item *ledger.StockItem) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.items[item.ID]
	if !ok {
		return apperror.NewNotFound("stock item", item.ID.String())
	}
	if stored.Version != item.Version {
		return apperror.NewConcurrentModification("stock item", item.ID.String())
	}
	item.Version++
	r.s.state.items[item.ID] = cloneItem(item)
	return nil
}

// SaveQuantities implements ledger.ItemRepository.
func (r *Items) SaveQuantities(ctx context.Context, item *ledger.StockItem) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.items[item.ID]
	if !ok {
		return apperror.NewNotFound("stock item", item.ID.String())
	}
	stored.Quantity = item.Quantity
	stored.Locations = item.Locations.Clone()
	stored.PrimaryLocation = item.PrimaryLocation
	stored.Active = item.Active
	stored.MergedInto = item.MergedInto
	stored.Version++
	item.Version = stored.Version
	return nil
}

// GetByID implements ledger.ItemRepository.
func (r *Items) GetByID(ctx context.Context, itemID id.ID) (*ledger.StockItem, error) {
	defer r.s.lock(ctx)()
	it, ok := r.s.state.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("stock item", itemID.String())
	}
	return cloneItem(it), nil
}

// GetForUpdate implements ledger.ItemRepository.
func (r *Items) GetForUpdate(ctx context.Context, ids []id.ID) (map[id.ID]*ledger.StockItem, error) {
	defer r.s.lock(ctx)()
	out := make(map[id.ID]*ledger.StockItem, len(ids))
	for _, itemID := range ids {
		it, ok := r.s.state.items[itemID]
		if !ok {
			return nil, apperror.NewNotFound("stock item", itemID.String())
		}
		out[itemID] = cloneItem(it)
	}
	return out, nil
}

// FindDuplicatesForUpdate implements ledger.ItemRepository.
func (r *Items) FindDuplicatesForUpdate(ctx context.Context, code string, exclude id.ID, at string) ([]*ledger.StockItem, error) {
	defer r.s.lock(ctx)()
	var out []*ledger.StockItem
	for _, it := range r.s.state.items {
		if it.ID == exclude || !it.Active || it.Code != code || it.Locations.Get(at) <= 0 {
			continue
		}
		out = append(out, cloneItem(it))
	}
	slices.SortFunc(out, func(a, b *ledger.StockItem) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

// ExistsActiveByCode implements ledger.ItemRepository.
func (r *Items) ExistsActiveByCode(ctx context.Context, code string) (bool, error) {
	defer r.s.lock(ctx)()
	for _, it := range r.s.state.items {
		if it.Active && it.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// List implements ledger.ItemRepository.
func (r *Items) List(ctx context.Context, f ledger.ItemFilter) (domain.ListResult[*ledger.StockItem], error) {
	defer r.s.lock(ctx)()

	var out []*ledger.StockItem
	search := strings.ToLower(f.Search)
	for _, it := range r.s.state.items {
		if it.DeletionMark && !f.IncludeDeleted {
			continue
		}
		if f.ActiveOnly && !it.Active {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, it.ID) {
			continue
		}
		if len(f.Categories) > 0 && !slices.Contains(f.Categories, it.Category) {
			continue
		}
		if len(f.Classes) > 0 && !slices.Contains(f.Classes, it.ABCClass) {
			continue
		}
		if f.Location != "" && it.Locations.Get(f.Location) <= 0 &&
			location.CanonicalKey(it.PrimaryLocation) != f.Location {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.Code), search) &&
			!strings.Contains(strings.ToLower(it.Name), search) {
			continue
		}
		out = append(out, cloneItem(it))
	}
	slices.SortFunc(out, func(a, b *ledger.StockItem) int {
		if c := strings.Compare(a.Code, b.Code); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return page(out, f.ListFilter), nil
}

// ListActive implements ledger.ItemRepository.
func (r *Items) ListActive(ctx context.Context, afterID id.ID, limit int) ([]*ledger.StockItem, error) {
	defer r.s.lock(ctx)()
	var out []*ledger.StockItem
	for _, it := range r.s.state.items {
		if it.Active && compareIDs(it.ID, afterID) > 0 {
			out = append(out, cloneItem(it))
		}
	}
	slices.SortFunc(out, func(a, b *ledger.StockItem) int { return compareIDs(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Movements implements ledger.MovementRepository.
type Movements struct{ s *Store }

var _ ledger.MovementRepository = (*Movements)(nil)

func (r *Movements) index(movementID id.ID) int {
	return slices.IndexFunc(r.s.state.movements, func(m *ledger.Movement) bool { return m.ID == movementID })
}

// Create implements ledger.MovementRepository.
func (r *Movements) Create(ctx context.Context, m *ledger.Movement) error {
	defer r.s.lock(ctx)()
	if r.index(m.ID) >= 0 {
		return apperror.NewDuplicate("movement", "id", m.ID.String())
	}
	r.s.state.movements = append(r.s.state.movements, cloneMovement(m))
	return nil
}

// Update implements ledger.MovementRepository.
func (r *Movements) Update(ctx context.Context, m *ledger.Movement) error {
	defer r.s.lock(ctx)()
	i := r.index(m.ID)
	if i < 0 {
		return apperror.NewNotFound("movement", m.ID.String())
	}
	if r.s.state.movements[i].Version != m.Version {
		return apperror.NewConcurrentModification("movement", m.ID.String())
	}
	m.Version++
	r.s.state.movements[i] = cloneMovement(m)
	return nil
}

// GetByID implements ledger.MovementRepository.
func (r *Movements) GetByID(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	defer r.s.lock(ctx)()
	i := r.index(movementID)
	if i < 0 {
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	return cloneMovement(r.s.state.movements[i]), nil
}

// ListBatchForUpdate implements ledger.MovementRepository.
func (r *Movements) ListBatchForUpdate(ctx context.Context, batchKey string) ([]*ledger.Movement, error) {
	defer r.s.lock(ctx)()
	var out []*ledger.Movement
	for _, m := range r.s.state.movements {
		if m.BatchKey == batchKey && !m.Deleted {
			out = append(out, cloneMovement(m))
		}
	}
	return out, nil
}

// List implements ledger.MovementRepository. Newest first.
func (r *Movements) List(ctx context.Context, f ledger.MovementFilter) (domain.ListResult[*ledger.Movement], error) {
	defer r.s.lock(ctx)()
	var out []*ledger.Movement
	for i := len(r.s.state.movements) - 1; i >= 0; i-- {
		m := r.s.state.movements[i]
		if m.Deleted && !f.IncludeDeleted {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, m.ID) {
			continue
		}
		if f.ItemID != nil && m.ItemID != *f.ItemID {
			continue
		}
		if f.Actor != "" && m.CreatedBy != f.Actor {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, m.Type) {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		if f.BatchKey != "" && m.BatchKey != f.BatchKey {
			continue
		}
		if f.Reference != "" && m.Reference != f.Reference {
			continue
		}
		if !f.Created.Contains(m.CreatedAt) {
			continue
		}
		out = append(out, cloneMovement(m))
	}
	return page(out, f.ListFilter), nil
}

// All returns every stored movement in creation order, deleted included.
func (r *Movements) All() []*ledger.Movement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*ledger.Movement, 0, len(r.s.state.movements))
	for _, m := range r.s.state.movements {
		out = append(out, cloneMovement(m))
	}
	return out
}
