package memstore

import (
	"context"
	"slices"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/snapshot"
)

// Snapshots implements snapshot.Repository and counting.SnapshotSource.
type Snapshots struct{ s *Store }

var (
	_ snapshot.Repository     = (*Snapshots)(nil)
	_ counting.SnapshotSource = (*Snapshots)(nil)
)

func (r *Snapshots) byKey(k snapshot.Key) *snapshot.Record {
	for _, rec := range r.s.state.records {
		if rec.Key() == k {
			return rec
		}
	}
	return nil
}

// Upsert implements snapshot.Repository.
func (r *Snapshots) Upsert(ctx context.Context, records []*snapshot.Record) (int64, error) {
	defer r.s.lock(ctx)()
	var changed int64
	for _, rec := range records {
		stored := r.byKey(rec.Key())
		if stored == nil {
			cp := *rec
			r.s.state.records[rec.ID] = &cp
			changed++
			continue
		}
		rec.ID = stored.ID
		if stored.Quantity != rec.Quantity {
			stored.Quantity = rec.Quantity
			stored.UpdatedAt = rec.UpdatedAt
			changed++
		}
	}
	return changed, nil
}

// Get implements snapshot.Repository.
func (r *Snapshots) Get(ctx context.Context, k snapshot.Key) (*snapshot.Record, error) {
	defer r.s.lock(ctx)()
	rec := r.byKey(k)
	if rec == nil {
		return nil, apperror.NewNotFound("snapshot record", k.ItemID.String()+"@"+k.LocationCode)
	}
	cp := *rec
	return &cp, nil
}

// GetByID implements snapshot.Repository.
func (r *Snapshots) GetByID(ctx context.Context, recordID id.ID) (*snapshot.Record, error) {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.records[recordID]
	if !ok {
		return nil, apperror.NewNotFound("snapshot record", recordID.String())
	}
	cp := *rec
	return &cp, nil
}

// List implements snapshot.Repository.
func (r *Snapshots) List(ctx context.Context, f snapshot.Filter) (domain.ListResult[*snapshot.Record], error) {
	defer r.s.lock(ctx)()
	var out []*snapshot.Record
	for _, rec := range r.s.state.records {
		if f.ItemID != nil && rec.ItemID != *f.ItemID {
			continue
		}
		if f.LocationCode != "" && rec.LocationCode != f.LocationCode {
			continue
		}
		if len(f.Zones) > 0 && !slices.Contains(f.Zones, r.zone(rec.LocationCode)) {
			continue
		}
		if f.NonZero && rec.Quantity == 0 {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	slices.SortFunc(out, compareRecords)
	return page(out, f.ListFilter), nil
}

// SetCounted implements snapshot.Repository.
func (r *Snapshots) SetCounted(ctx context.Context, recordID id.ID, qty int64, at time.Time) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.records[recordID]
	if !ok {
		return apperror.NewNotFound("snapshot record", recordID.String())
	}
	rec.Quantity = qty
	rec.LastCountedAt = &at
	rec.UpdatedAt = at
	return nil
}

// TouchMovement implements snapshot.Repository.
func (r *Snapshots) TouchMovement(ctx context.Context, itemID id.ID, locationCode string, at time.Time) error {
	defer r.s.lock(ctx)()
	for _, rec := range r.s.state.records {
		if rec.ItemID == itemID && rec.LocationCode == locationCode {
			t := at
			rec.LastMovementAt = &t
		}
	}
	return nil
}

// ZeroInactive implements snapshot.Repository.
func (r *Snapshots) ZeroInactive(ctx context.Context, at time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for _, rec := range r.s.state.records {
		it, ok := r.s.state.items[rec.ItemID]
		if ok && it.Active {
			continue
		}
		if rec.Quantity != 0 {
			rec.Quantity = 0
			rec.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// Candidates implements counting.SnapshotSource.
func (r *Snapshots) Candidates(ctx context.Context, q counting.ScopeQuery) ([]counting.Candidate, error) {
	defer r.s.lock(ctx)()
	filters := counting.ScopeQuery{Filters: q.Filters}

	var out []counting.Candidate
	for _, rec := range r.s.state.records {
		it, ok := r.s.state.items[rec.ItemID]
		if !ok || !it.Active {
			continue
		}
		c := counting.Candidate{
			SnapshotID:   rec.ID,
			ItemID:       it.ID,
			ItemCode:     it.Code,
			ItemName:     it.Name,
			Category:     it.Category,
			ABCClass:     string(it.ABCClass),
			UnitCost:     it.UnitCost,
			LocationCode: rec.LocationCode,
			Zone:         r.zone(rec.LocationCode),
			Lot:          rec.Lot,
			Quantity:     rec.Quantity,
		}
		if ok, _ := filters.Matches(c); ok {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b counting.Candidate) int {
		if c := strings.Compare(a.LocationCode, b.LocationCode); c != 0 {
			return c
		}
		if c := strings.Compare(a.ItemCode, b.ItemCode); c != 0 {
			return c
		}
		return strings.Compare(a.Lot, b.Lot)
	})
	return out, nil
}

func (r *Snapshots) zone(code string) string {
	for _, l := range r.s.state.locations {
		if l.Code == code {
			return l.Zone
		}
	}
	return ""
}

func compareRecords(a, b *snapshot.Record) int {
	if c := strings.Compare(a.LocationCode, b.LocationCode); c != 0 {
		return c
	}
	if c := compareIDs(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	return strings.Compare(a.Lot, b.Lot)
}
