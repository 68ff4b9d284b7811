package snapshot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/pkg/logger"
)

// AggregateSnapshot is the aggregate type of sync events.
const AggregateSnapshot = "InventorySnapshot"

const syncPageSize = 500

// ItemSource reads ledger items. ledger.ItemRepository satisfies it.
type ItemSource interface {
	GetByID(ctx context.Context, id id.ID) (*ledger.StockItem, error)
	ListActive(ctx context.Context, afterID id.ID, limit int) ([]*ledger.StockItem, error)
}

// LocationEnsurer vivifies unknown location codes. location.Service
// satisfies it.
type LocationEnsurer interface {
	Ensure(ctx context.Context, code string) (*location.Location, bool, error)
}

// Service builds and serves the inventory snapshot.
type Service struct {
	repo      Repository
	items     ItemSource
	locations LocationEnsurer
	txManager tx.Manager
	events    domain.EventPublisher
	now       func() time.Time
}

// NewService creates a snapshot service. events may be nil.
func NewService(repo Repository, items ItemSource, locations LocationEnsurer, txManager tx.Manager, events domain.EventPublisher) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		items:     items,
		locations: locations,
		txManager: txManager,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sync rebuilds the snapshot from every active item in one transaction.
// Running it twice without ledger activity in between changes nothing.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartedAt: s.now()}

	err := tx.RunLong(ctx, s.txManager, func(ctx context.Context) error {
		*result = SyncResult{StartedAt: result.StartedAt}
		ensured := make(map[string]struct{})

		var after id.ID
		for {
			page, err := s.items.ListActive(ctx, after, syncPageSize)
			if err != nil {
				return fmt.Errorf("list items: %w", err)
			}
			if len(page) == 0 {
				break
			}

			var records []*Record
			for _, item := range page {
				recs, err := s.itemRecords(ctx, item, ensured, result)
				if err != nil {
					return err
				}
				records = append(records, recs...)
			}
			changed, err := s.repo.Upsert(ctx, records)
			if err != nil {
				return fmt.Errorf("upsert snapshot: %w", err)
			}

			result.Items += len(page)
			result.Records += len(records)
			result.Changed += changed
			after = page[len(page)-1].ID
			if len(page) < syncPageSize {
				break
			}
		}

		zeroed, err := s.repo.ZeroInactive(ctx, result.StartedAt)
		if err != nil {
			return fmt.Errorf("zero inactive: %w", err)
		}
		result.Zeroed = zeroed
		result.FinishedAt = s.now()

		return s.events.Publish(ctx, domain.Event{
			AggregateType: AggregateSnapshot,
			AggregateID:   id.Nil,
			EventType:     domain.EventSnapshotSynced,
			Payload:       result,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "snapshot synced",
		"items", result.Items,
		"records", result.Records,
		"changed", result.Changed,
		"locations_created", result.LocationsCreated,
		"zeroed", result.Zeroed,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// SyncItem refreshes the records of one item.
func (s *Service) SyncItem(ctx context.Context, itemID id.ID) (*SyncResult, error) {
	result := &SyncResult{StartedAt: s.now()}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return apperror.NewBusinessRule("ITEM_INACTIVE", "Stock item is inactive").
				WithDetail("item_id", itemID.String())
		}

		records, err := s.itemRecords(ctx, item, make(map[string]struct{}), result)
		if err != nil {
			return err
		}
		changed, err := s.repo.Upsert(ctx, records)
		if err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
		result.Items = 1
		result.Records = len(records)
		result.Changed = changed
		result.FinishedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// itemRecords resolves an item into (location, quantity) pairs and makes
// sure every location exists.
func (s *Service) itemRecords(ctx context.Context, item *ledger.StockItem, ensured map[string]struct{}, result *SyncResult) ([]*Record, error) {
	pairs := Resolve(item)
	at := s.now()

	records := make([]*Record, 0, len(pairs))
	for _, code := range sortedKeys(pairs) {
		if _, ok := ensured[code]; !ok {
			_, created, err := s.locations.Ensure(ctx, code)
			if err != nil {
				return nil, fmt.Errorf("ensure location %s: %w", code, err)
			}
			if created {
				result.LocationsCreated++
			}
			ensured[code] = struct{}{}
		}
		records = append(records, NewRecord(item.ID, code, pairs[code], at))
	}
	return records, nil
}

// Resolve returns the per-location quantities an item contributes to the
// snapshot. The primary location carries its inferred availability; stock
// with no known home lands on the placeholder location.
func Resolve(item *ledger.StockItem) map[string]int64 {
	pairs := make(map[string]int64, len(item.Locations)+1)
	primary := location.CanonicalKey(item.PrimaryLocation)
	if primary != "" {
		pairs[primary] = item.Available(primary)
	}
	for code, qty := range item.Locations {
		key := location.CanonicalKey(code)
		if key == "" || key == primary {
			continue
		}
		pairs[key] += qty
	}

	if primary == "" {
		var placed int64
		for _, qty := range pairs {
			placed += qty
		}
		if len(pairs) == 0 || item.Quantity > placed {
			pairs[location.Placeholder] += max(0, item.Quantity-placed)
		}
	}
	return pairs
}

// List retrieves snapshot records with filtering.
func (s *Service) List(ctx context.Context, filter Filter) (domain.ListResult[*Record], error) {
	filter.Normalize()
	filter.LocationCode = location.CanonicalKey(filter.LocationCode)
	return s.repo.List(ctx, filter)
}

// Get retrieves one record by natural key.
func (s *Service) Get(ctx context.Context, itemID id.ID, locationCode, lot string) (*Record, error) {
	key := location.CanonicalKey(locationCode)
	if key == "" {
		return nil, apperror.NewValidation("location code is required")
	}
	return s.repo.Get(ctx, Key{ItemID: itemID, LocationCode: key, Lot: lot})
}

// OnMovement stamps LastMovementAt for the locations a movement touched.
// Registered on the ledger's movement hooks.
func (s *Service) OnMovement(ctx context.Context, m *ledger.Movement) error {
	at := s.now()
	if m.CompletedAt != nil {
		at = *m.CompletedAt
	}
	for _, code := range []string{m.FromLocation, m.ToLocation} {
		if code == "" {
			continue
		}
		if err := s.repo.TouchMovement(ctx, m.ItemID, code, at); err != nil {
			return fmt.Errorf("touch snapshot: %w", err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
