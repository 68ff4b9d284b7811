package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/domain"
	"stockledger/internal/domain/location"
	"stockledger/pkg/logger"
)

// CreateItem registers a stock item with zero quantities. Opening stock is
// booked with a receipt so the movement log stays complete.
func (s *Service) CreateItem(ctx context.Context, item *StockItem) error {
	item.Code = strings.TrimSpace(item.Code)
	if err := item.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(item.ID) {
		item.ID = id.New()
	}
	item.Quantity = 0
	item.Locations = make(Quantities)
	item.PrimaryLocation = location.CanonicalKey(item.PrimaryLocation)
	item.Active = true
	item.MergedInto = nil
	item.Version = 1

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.items.ExistsActiveByCode(ctx, item.Code)
		if err != nil {
			return fmt.Errorf("check code: %w", err)
		}
		if exists {
			return apperror.NewDuplicate("stock item", "code", item.Code)
		}
		item.SetCreatedBy(security.ActorOrSystem(ctx))
		return s.items.Create(ctx, item)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock item created", "id", item.ID, "code", item.Code)
	return nil
}

// GetItem retrieves a stock item.
func (s *Service) GetItem(ctx context.Context, itemID id.ID) (*StockItem, error) {
	return s.items.GetByID(ctx, itemID)
}

// ListItems retrieves stock items with filtering.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) (domain.ListResult[*StockItem], error) {
	filter.Normalize()
	filter.Location = location.CanonicalKey(filter.Location)
	return s.items.List(ctx, filter)
}

// UpdateItem changes catalog fields. Code and quantities are immutable here;
// the version in item is the one the caller last read.
func (s *Service) UpdateItem(ctx context.Context, item *StockItem) error {
	if err := item.Validate(ctx); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.items.GetByID(ctx, item.ID)
		if err != nil {
			return err
		}
		if current.Code != strings.TrimSpace(item.Code) {
			return apperror.NewValidation("item code cannot be changed").
				WithDetail("field", "code")
		}

		item.Quantity = current.Quantity
		item.Locations = current.Locations
		item.PrimaryLocation = current.PrimaryLocation
		item.Active = current.Active
		item.MergedInto = current.MergedInto
		item.CreatedAt = current.CreatedAt
		item.CreatedBy = current.CreatedBy
		item.UpdatedAt = time.Now().UTC()
		item.SetUpdatedBy(security.ActorOrSystem(ctx))

		return s.items.Update(ctx, item)
	})
}
