package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// ItemRepository persists stock items.
type ItemRepository interface {
	Create(ctx context.Context, item *StockItem) error

	// Update writes catalog fields with an optimistic version check.
	Update(ctx context.Context, item *StockItem) error

	// SaveQuantities writes aggregate, breakdown, primary location and
	// activity of an item locked by GetForUpdate.
	SaveQuantities(ctx context.Context, item *StockItem) error

	GetByID(ctx context.Context, id id.ID) (*StockItem, error)

	// GetForUpdate locks the items in id order and returns them keyed by id.
	// Missing ids yield NotFound.
	GetForUpdate(ctx context.Context, ids []id.ID) (map[id.ID]*StockItem, error)

	// FindDuplicatesForUpdate locks active items with the same code, other
	// than exclude, that hold stock at the location.
	FindDuplicatesForUpdate(ctx context.Context, code string, exclude id.ID, at string) ([]*StockItem, error)

	ExistsActiveByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter ItemFilter) (domain.ListResult[*StockItem], error)

	// ListActive pages through active items in id order (keyset on afterID).
	ListActive(ctx context.Context, afterID id.ID, limit int) ([]*StockItem, error)
}

// MovementRepository persists the movement log.
type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error

	// Update writes status, completion, reversal and adjustment capture.
	Update(ctx context.Context, m *Movement) error

	GetByID(ctx context.Context, id id.ID) (*Movement, error)

	// ListBatchForUpdate locks non-deleted members of a batch in creation order.
	ListBatchForUpdate(ctx context.Context, batchKey string) ([]*Movement, error)

	List(ctx context.Context, filter MovementFilter) (domain.ListResult[*Movement], error)
}

// ItemFilter narrows item lists.
type ItemFilter struct {
	domain.ListFilter

	Categories []string
	Classes    []ABCClass
	Location   string
	ActiveOnly bool
}

// MovementFilter narrows movement lists.
type MovementFilter struct {
	domain.ListFilter

	ItemID    *id.ID
	Actor     string
	Types     []MovementType
	Status    *MovementStatus
	BatchKey  string
	Reference string
	Created   domain.DateRange
}
