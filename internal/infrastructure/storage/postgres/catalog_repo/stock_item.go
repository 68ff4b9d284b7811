package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const stockItemTable = "cat_stock_items"

// quantityCols are written only by ledger operations.
var quantityCols = []string{"quantity", "locations", "primary_location", "active", "merged_into"}

// StockItemRepo implements ledger.ItemRepository. Every read canonicalizes
// the location breakdown before returning.
type StockItemRepo struct {
	*postgres.Table[*ledger.StockItem]
}

var _ ledger.ItemRepository = (*StockItemRepo)(nil)

func NewStockItemRepo(txm *postgres.TxManager) *StockItemRepo {
	return &StockItemRepo{
		Table: postgres.NewTable(txm, stockItemTable, "stock item",
			func() *ledger.StockItem { return &ledger.StockItem{} }),
	}
}

func (r *StockItemRepo) Create(ctx context.Context, item *ledger.StockItem) error {
	return r.Insert(ctx, item)
}

// Update writes catalog fields. Quantities are left to SaveQuantities.
func (r *StockItemRepo) Update(ctx context.Context, item *ledger.StockItem) error {
	return r.Table.Update(ctx, item, quantityCols...)
}

func (r *StockItemRepo) SaveQuantities(ctx context.Context, item *ledger.StockItem) error {
	q := r.SQL().Update(stockItemTable).
		Set("quantity", item.Quantity).
		Set("locations", item.Locations).
		Set("primary_location", item.PrimaryLocation).
		Set("active", item.Active).
		Set("merged_into", item.MergedInto).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": item.ID})

	if err := r.ExecOne(ctx, q, item.ID.String()); err != nil {
		return err
	}
	item.Touch()
	return nil
}

func (r *StockItemRepo) GetByID(ctx context.Context, itemID id.ID) (*ledger.StockItem, error) {
	item, err := r.Table.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	item.Normalize()
	return item, nil
}

// GetForUpdate locks in id order so concurrent multi-item operations
// cannot deadlock.
func (r *StockItemRepo) GetForUpdate(ctx context.Context, ids []id.ID) (map[id.ID]*ledger.StockItem, error) {
	out := make(map[id.ID]*ledger.StockItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.scan(ctx, r.Select().
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id").
		Suffix(postgres.LockUpdate))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	for _, itemID := range ids {
		if out[itemID] == nil {
			return nil, apperror.NewNotFound("stock item", itemID.String())
		}
	}
	return out, nil
}

func (r *StockItemRepo) FindDuplicatesForUpdate(ctx context.Context, code string, exclude id.ID, at string) ([]*ledger.StockItem, error) {
	return r.scan(ctx, r.Select().
		Where(squirrel.Eq{"code": code, "active": true}).
		Where(squirrel.NotEq{"id": exclude}).
		Where(heldAt(at)).
		OrderBy("id").
		Suffix(postgres.LockUpdate))
}

func (r *StockItemRepo) ExistsActiveByCode(ctx context.Context, code string) (bool, error) {
	return r.Exists(ctx, squirrel.Eq{"code": code, "active": true})
}

func (r *StockItemRepo) List(ctx context.Context, filter ledger.ItemFilter) (domain.ListResult[*ledger.StockItem], error) {
	q := r.Select()
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	if len(filter.Categories) > 0 {
		q = q.Where(squirrel.Eq{"category": filter.Categories})
	}
	if len(filter.Classes) > 0 {
		q = q.Where(squirrel.Eq{"abc_class": filter.Classes})
	}
	if filter.Location != "" {
		q = q.Where(squirrel.Or{heldAt(filter.Location), squirrel.Eq{"primary_location": filter.Location}})
	}

	res, err := listCatalog(ctx, r.Table, q, filter.ListFilter)
	for _, it := range res.Items {
		it.Normalize()
	}
	return res, err
}

// ListActive is a keyset page over active items.
func (r *StockItemRepo) ListActive(ctx context.Context, afterID id.ID, limit int) ([]*ledger.StockItem, error) {
	return r.scan(ctx, r.Select().
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Gt{"id": afterID}).
		OrderBy("id").
		Limit(uint64(limit)))
}

func (r *StockItemRepo) scan(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.StockItem, error) {
	items, err := r.All(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		it.Normalize()
	}
	return items, nil
}

// heldAt matches items whose breakdown holds positive stock at key.
func heldAt(key string) squirrel.Sqlizer {
	return squirrel.Expr("COALESCE((locations->>?)::bigint, 0) > 0", key)
}
