package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/infrastructure/storage/postgres"
)

const snapshotTable = "reg_inventory_snapshot"

var snapshotCols = postgres.ExtractDBColumns[snapshot.Record]()

// upsertSnapshotSQL changes an existing record only when its quantity moved,
// so the affected row count is the number of real changes.
const upsertSnapshotSQL = `
	INSERT INTO reg_inventory_snapshot
		(id, item_id, location_code, lot, quantity, reserved, expires_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (item_id, location_code, lot) DO UPDATE
	SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	WHERE reg_inventory_snapshot.quantity IS DISTINCT FROM EXCLUDED.quantity
`

const zeroInactiveSQL = `
	UPDATE reg_inventory_snapshot s
	SET quantity = 0, updated_at = $1
	WHERE s.quantity <> 0
	  AND NOT EXISTS (
		SELECT 1 FROM cat_stock_items i
		WHERE i.id = s.item_id AND i.active
	  )
`

// SnapshotRepo implements snapshot.Repository and counting.SnapshotSource.
type SnapshotRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var (
	_ snapshot.Repository     = (*SnapshotRepo)(nil)
	_ counting.SnapshotSource = (*SnapshotRepo)(nil)
)

// NewSnapshotRepo creates a new inventory snapshot repository.
func NewSnapshotRepo(txm *postgres.TxManager) *SnapshotRepo {
	return &SnapshotRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert writes records in one batch round-trip. Must run inside a
// transaction.
func (r *SnapshotRepo) Upsert(ctx context.Context, records []*snapshot.Record) (int64, error) {
	b := &pgx.Batch{}
	for _, rec := range records {
		b.Queue(upsertSnapshotSQL,
			rec.ID, rec.ItemID, rec.LocationCode, rec.Lot,
			rec.Quantity, rec.Reserved, rec.ExpiresAt, rec.UpdatedAt)
	}

	changed, err := r.txm.SendBatch(ctx, b)
	if err != nil {
		return changed, fmt.Errorf("upsert snapshot: %w", err)
	}
	return changed, nil
}

// Get retrieves a record by natural key.
func (r *SnapshotRepo) Get(ctx context.Context, key snapshot.Key) (*snapshot.Record, error) {
	q := r.selectRecords().Where(squirrel.Eq{
		"item_id":       key.ItemID,
		"location_code": key.LocationCode,
		"lot":           key.Lot,
	})
	return r.get(ctx, q, key.ItemID.String()+"@"+key.LocationCode)
}

// GetByID retrieves a record by id.
func (r *SnapshotRepo) GetByID(ctx context.Context, recordID id.ID) (*snapshot.Record, error) {
	return r.get(ctx, r.selectRecords().Where(squirrel.Eq{"id": recordID}), recordID.String())
}

func (r *SnapshotRepo) get(ctx context.Context, q squirrel.SelectBuilder, key string) (*snapshot.Record, error) {
	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec snapshot.Record
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("snapshot record", key)
		}
		return nil, fmt.Errorf("get snapshot record: %w", err)
	}
	return &rec, nil
}

// List returns records ordered by location, item and lot.
func (r *SnapshotRepo) List(ctx context.Context, filter snapshot.Filter) (domain.ListResult[*snapshot.Record], error) {
	result := domain.ListResult[*snapshot.Record]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := applySnapshotFilter(r.selectRecords(), filter)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count snapshot: %w", err)
	}

	q = q.OrderBy("location_code", "item_id", "lot")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list snapshot: %w", err)
	}
	return result, nil
}

func applySnapshotFilter(q squirrel.SelectBuilder, f snapshot.Filter) squirrel.SelectBuilder {
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.LocationCode != "" {
		q = q.Where(squirrel.Eq{"location_code": f.LocationCode})
	}
	if len(f.Zones) > 0 {
		q = q.Where("location_code IN (SELECT code FROM cat_locations WHERE zone = ANY(?))", f.Zones)
	}
	if f.NonZero {
		q = q.Where(squirrel.NotEq{"quantity": 0})
	}
	return q
}

// SetCounted overwrites the quantity with an approved count.
func (r *SnapshotRepo) SetCounted(ctx context.Context, recordID id.ID, qty int64, at time.Time) error {
	q := r.builder.Update(snapshotTable).
		Set("quantity", qty).
		Set("last_counted_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set counted: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set counted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("snapshot record", recordID.String())
	}
	return nil
}

// TouchMovement stamps LastMovementAt on every lot of an item at a location.
func (r *SnapshotRepo) TouchMovement(ctx context.Context, itemID id.ID, locationCode string, at time.Time) error {
	q := r.builder.Update(snapshotTable).
		Set("last_movement_at", at).
		Where(squirrel.Eq{"item_id": itemID, "location_code": locationCode})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build touch movement: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch movement: %w", err)
	}
	return nil
}

// ZeroInactive zeroes records of items that are inactive or gone.
func (r *SnapshotRepo) ZeroInactive(ctx context.Context, at time.Time) (int64, error) {
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, zeroInactiveSQL, at)
	if err != nil {
		return 0, fmt.Errorf("zero inactive: %w", err)
	}
	return result.RowsAffected(), nil
}

// candidateFilterCols maps scope filters to the joined columns.
var candidateFilterCols = map[counting.FilterKind]string{
	counting.FilterZone:     "COALESCE(l.zone, '')",
	counting.FilterLocation: "s.location_code",
	counting.FilterCategory: "i.category",
	counting.FilterClass:    "i.abc_class",
}

// Candidates resolves the scope filters against the snapshot joined with
// active items and their location zones.
func (r *SnapshotRepo) Candidates(ctx context.Context, sq counting.ScopeQuery) ([]counting.Candidate, error) {
	q := r.candidatesQuery(sq)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	var out []counting.Candidate
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepo) candidatesQuery(sq counting.ScopeQuery) squirrel.SelectBuilder {
	q := r.builder.Select(
		"s.id AS snapshot_id",
		"s.item_id",
		"i.code AS item_code",
		"i.name AS item_name",
		"i.category",
		"i.abc_class",
		"i.unit_cost",
		"s.location_code",
		"COALESCE(l.zone, '') AS zone",
		"s.lot",
		"s.quantity",
	).
		From(snapshotTable + " s").
		Join("cat_stock_items i ON i.id = s.item_id AND i.active").
		LeftJoin("cat_locations l ON l.code = s.location_code")

	for _, f := range sq.Filters {
		col, ok := candidateFilterCols[f.Kind]
		if !ok || len(f.Values) == 0 {
			continue
		}
		q = q.Where(col+" = ANY(?)", f.Values)
	}

	return q.OrderBy("s.location_code", "i.code", "s.lot")
}

func (r *SnapshotRepo) selectRecords() squirrel.SelectBuilder {
	return r.builder.Select(snapshotCols...).From(snapshotTable)
}
