// Package register_repo provides PostgreSQL implementations for the movement
// log and the inventory snapshot.
package register_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "reg_movements"

// MovementRepo implements ledger.MovementRepository. Movements are never
// physically deleted; reversal flags them instead.
type MovementRepo struct {
	*postgres.Table[*ledger.Movement]
}

var _ ledger.MovementRepository = (*MovementRepo)(nil)

func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		Table: postgres.NewTable(txm, movementsTable, "movement",
			func() *ledger.Movement { return &ledger.Movement{} }),
	}
}

func (r *MovementRepo) Create(ctx context.Context, m *ledger.Movement) error {
	_, err := r.Exec(ctx, r.SQL().Insert(movementsTable).SetMap(postgres.StructToMap(m)))
	return err
}

// Update writes lifecycle, adjustment capture and reversal fields.
func (r *MovementRepo) Update(ctx context.Context, m *ledger.Movement) error {
	q := r.SQL().Update(movementsTable).
		SetMap(map[string]any{
			"status":             m.Status,
			"completed_at":       m.CompletedAt,
			"prev_location_qty":  m.PreviousLocationQty,
			"prev_aggregate":     m.PreviousAggregate,
			"deleted":            m.Deleted,
			"deleted_by":         m.DeletedBy,
			"deleted_at":         m.DeletedAt,
			"delete_reason":      m.DeleteReason,
			"reversal":           m.Reversal,
			"reversal_shortfall": m.ReversalShortfall,
		}).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": m.ID, "version": m.Version})

	n, err := r.Exec(ctx, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewConcurrentModification("movement", m.ID.String())
	}
	m.Version++
	return nil
}

func (r *MovementRepo) ListBatchForUpdate(ctx context.Context, batchKey string) ([]*ledger.Movement, error) {
	return r.All(ctx, r.Select().
		Where(squirrel.Eq{"batch_key": batchKey, "deleted": false}).
		OrderBy("created_at", "id").
		Suffix(postgres.LockUpdate))
}

// List returns movements newest first.
func (r *MovementRepo) List(ctx context.Context, filter ledger.MovementFilter) (domain.ListResult[*ledger.Movement], error) {
	q := applyMovementFilter(r.Select(), filter)
	return r.Page(ctx, q, filter.Limit, filter.Offset, "created_at DESC", "id DESC")
}

func applyMovementFilter(q squirrel.SelectBuilder, f ledger.MovementFilter) squirrel.SelectBuilder {
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deleted": false})
	}
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.Actor != "" {
		q = q.Where(squirrel.Eq{"created_by": f.Actor})
	}
	if len(f.Types) > 0 {
		q = q.Where(squirrel.Eq{"type": f.Types})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.BatchKey != "" {
		q = q.Where(squirrel.Eq{"batch_key": f.BatchKey})
	}
	if f.Reference != "" {
		q = q.Where(squirrel.Eq{"reference": f.Reference})
	}
	if f.Created.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.Created.From})
	}
	if f.Created.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.Created.To})
	}
	return q
}
