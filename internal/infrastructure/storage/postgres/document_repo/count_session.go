// Package document_repo stores count sessions and their lines in PostgreSQL.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	countSessionsTable = "doc_count_sessions"
	countLinesTable    = "doc_count_lines"
)

var statsCols = []string{"total_lines", "counted_lines", "discrepancy_lines", "monetary_gap"}

// CountSessionRepo implements counting.Repository. Session headers live in
// doc_count_sessions, their frozen lines in doc_count_lines.
type CountSessionRepo struct {
	*postgres.Table[*counting.Session]
	lines *postgres.Table[*counting.Line]
}

var _ counting.Repository = (*CountSessionRepo)(nil)

func NewCountSessionRepo(txm *postgres.TxManager) *CountSessionRepo {
	return &CountSessionRepo{
		Table: postgres.NewTable(txm, countSessionsTable, "count session",
			func() *counting.Session { return &counting.Session{} }),
		lines: postgres.NewTable(txm, countLinesTable, "count line",
			func() *counting.Line { return &counting.Line{} }),
	}
}

func (r *CountSessionRepo) Create(ctx context.Context, s *counting.Session) error {
	return r.Insert(ctx, s)
}

// Update writes lifecycle fields. Stats belong to ApplyStatsDelta and SetStats.
func (r *CountSessionRepo) Update(ctx context.Context, s *counting.Session) error {
	return r.Table.Update(ctx, s, statsCols...)
}

func (r *CountSessionRepo) GetForUpdate(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.Lock(ctx, sessionID, postgres.LockUpdate)
}

func (r *CountSessionRepo) GetForShare(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.Lock(ctx, sessionID, postgres.LockShare)
}

// List returns sessions, newest code first by default.
func (r *CountSessionRepo) List(ctx context.Context, filter counting.ListFilter) (domain.ListResult[*counting.Session], error) {
	order, err := r.OrderBy(filter.OrderBy, "code DESC")
	if err != nil {
		return domain.ListResult[*counting.Session]{}, err
	}
	return r.Page(ctx, applySessionFilter(r.Select(), filter), filter.Limit, filter.Offset, order)
}

func applySessionFilter(q squirrel.SelectBuilder, f counting.ListFilter) squirrel.SelectBuilder {
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if len(f.Types) > 0 {
		q = q.Where(squirrel.Eq{"session_type": f.Types})
	}
	if f.Created.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.Created.From})
	}
	if f.Created.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.Created.To})
	}
	if f.Search != "" {
		q = q.Where(squirrel.ILike{"code": "%" + f.Search + "%"})
	}
	return q
}

// ApplyStatsDelta adds delta in a single statement so concurrent count
// entries never lose an increment.
func (r *CountSessionRepo) ApplyStatsDelta(ctx context.Context, sessionID id.ID, delta counting.Stats) error {
	q := r.SQL().
		Update(countSessionsTable).
		Set("total_lines", squirrel.Expr("total_lines + ?", delta.TotalLines)).
		Set("counted_lines", squirrel.Expr("counted_lines + ?", delta.CountedLines)).
		Set("discrepancy_lines", squirrel.Expr("discrepancy_lines + ?", delta.DiscrepancyLines)).
		Set("monetary_gap", squirrel.Expr("monetary_gap + ?", delta.MonetaryGap)).
		Where(squirrel.Eq{"id": sessionID})

	return r.ExecOne(ctx, q, sessionID.String())
}

// SetStats overwrites the stored stats.
func (r *CountSessionRepo) SetStats(ctx context.Context, sessionID id.ID, stats counting.Stats) error {
	q := r.SQL().
		Update(countSessionsTable).
		Set("total_lines", stats.TotalLines).
		Set("counted_lines", stats.CountedLines).
		Set("discrepancy_lines", stats.DiscrepancyLines).
		Set("monetary_gap", stats.MonetaryGap).
		Where(squirrel.Eq{"id": sessionID})

	return r.ExecOne(ctx, q, sessionID.String())
}

// InsertLines bulk-inserts frozen lines.
func (r *CountSessionRepo) InsertLines(ctx context.Context, lines []*counting.Line) error {
	if len(lines) == 0 {
		return nil
	}

	cols := r.lines.Columns()
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		data := postgres.StructToMap(l)
		row := make([]any, len(cols))
		for i, col := range cols {
			row[i] = copyValue(data[col])
		}
		rows = append(rows, row)
	}

	// COPY needs a transaction; outside one fall back to a multi-row INSERT.
	if r.TxManager().GetTx(ctx) != nil {
		_, err := r.TxManager().CopyRows(ctx, countLinesTable, cols, rows)
		return err
	}

	q := r.SQL().Insert(countLinesTable).Columns(cols...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	_, err := r.lines.Exec(ctx, q)
	return err
}

// copyValue adapts values the binary COPY encoder cannot take directly.
func copyValue(v any) any {
	if m, ok := v.(types.Money); ok {
		return m.String()
	}
	return v
}

// GetLineForUpdate locks one line of a session.
func (r *CountSessionRepo) GetLineForUpdate(ctx context.Context, sessionID, lineID id.ID) (*counting.Line, error) {
	q := r.selectLines(sessionID).
		Where(squirrel.Eq{"id": lineID}).
		Suffix(postgres.LockUpdate)
	return r.lines.Get(ctx, q, lineID.String())
}

// FindLineForUpdate locks the line of a session for an item at a location and lot.
func (r *CountSessionRepo) FindLineForUpdate(ctx context.Context, sessionID, itemID id.ID, locationCode, lot string) (*counting.Line, error) {
	q := r.selectLines(sessionID).
		Where(squirrel.Eq{"item_id": itemID, "location_code": locationCode, "lot": lot}).
		Suffix(postgres.LockUpdate)
	return r.lines.Get(ctx, q, itemID.String()+"@"+locationCode)
}

// UpdateLine writes count fields when the stored version matches.
func (r *CountSessionRepo) UpdateLine(ctx context.Context, line *counting.Line, expectedVersion int) error {
	q := r.SQL().
		Update(countLinesTable).
		Set("counted_qty", line.CountedQty).
		Set("diff_qty", line.DiffQty).
		Set("is_discrepancy", line.IsDiscrepancy).
		Set("counted_by", line.CountedBy).
		Set("counted_at", line.CountedAt).
		Set("notes", line.Notes).
		Set("recount", line.Recount).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": line.ID, "version": expectedVersion})

	n, err := r.lines.Exec(ctx, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewConcurrentModification("count line", line.ID.String())
	}
	line.Version = expectedVersion + 1
	return nil
}

// ListLines returns a page of lines in line order.
func (r *CountSessionRepo) ListLines(ctx context.Context, sessionID id.ID, filter counting.LineFilter) (domain.ListResult[*counting.Line], error) {
	q := applyLineFilter(r.selectLines(sessionID), filter)
	return r.lines.Page(ctx, q, filter.Limit, filter.Offset, "line_no")
}

func applyLineFilter(q squirrel.SelectBuilder, f counting.LineFilter) squirrel.SelectBuilder {
	if f.LocationCode != "" {
		q = q.Where(squirrel.Eq{"location_code": f.LocationCode})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.Counted != nil {
		if *f.Counted {
			q = q.Where(squirrel.NotEq{"counted_qty": nil})
		} else {
			q = q.Where(squirrel.Eq{"counted_qty": nil})
		}
	}
	if f.Discrepancies {
		q = q.Where(squirrel.Eq{"is_discrepancy": true})
	}
	if f.Recount {
		q = q.Where(squirrel.Eq{"recount": true})
	}
	return q
}

// AllLines returns every line of a session in line order.
func (r *CountSessionRepo) AllLines(ctx context.Context, sessionID id.ID) ([]*counting.Line, error) {
	return r.lines.All(ctx, r.selectLines(sessionID).OrderBy("line_no"))
}

// Uncounted returns how many lines lack a count and the first limit of
// their line numbers.
func (r *CountSessionRepo) Uncounted(ctx context.Context, sessionID id.ID, limit int) (int, []int, error) {
	const sql = `
		SELECT COUNT(*),
		       COALESCE((array_agg(line_no ORDER BY line_no))[1:$2], '{}')
		FROM doc_count_lines
		WHERE session_id = $1 AND counted_qty IS NULL
	`

	var (
		n   int
		nos []int
	)
	if err := r.Querier(ctx).QueryRow(ctx, sql, sessionID, limit).Scan(&n, &nos); err != nil {
		return 0, nil, fmt.Errorf("count uncounted lines: %w", err)
	}
	return n, nos, nil
}

func (r *CountSessionRepo) selectLines(sessionID id.ID) squirrel.SelectBuilder {
	return r.lines.Select().Where(squirrel.Eq{"session_id": sessionID})
}
