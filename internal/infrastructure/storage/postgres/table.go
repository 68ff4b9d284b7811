package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Row locks for Table.Lock.
const (
	LockUpdate = "FOR UPDATE"
	LockShare  = "FOR SHARE"
)

const uniqueViolation = "23505"

// readOnlyCols are never rewritten by Table.Update.
var readOnlyCols = []string{"id", "version", "created_at", "created_by"}

// Table is the CRUD core the catalog and document repositories embed.
// T is a pointer to a struct with "db" tags; columns are derived from it.
// Rows carrying a "version" column are updated optimistically.
type Table[T any] struct {
	txm    *TxManager
	name   string
	entity string
	cols   []string
	newFn  func() T
	sql    squirrel.StatementBuilderType
}

// NewTable describes table name holding T. entity names T in errors.
func NewTable[T any](txm *TxManager, name, entity string, newFn func() T) *Table[T] {
	return &Table[T]{
		txm:    txm,
		name:   name,
		entity: entity,
		cols:   ExtractDBColumns[T](),
		newFn:  newFn,
		sql:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (t *Table[T]) Name() string      { return t.name }
func (t *Table[T]) Columns() []string { return t.cols }

// SQL returns a builder with Postgres placeholders.
func (t *Table[T]) SQL() squirrel.StatementBuilderType { return t.sql }

// Querier returns the context transaction or the pool.
func (t *Table[T]) Querier(ctx context.Context) Querier { return t.txm.GetQuerier(ctx) }

// TxManager exposes the manager for repositories that need the raw tx.
func (t *Table[T]) TxManager() *TxManager { return t.txm }

// Select starts a SELECT of every column.
func (t *Table[T]) Select() squirrel.SelectBuilder {
	return t.sql.Select(t.cols...).From(t.name)
}

// values maps the entity's columns that exist in the table, minus skip.
func (t *Table[T]) values(entity T, skip ...string) map[string]any {
	data := StructToMap(entity)
	out := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		if slices.Contains(skip, c) {
			continue
		}
		if v, ok := data[c]; ok {
			out[c] = v
		}
	}
	return out
}

func (t *Table[T]) insert(entity T) squirrel.InsertBuilder {
	return t.sql.Insert(t.name).SetMap(t.values(entity))
}

// Insert writes a new row. A unique violation becomes a Duplicate error
// on the row's code.
func (t *Table[T]) Insert(ctx context.Context, entity T) error {
	q := t.insert(entity)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", t.name, err)
	}
	if _, err := t.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			code, _ := StructToMap(entity)["code"].(string)
			return apperror.NewDuplicate(t.entity, "code", code).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	return nil
}

// InsertIfAbsent inserts unless a unique key already exists and reports
// whether a row was written.
func (t *Table[T]) InsertIfAbsent(ctx context.Context, entity T) (bool, error) {
	sql, args, err := t.insert(entity).Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert %s: %w", t.name, err)
	}
	tag, err := t.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Update rewrites the row where id and version match the entity and bumps
// the version. Columns in skip are owned by narrower statements.
// A version mismatch is a ConcurrentModification error.
func (t *Table[T]) Update(ctx context.Context, entity T, skip ...string) error {
	data := StructToMap(entity)
	rowID, version := data["id"], data["version"]
	if rowID == nil || version == nil {
		return fmt.Errorf("%s: entity lacks id or version column", t.name)
	}
	q := t.sql.Update(t.name).
		SetMap(t.values(entity, slices.Concat(skip, readOnlyCols)...)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rowID, "version": version})

	n, err := t.Exec(ctx, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewConcurrentModification(t.entity, rowID)
	}
	if b, ok := any(entity).(interface{ Bump() }); ok {
		b.Bump()
	}
	return nil
}

// Exec runs q and returns the affected row count.
func (t *Table[T]) Exec(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", t.name, err)
	}
	tag, err := t.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec on %s: %w", t.name, err)
	}
	return tag.RowsAffected(), nil
}

// ExecOne runs q and reports NotFound(key) when it touched no row.
func (t *Table[T]) ExecOne(ctx context.Context, q squirrel.Sqlizer, key string) error {
	n, err := t.Exec(ctx, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound(t.entity, key)
	}
	return nil
}

// Get scans the first row of q. key names the row in a NotFound error.
func (t *Table[T]) Get(ctx context.Context, q squirrel.SelectBuilder, key string) (T, error) {
	entity := t.newFn()
	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return entity, fmt.Errorf("build %s query: %w", t.name, err)
	}
	if err := pgxscan.Get(ctx, t.Querier(ctx), entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity, apperror.NewNotFound(t.entity, key)
		}
		return entity, fmt.Errorf("get %s: %w", t.entity, err)
	}
	return entity, nil
}

func (t *Table[T]) GetByID(ctx context.Context, rowID id.ID) (T, error) {
	return t.Get(ctx, t.Select().Where(squirrel.Eq{"id": rowID}), rowID.String())
}

// Lock is GetByID with a row lock; it must run inside a transaction.
func (t *Table[T]) Lock(ctx context.Context, rowID id.ID, lock string) (T, error) {
	return t.Get(ctx, t.Select().Where(squirrel.Eq{"id": rowID}).Suffix(lock), rowID.String())
}

// All scans every row of q.
func (t *Table[T]) All(ctx context.Context, q squirrel.SelectBuilder) ([]T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", t.name, err)
	}
	var out []T
	if err := pgxscan.Select(ctx, t.Querier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}
	return out, nil
}

// Page counts q, then returns the requested window ordered by orderBy.
func (t *Table[T]) Page(ctx context.Context, q squirrel.SelectBuilder, limit, offset int, orderBy ...string) (domain.ListResult[T], error) {
	res := domain.ListResult[T]{Limit: limit, Offset: offset}

	countSQL, countArgs, err := t.sql.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return res, fmt.Errorf("build %s count: %w", t.name, err)
	}
	if err := t.Querier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&res.TotalCount); err != nil {
		return res, fmt.Errorf("count %s: %w", t.name, err)
	}

	q = q.OrderBy(orderBy...)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	res.Items, err = t.All(ctx, q)
	return res, err
}

// OrderBy validates a client sort key ("name", "-created_at") against the
// table's columns. Empty input yields fallback.
func (t *Table[T]) OrderBy(raw, fallback string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dir := " ASC"
	field := raw
	switch raw[0] {
	case '-':
		dir, field = " DESC", raw[1:]
	case '+':
		field = raw[1:]
	}
	field = strings.TrimSpace(field)
	if !slices.Contains(t.cols, field) {
		return "", apperror.NewValidation("invalid orderBy").
			WithDetail("orderBy", raw).
			WithDetail("field", field)
	}
	return field + dir, nil
}

// Exists reports whether any row matches where.
func (t *Table[T]) Exists(ctx context.Context, where squirrel.Sqlizer) (bool, error) {
	sql, args, err := t.sql.Select("1").From(t.name).Where(where).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build %s exists: %w", t.name, err)
	}
	var one int
	err = t.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("exists in %s: %w", t.name, err)
	}
	return true, nil
}

// SetDeletionMark soft-deletes or restores a row.
func (t *Table[T]) SetDeletionMark(ctx context.Context, rowID id.ID, marked bool) error {
	q := t.sql.Update(t.name).
		Set("deletion_mark", marked).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": rowID})
	return t.ExecOne(ctx, q, rowID.String())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
