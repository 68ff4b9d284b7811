// Package catalog_repo provides PostgreSQL implementations for the location
// directory and the stock item catalog.
package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/domain"
	"stockledger/internal/infrastructure/storage/postgres"
)

// catalogOrder is the default listing order; id breaks ties.
const catalogOrder = "code ASC"

// catalogFilter applies the shared catalog filter: live rows unless asked
// otherwise, text search over code and name, explicit ids.
func catalogFilter(q squirrel.SelectBuilder, f domain.ListFilter) squirrel.SelectBuilder {
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(squirrel.Or{squirrel.ILike{"code": pattern}, squirrel.ILike{"name": pattern}})
	}
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	return q
}

// listCatalog pages q through the shared filter with a validated order.
func listCatalog[T any](ctx context.Context, t *postgres.Table[T], q squirrel.SelectBuilder, f domain.ListFilter) (domain.ListResult[T], error) {
	order, err := t.OrderBy(f.OrderBy, catalogOrder)
	if err != nil {
		return domain.ListResult[T]{}, err
	}
	return t.Page(ctx, catalogFilter(q, f), f.Limit, f.Offset, order, "id ASC")
}

// liveCode matches a live row by code.
func liveCode(code string) squirrel.Eq {
	return squirrel.Eq{"code": code, "deletion_mark": false}
}
