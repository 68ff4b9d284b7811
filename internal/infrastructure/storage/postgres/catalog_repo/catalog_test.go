package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/infrastructure/storage/postgres"
)

type row struct {
	ID   id.ID  `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}

func rows() *postgres.Table[*row] {
	return postgres.NewTable(nil, "rows", "row", func() *row { return &row{} })
}

func TestCatalogFilter(t *testing.T) {
	rowID := id.New()

	tests := []struct {
		name     string
		filter   domain.ListFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "live rows only",
			wantSQL:  "SELECT id, code, name FROM rows WHERE deletion_mark = $1",
			wantArgs: []any{false},
		},
		{
			name:     "search code and name",
			filter:   domain.ListFilter{Search: "bolt"},
			wantSQL:  "SELECT id, code, name FROM rows WHERE deletion_mark = $1 AND (code ILIKE $2 OR name ILIKE $3)",
			wantArgs: []any{false, "%bolt%", "%bolt%"},
		},
		{
			name:     "ids with deleted",
			filter:   domain.ListFilter{IncludeDeleted: true, IDs: []id.ID{rowID}},
			wantSQL:  "SELECT id, code, name FROM rows WHERE id IN ($1)",
			wantArgs: []any{rowID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := catalogFilter(rows().Select(), tt.filter).ToSql()

			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestHeldAt(t *testing.T) {
	sql, args, err := rows().Select().Where(heldAt("A1")).ToSql()

	require.NoError(t, err)
	assert.Equal(t, "SELECT id, code, name FROM rows WHERE COALESCE((locations->>$1)::bigint, 0) > 0", sql)
	assert.Equal(t, []any{"A1"}, args)
}

func TestLiveCode(t *testing.T) {
	sql, args, err := rows().Select().Where(liveCode("A-01")).ToSql()

	require.NoError(t, err)
	assert.Equal(t, "SELECT id, code, name FROM rows WHERE code = $1 AND deletion_mark = $2", sql)
	assert.Equal(t, []any{"A-01", false}, args)
}
