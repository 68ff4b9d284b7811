package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/snapshot"
)

func TestCandidatesQuery(t *testing.T) {
	repo := NewSnapshotRepo(nil)
	sq, err := counting.Scope{Zones: []string{"north"}, Classes: []string{"a"}}.Build()
	require.NoError(t, err)

	sql, args, err := repo.candidatesQuery(sq).ToSql()

	require.NoError(t, err)
	assert.Equal(t, "SELECT s.id AS snapshot_id, s.item_id, i.code AS item_code, i.name AS item_name, "+
		"i.category, i.abc_class, i.unit_cost, s.location_code, COALESCE(l.zone, '') AS zone, s.lot, s.quantity "+
		"FROM reg_inventory_snapshot s "+
		"JOIN cat_stock_items i ON i.id = s.item_id AND i.active "+
		"LEFT JOIN cat_locations l ON l.code = s.location_code "+
		"WHERE COALESCE(l.zone, '') = ANY($1) AND i.abc_class = ANY($2) "+
		"ORDER BY s.location_code, i.code, s.lot", sql)
	assert.Equal(t, []any{[]string{"north"}, []string{"A"}}, args)
}

func TestCandidatesQuery_Unrestricted(t *testing.T) {
	repo := NewSnapshotRepo(nil)

	sql, args, err := repo.candidatesQuery(counting.ScopeQuery{}).ToSql()

	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)
}

func TestApplySnapshotFilter(t *testing.T) {
	repo := NewSnapshotRepo(nil)
	itemID := id.New()

	q := applySnapshotFilter(repo.builder.Select("id").From(snapshotTable), snapshot.Filter{
		ItemID:  &itemID,
		Zones:   []string{"north", "south"},
		NonZero: true,
	})
	sql, args, err := q.ToSql()

	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM reg_inventory_snapshot WHERE item_id = $1 "+
		"AND location_code IN (SELECT code FROM cat_locations WHERE zone = ANY($2)) "+
		"AND quantity <> $3", sql)
	assert.Equal(t, []any{itemID.String(), []string{"north", "south"}, 0}, args)
}

func TestApplyMovementFilter(t *testing.T) {
	repo := NewMovementRepo(nil)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	completed := ledger.StatusCompleted

	tests := []struct {
		name     string
		filter   ledger.MovementFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "live only",
			filter:   ledger.MovementFilter{},
			wantSQL:  "SELECT id FROM reg_movements WHERE deleted = $1",
			wantArgs: []any{false},
		},
		{
			name: "status batch and date",
			filter: ledger.MovementFilter{
				Status:   &completed,
				BatchKey: "b-1",
				Created:  domain.DateRange{From: &from},
			},
			wantSQL:  "SELECT id FROM reg_movements WHERE deleted = $1 AND status = $2 AND batch_key = $3 AND created_at >= $4",
			wantArgs: []any{false, completed, "b-1", from},
		},
		{
			name: "types with deleted",
			filter: ledger.MovementFilter{
				ListFilter: domain.ListFilter{IncludeDeleted: true},
				Types:      []ledger.MovementType{ledger.MovementReceipt, ledger.MovementIssue},
				Actor:      "clerk-1",
			},
			wantSQL:  "SELECT id FROM reg_movements WHERE created_by = $1 AND type IN ($2,$3)",
			wantArgs: []any{"clerk-1", ledger.MovementReceipt, ledger.MovementIssue},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := applyMovementFilter(repo.SQL().Select("id").From(movementsTable), tt.filter)
			sql, args, err := q.ToSql()

			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestMovementColumns(t *testing.T) {
	cols := NewMovementRepo(nil).Columns()
	assert.Contains(t, cols, "prev_location_qty")
	assert.Contains(t, cols, "reversal_shortfall")
	assert.Contains(t, snapshotCols, "last_movement_at")
}
