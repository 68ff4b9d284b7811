package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/domain/ledger"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		qty     int64
		primary string
		locs    ledger.Quantities
		want    map[string]int64
	}{
		{
			name:    "explicit breakdown",
			qty:     10,
			primary: "A1",
			locs:    ledger.Quantities{"A1": 6, "B2": 4},
			want:    map[string]int64{"A1": 6, "B2": 4},
		},
		{
			name:    "primary inferred from residual",
			qty:     10,
			primary: "A1",
			locs:    ledger.Quantities{"B2": 3},
			want:    map[string]int64{"A1": 7, "B2": 3},
		},
		{
			name:    "labels canonicalized",
			qty:     4,
			primary: "Rack (A1)",
			locs:    ledger.Quantities{"Shelf (A1)": 4},
			want:    map[string]int64{"A1": 4},
		},
		{
			name: "no primary and no breakdown",
			qty:  5,
			want: map[string]int64{"UNASSIGNED": 5},
		},
		{
			name: "empty item still has a home",
			want: map[string]int64{"UNASSIGNED": 0},
		},
		{
			name: "remainder without primary",
			qty:  5,
			locs: ledger.Quantities{"B2": 3},
			want: map[string]int64{"B2": 3, "UNASSIGNED": 2},
		},
		{
			name: "fully placed without primary",
			qty:  5,
			locs: ledger.Quantities{"B2": 5},
			want: map[string]int64{"B2": 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := ledger.NewStockItem("SKU-1", "Widget")
			item.Quantity = tt.qty
			item.PrimaryLocation = tt.primary
			if tt.locs != nil {
				item.Locations = tt.locs
			}

			assert.Equal(t, tt.want, Resolve(item))
		})
	}
}
