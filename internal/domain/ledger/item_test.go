package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
)

func newItem(qty int64, primary string, locs Quantities) *StockItem {
	it := NewStockItem("SKU-1", "Widget")
	it.Quantity = qty
	it.PrimaryLocation = primary
	if locs != nil {
		it.Locations = locs
	}
	return it
}

func TestStockItem_Receive(t *testing.T) {
	it := newItem(0, "", nil)

	require.NoError(t, it.Receive("Dock (D1)", 5))
	require.NoError(t, it.Receive("A1", 3))

	assert.Equal(t, int64(8), it.Quantity)
	assert.Equal(t, int64(5), it.Locations.Get("D1"))
	assert.Equal(t, int64(3), it.Locations.Get("A1"))
	assert.Equal(t, "A1", it.PrimaryLocation)
}

func TestStockItem_Receive_KeepsInferredStockAtOldPrimary(t *testing.T) {
	it := newItem(10, "Z9", nil)

	require.NoError(t, it.Receive("A1", 3))

	assert.Equal(t, int64(13), it.Quantity)
	assert.Equal(t, "A1", it.PrimaryLocation)
	assert.Equal(t, int64(10), it.Available("Z9"))
	assert.Equal(t, int64(3), it.Available("A1"))
	require.NoError(t, it.Issue("Z9", 1))
	assert.Equal(t, Quantities{"A1": 3, "Z9": 9}, it.Locations)
}

func TestStockItem_Receive_CanonicalizesStoredLabels(t *testing.T) {
	it := newItem(6, "Rack (A1)", Quantities{"Shelf (A1)": 4})

	require.NoError(t, it.Receive("B2", 1))

	assert.Equal(t, Quantities{"A1": 4, "B2": 1}, it.Locations)
	assert.Equal(t, int64(7), it.Quantity)
}

func TestStockItem_Normalize(t *testing.T) {
	it := newItem(3, " Rack (A1) ", nil)
	it.Locations = nil

	it.Normalize()

	assert.Equal(t, "A1", it.PrimaryLocation)
	assert.NotNil(t, it.Locations)

	it = newItem(3, "Rack (A1)", Quantities{"Shelf (A1)": 1, "B2": 2})
	it.Normalize()

	assert.Equal(t, "A1", it.PrimaryLocation)
	assert.Equal(t, Quantities{"A1": 1, "B2": 2}, it.Locations)
}

func TestStockItem_Receive_Rejects(t *testing.T) {
	it := newItem(0, "", nil)

	assert.True(t, apperror.HasCode(it.Receive("  ", 1), apperror.CodeValidation))
	assert.True(t, apperror.HasCode(it.Receive("A1", 0), apperror.CodeValidation))
	assert.True(t, apperror.HasCode(it.Receive("A1", -2), apperror.CodeValidation))
	assert.Zero(t, it.Quantity)
}

func TestStockItem_Issue_InfersPrimary(t *testing.T) {
	// Legacy record: aggregate only, no breakdown.
	it := newItem(10, "A1", Quantities{})

	require.NoError(t, it.Issue("A1", 3))

	assert.Equal(t, int64(7), it.Quantity)
	assert.Equal(t, int64(7), it.Locations.Get("A1"))
}

func TestStockItem_Issue_Insufficient(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 2, "B2": 8})

	err := it.Issue("A1", 3)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, int64(3), appErr.Details["requested"])
	assert.Equal(t, int64(2), appErr.Details["available"])
	assert.Equal(t, "A1", appErr.Details["location"])

	// untouched
	assert.Equal(t, int64(10), it.Quantity)
	assert.Equal(t, int64(2), it.Locations.Get("A1"))
}

func TestStockItem_Issue_AggregateShort(t *testing.T) {
	// Breakdown claims more than the aggregate holds.
	it := newItem(2, "A1", Quantities{"B2": 5})

	err := it.Issue("B2", 4)

	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, int64(5), it.Locations.Get("B2"))
}

func TestStockItem_Issue_NonPrimaryWithoutEntry(t *testing.T) {
	it := newItem(10, "A1", Quantities{})

	err := it.Issue("B2", 1)

	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestStockItem_Transfer(t *testing.T) {
	it := newItem(10, "A1", Quantities{})

	require.NoError(t, it.Transfer("A1", "Overflow (B2)", 4))

	assert.Equal(t, int64(10), it.Quantity)
	assert.Equal(t, int64(6), it.Locations.Get("A1"))
	assert.Equal(t, int64(4), it.Locations.Get("B2"))
}

func TestStockItem_Transfer_SameLocation(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 10})

	err := it.Transfer("A1", "Rack (A1)", 1)

	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestStockItem_Transfer_RoundTripRestoresAvailability(t *testing.T) {
	it := newItem(10, "A1", Quantities{"C3": 2})
	before := map[string]int64{"A1": it.Available("A1"), "B2": it.Available("B2"), "C3": it.Available("C3")}

	m := &Movement{Type: MovementTransfer, FromLocation: "A1", ToLocation: "B2", Quantity: 5}
	require.NoError(t, it.Transfer("A1", "B2", 5))
	require.NoError(t, it.Transfer("B2", "A1", 5))
	assert.Equal(t, before, map[string]int64{"A1": it.Available("A1"), "B2": it.Available("B2"), "C3": it.Available("C3")})

	require.NoError(t, it.Transfer("A1", "B2", 5))
	outcome := it.Reverse(m)
	assert.Equal(t, ReversalExact, outcome.Kind)
	assert.Equal(t, before, map[string]int64{"A1": it.Available("A1"), "B2": it.Available("B2"), "C3": it.Available("C3")})
	assert.Equal(t, int64(10), it.Quantity)
}

func TestStockItem_Adjust(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 10})

	prevLoc, prevAgg, err := it.Adjust("A1", 4)

	require.NoError(t, err)
	assert.Equal(t, int64(10), prevLoc)
	assert.Equal(t, int64(10), prevAgg)
	assert.Equal(t, int64(4), it.Quantity)
	assert.Equal(t, int64(4), it.Locations.Get("A1"))

	_, _, err = it.Adjust("A1", -1)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestStockItem_Reverse_Receipt(t *testing.T) {
	it := newItem(0, "", nil)
	require.NoError(t, it.Receive("A1", 5))

	outcome := it.Reverse(&Movement{Type: MovementReceipt, ToLocation: "A1", Quantity: 5})

	assert.Equal(t, ReversalOutcome{Kind: ReversalExact}, outcome)
	assert.Zero(t, it.Quantity)
	assert.Zero(t, it.Locations.Get("A1"))
}

func TestStockItem_Reverse_ReceiptClamped(t *testing.T) {
	it := newItem(0, "", nil)
	require.NoError(t, it.Receive("A1", 5))
	require.NoError(t, it.Issue("A1", 4))

	outcome := it.Reverse(&Movement{Type: MovementReceipt, ToLocation: "A1", Quantity: 5})

	assert.Equal(t, ReversalClamped, outcome.Kind)
	assert.Equal(t, int64(4), outcome.Shortfall)
	assert.Zero(t, it.Quantity)
	assert.Zero(t, it.Locations.Get("A1"))
}

func TestStockItem_Reverse_Issue(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 10})
	require.NoError(t, it.Issue("A1", 3))

	outcome := it.Reverse(&Movement{Type: MovementIssue, FromLocation: "A1", Quantity: 3})

	assert.Equal(t, ReversalExact, outcome.Kind)
	assert.Equal(t, int64(10), it.Quantity)
	assert.Equal(t, int64(10), it.Locations.Get("A1"))
}

func TestStockItem_Reverse_TransferClamped(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 10})
	require.NoError(t, it.Transfer("A1", "B2", 6))
	require.NoError(t, it.Issue("B2", 4))

	outcome := it.Reverse(&Movement{Type: MovementTransfer, FromLocation: "A1", ToLocation: "B2", Quantity: 6})

	assert.Equal(t, ReversalClamped, outcome.Kind)
	assert.Equal(t, int64(4), outcome.Shortfall)
	assert.Equal(t, int64(6), it.Locations.Get("A1"))
	assert.Zero(t, it.Locations.Get("B2"))
}

func TestStockItem_Reverse_Adjustment(t *testing.T) {
	it := newItem(10, "A1", Quantities{"A1": 10})
	m := &Movement{Type: MovementAdjustment, ToLocation: "A1", Quantity: 4}
	require.NoError(t, m.Apply(it, testTime))

	outcome := it.Reverse(m)

	assert.Equal(t, ReversalExact, outcome.Kind)
	assert.Equal(t, int64(10), it.Quantity)
	assert.Equal(t, int64(10), it.Locations.Get("A1"))
}

func TestStockItem_Reverse_AdjustmentUpClamped(t *testing.T) {
	it := newItem(2, "A1", Quantities{"A1": 2})
	m := &Movement{Type: MovementAdjustment, ToLocation: "A1", Quantity: 9}
	require.NoError(t, m.Apply(it, testTime))
	require.NoError(t, it.Issue("A1", 8))

	outcome := it.Reverse(m)

	// Undoing +7 with only 1 left clamps at zero.
	assert.Equal(t, ReversalClamped, outcome.Kind)
	assert.Equal(t, int64(6), outcome.Shortfall)
	assert.Zero(t, it.Quantity)
	assert.Zero(t, it.Locations.Get("A1"))
}

func TestStockItem_Absorb(t *testing.T) {
	survivor := newItem(5, "A1", Quantities{"A1": 5})
	dup := newItem(3, "B2", Quantities{"Overflow (B2)": 3})

	survivor.Absorb(dup)

	assert.Equal(t, int64(8), survivor.Quantity)
	assert.Equal(t, int64(3), survivor.Locations.Get("B2"))
	assert.Zero(t, dup.Quantity)
	assert.Empty(t, dup.Locations)
	assert.False(t, dup.Active)
	require.NotNil(t, dup.MergedInto)
	assert.Equal(t, survivor.ID, *dup.MergedInto)
}

func TestStockItem_Validate(t *testing.T) {
	it := NewStockItem("SKU-1", "Widget")
	require.NoError(t, it.Validate(t.Context()))

	it.ABCClass = "D"
	assert.True(t, apperror.HasCode(it.Validate(t.Context()), apperror.CodeValidation))

	it = NewStockItem(" ", "Widget")
	assert.True(t, apperror.HasCode(it.Validate(t.Context()), apperror.CodeValidation))

	it = NewStockItem("SKU-1", "Widget")
	it.UnitCost = types.MustMoney("-0.01")
	assert.True(t, apperror.HasCode(it.Validate(t.Context()), apperror.CodeValidation))
}

func TestStockItem_MixedSequenceStaysNonNegative(t *testing.T) {
	type step struct {
		m       *Movement
		reverse int // index of an earlier step to reverse instead of applying m
	}
	apply := func(typ MovementType, from, to string, qty int64) step {
		return step{m: &Movement{Type: typ, FromLocation: from, ToLocation: to, Quantity: qty}, reverse: -1}
	}
	undo := func(i int) step { return step{reverse: i} }

	tests := []struct {
		name  string
		start *StockItem
		steps []step
	}{
		{
			name:  "receipts issues and transfers",
			start: newItem(0, "", nil),
			steps: []step{
				apply(MovementReceipt, "", "A1", 5),
				apply(MovementTransfer, "A1", "B2", 3),
				apply(MovementIssue, "B2", "", 2),
				undo(0),
				apply(MovementIssue, "A1", "", 9),
				undo(1),
				undo(2),
			},
		},
		{
			name:  "legacy residual with moving primary",
			start: newItem(10, "Z9", nil),
			steps: []step{
				apply(MovementReceipt, "", "A1", 3),
				apply(MovementIssue, "Z9", "", 4),
				apply(MovementAdjustment, "", "Z9", 1),
				apply(MovementTransfer, "A1", "Z9", 2),
				undo(2),
				undo(0),
				apply(MovementIssue, "Z9", "", 20),
				undo(3),
			},
		},
		{
			name:  "adjustments reversed out of order",
			start: newItem(4, "A1", Quantities{"A1": 4}),
			steps: []step{
				apply(MovementAdjustment, "", "A1", 9),
				apply(MovementIssue, "A1", "", 8),
				apply(MovementAdjustment, "", "B2", 2),
				undo(0),
				apply(MovementReceipt, "", "B2", 1),
				undo(2),
				undo(1),
				undo(4),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := tt.start
			applied := make([]*Movement, len(tt.steps))
			for i, s := range tt.steps {
				if s.reverse >= 0 {
					if m := applied[s.reverse]; m != nil {
						it.Reverse(m)
					}
				} else if err := s.m.Apply(it, testTime); err == nil {
					applied[i] = s.m
				}

				assert.GreaterOrEqual(t, it.Quantity, int64(0), "aggregate after step %d", i)
				for key, v := range it.Locations {
					assert.GreaterOrEqual(t, v, int64(0), "%s after step %d", key, i)
				}
			}
		})
	}
}
