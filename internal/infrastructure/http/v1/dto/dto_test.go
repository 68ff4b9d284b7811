package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
)

func TestCreateLocationRequest_Canonicalizes(t *testing.T) {
	req := CreateLocationRequest{Code: "Aisle 4 (A4)", Zone: " north "}

	loc := req.ToEntity()

	assert.Equal(t, "A4", loc.Code)
	assert.Equal(t, "north", loc.Zone)
	assert.Equal(t, "Aisle 4 (A4)", loc.Name)
}

func TestCreateMovementRequest_ToEntity(t *testing.T) {
	itemID := id.New()
	req := CreateMovementRequest{
		ItemID:     itemID.String(),
		Type:       "receipt",
		Quantity:   4,
		ToLocation: "A1",
		BatchKey:   "b-1",
	}

	m, err := req.ToEntity()

	require.NoError(t, err)
	assert.Equal(t, itemID, m.ItemID)
	assert.Equal(t, ledger.StatusDraft, m.Status)
	assert.Equal(t, "b-1", m.BatchKey)

	req.ItemID = "not-an-id"
	_, err = req.ToEntity()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestMovementListQuery_ToFilter(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := MovementListQuery{
		ListQuery:    ListQuery{Limit: 10},
		CreatedRange: CreatedRange{CreatedFrom: &from},
		Types:        []string{"issue", "transfer"},
		Status:       "completed",
	}

	f, err := q.ToFilter()

	require.NoError(t, err)
	assert.Equal(t, []ledger.MovementType{ledger.MovementIssue, ledger.MovementTransfer}, f.Types)
	require.NotNil(t, f.Status)
	assert.Equal(t, ledger.StatusCompleted, *f.Status)
	assert.Equal(t, &from, f.Created.From)
	assert.Nil(t, f.ItemID)
	assert.Equal(t, 10, f.Limit)
}

func TestCountSessionListQuery_ToFilter(t *testing.T) {
	f, err := CountSessionListQuery{Statuses: []string{"counting", "review"}}.ToFilter()

	require.NoError(t, err)
	assert.Equal(t, []counting.Status{counting.StatusActive, counting.StatusReview}, f.Statuses)

	_, err = CountSessionListQuery{Statuses: []string{"archived"}}.ToFilter()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestNewListResponse(t *testing.T) {
	res := domain.ListResult[int]{Items: []int{1, 2}, TotalCount: 7, Limit: 2, Offset: 4}

	out := NewListResponse(res, func(v int) int { return v * 10 })

	assert.Equal(t, []int{10, 20}, out.Items)
	assert.Equal(t, int64(7), out.TotalCount)
	assert.Equal(t, 4, out.Offset)

	empty := NewListResponse(domain.ListResult[int]{}, func(v int) int { return v })
	assert.NotNil(t, empty.Items)
}

func TestFromItem_CopiesLocations(t *testing.T) {
	item := ledger.NewStockItem("SKU-1", "Bolt")
	item.Locations["A1"] = 3

	resp := FromItem(item)
	resp.Locations["A1"] = 99

	assert.Equal(t, int64(3), item.Locations["A1"])
	assert.Nil(t, resp.MergedInto)
}
