package location

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"A1", "A1"},
		{"  A1 ", "A1"},
		{"Warehouse A (A1)", "A1"},
		{"Rack ( B-02 ) upper", "B-02"},
		{"Bin (C3) (D4)", "C3"},
		{"Empty ()", "Empty ()"},
		{"Unclosed (A1", "Unclosed (A1"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalKey(tt.raw))
		})
	}
}

func TestMergeCounts(t *testing.T) {
	got := MergeCounts(
		map[string]int64{"Rack (A1)": 2, "B2": 1},
		map[string]int64{"A1": 3, " ": 7, "Dock (D1)": 4},
	)

	assert.Equal(t, map[string]int64{"A1": 5, "B2": 1, "D1": 4}, got)
}

func TestMergeCounts_InputsUntouched(t *testing.T) {
	dst := map[string]int64{"A1": 1}

	_ = MergeCounts(dst, map[string]int64{"A1": 1})

	assert.Equal(t, map[string]int64{"A1": 1}, dst)
}

func TestLocation_Validate(t *testing.T) {
	loc := NewLocation("Aisle 4 (A4)", "", "north")
	assert.Equal(t, "A4", loc.Code)
	assert.Equal(t, "Aisle 4 (A4)", loc.Name)
	assert.NoError(t, loc.Validate(t.Context()))

	loc.Code = "Aisle (A4)"
	assert.True(t, apperror.HasCode(loc.Validate(t.Context()), apperror.CodeValidation))

	loc = NewLocation("A4", "", "")
	negative := int64(-1)
	loc.Capacity = &negative
	assert.True(t, apperror.HasCode(loc.Validate(t.Context()), apperror.CodeValidation))
}

func TestNewPlaceholder(t *testing.T) {
	loc := NewPlaceholder(" Unknown (X9) ")

	assert.Equal(t, "X9", loc.Code)
	assert.True(t, loc.AutoCreated)
}
