package counting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

func candidate() Candidate {
	return Candidate{
		ItemCode:     "SKU-1",
		ItemName:     "Hex bolt M8",
		Category:     "fasteners",
		ABCClass:     "A",
		LocationCode: "A1",
		Zone:         "north",
		Quantity:     12,
	}
}

func TestScope_Build_Canonicalizes(t *testing.T) {
	q, err := Scope{
		Locations: []string{"Aisle (A1)", "A1", " B2 "},
		Classes:   []string{"a", "A"},
		Zones:     []string{" north "},
	}.Build()

	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, q.Values(FilterLocation))
	assert.Equal(t, []string{"A"}, q.Values(FilterClass))
	assert.Equal(t, []string{"north"}, q.Values(FilterZone))
	assert.Nil(t, q.Values(FilterCategory))
	assert.Nil(t, q.Predicate)
}

func TestScope_Build_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
	}{
		{"empty location", Scope{Locations: []string{"A1", "  "}}},
		{"empty zone", Scope{Zones: []string{""}}},
		{"unknown class", Scope{Classes: []string{"D"}}},
		{"syntax error", Scope{Expression: "quantity >"}},
		{"unknown variable", Scope{Expression: "weight > 3"}},
		{"non-bool expression", Scope{Expression: "quantity + 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.scope.Build()
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestScopeQuery_Matches(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"empty scope selects everything", Scope{}, true},
		{"zone hit", Scope{Zones: []string{"north", "south"}}, true},
		{"zone miss", Scope{Zones: []string{"south"}}, false},
		{"location and class intersect", Scope{Locations: []string{"A1"}, Classes: []string{"B"}}, false},
		{"category hit", Scope{Categories: []string{"fasteners"}}, true},
		{"expression hit", Scope{Expression: `quantity > 10 && item_code.startsWith("SKU")`}, true},
		{"expression miss", Scope{Expression: `zone == "south"`}, false},
		{"filters and expression", Scope{Classes: []string{"A"}, Expression: `lot == ""`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.scope.Build()
			require.NoError(t, err)

			got, err := q.Matches(candidate())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicate_String(t *testing.T) {
	p, err := CompilePredicate(`abc_class in ["A", "B"]`)

	require.NoError(t, err)
	assert.Equal(t, `abc_class in ["A", "B"]`, p.String())
	ok, err := p.Eval(candidate())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterKind_IsLocation(t *testing.T) {
	assert.True(t, FilterZone.IsLocation())
	assert.True(t, FilterLocation.IsLocation())
	assert.False(t, FilterCategory.IsLocation())
	assert.False(t, FilterClass.IsLocation())
}
