package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

type mockLocation struct {
	entity.BaseDocument
	Code    string `db:"code" json:"code"`
	Zone    string `db:"zone" json:"zone"`
	Scratch string `db:"-" json:"-"`
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[mockLocation]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "created_at", "updated_at", "created_by", "updated_by", "code", "zone",
	}

	assert.ElementsMatch(t, expectedCols, cols)
	assert.NotContains(t, cols, "-")
}

func TestStructToMap_Embedded(t *testing.T) {
	now := time.Now().UTC()
	loc := mockLocation{
		BaseDocument: entity.BaseDocument{
			BaseEntity: entity.BaseEntity{
				ID:           id.New(),
				DeletionMark: true,
				Version:      5,
			},
			CreatedAt: now,
			CreatedBy: "u-1",
		},
		Code:    "A1",
		Zone:    "A",
		Scratch: "ignored",
	}

	m := StructToMap(&loc)

	assert.Equal(t, loc.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "u-1", m["created_by"])
	assert.Equal(t, "A1", m["code"])
	assert.Equal(t, "A", m["zone"])
	assert.NotContains(t, m, "Scratch")
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}

type mockStats struct {
	Total   int `db:"total_lines"`
	Counted int `db:"counted_lines"`
}

type mockSession struct {
	entity.BaseEntity
	mockStats `json:"stats"`
	Code      string `db:"code"`
}

func TestColumns_PromotedFromUntaggedEmbed(t *testing.T) {
	cols := ExtractDBColumns[mockSession]()
	assert.Equal(t, []string{"id", "deletion_mark", "version", "total_lines", "counted_lines", "code"}, cols)

	s := &mockSession{mockStats: mockStats{Total: 4, Counted: 1}, Code: "CC-1"}
	m := StructToMap(s)
	assert.Equal(t, 4, m["total_lines"])
	assert.Equal(t, 1, m["counted_lines"])
	assert.Len(t, m, 6)
}

func TestStructToMap_NilPointer(t *testing.T) {
	var loc *mockLocation
	assert.Nil(t, StructToMap(loc))
}
