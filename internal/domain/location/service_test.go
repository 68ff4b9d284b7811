package location_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/location"
	"stockledger/internal/testutil/memstore"
)

func newService() (*location.Service, *memstore.Store) {
	st := memstore.New()
	return location.NewService(st.Locations(), st), st
}

func TestService_Create_Canonicalizes(t *testing.T) {
	svc, _ := newService()
	loc := location.NewLocation("A1", "Aisle one", "north")
	loc.Code = "Aisle one (A1)"

	require.NoError(t, svc.Create(t.Context(), loc))

	got, err := svc.GetByCode(t.Context(), "Shelf (A1)")
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Code)
	assert.Equal(t, "system", got.CreatedBy)
}

func TestService_Create_Duplicate(t *testing.T) {
	svc, _ := newService()
	require.NoError(t, svc.Create(t.Context(), location.NewLocation("A1", "", "")))

	err := svc.Create(t.Context(), location.NewLocation("Other (A1)", "", ""))

	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}

func TestService_Update_CodeImmutable(t *testing.T) {
	svc, _ := newService()
	loc := location.NewLocation("A1", "", "")
	require.NoError(t, svc.Create(t.Context(), loc))

	loc.Name = "Aisle 1"
	loc.Zone = "south"
	require.NoError(t, svc.Update(t.Context(), loc))

	got, err := svc.GetByID(t.Context(), loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "south", got.Zone)

	got.Code = "B2"
	err = svc.Update(t.Context(), got)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestService_Ensure(t *testing.T) {
	svc, _ := newService()
	require.NoError(t, svc.Create(t.Context(), location.NewLocation("A1", "Aisle", "")))

	existing, created, err := svc.Ensure(t.Context(), "Aisle (A1)")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Aisle", existing.Name)

	placeholder, created, err := svc.Ensure(t.Context(), " Z9 ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, placeholder.AutoCreated)
	assert.Equal(t, "Z9", placeholder.Code)

	again, created, err := svc.Ensure(t.Context(), "Z9")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, placeholder.ID, again.ID)

	_, _, err = svc.Ensure(t.Context(), "  ")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestService_Update_ClearsAutoCreated(t *testing.T) {
	svc, _ := newService()
	loc, _, err := svc.Ensure(t.Context(), "Z9")
	require.NoError(t, err)

	loc.Name = "Returns cage"
	require.NoError(t, svc.Update(t.Context(), loc))

	got, err := svc.GetByCode(t.Context(), "Z9")
	require.NoError(t, err)
	assert.False(t, got.AutoCreated)
	assert.Equal(t, "Returns cage", got.Name)
}

func TestService_Delete(t *testing.T) {
	svc, _ := newService()
	loc := location.NewLocation("A1", "", "")
	require.NoError(t, svc.Create(t.Context(), loc))

	require.NoError(t, svc.Delete(t.Context(), loc.ID))

	got, err := svc.GetByID(t.Context(), loc.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletionMark)
}
