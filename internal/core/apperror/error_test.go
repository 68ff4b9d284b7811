package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusByCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidation("x").HTTPStatus)
	assert.Equal(t, http.StatusNotFound, NewNotFound("Item", "1").HTTPStatus)
	assert.Equal(t, http.StatusConflict, NewDuplicate("Item", "code", "A").HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, NewBusinessRule("LOCATION_INACTIVE", "x").HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, NewInsufficientStock("i", "A1", 5, 2).HTTPStatus)
}

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("issue: %w", NewInsufficientStock("i", "A1", 5, 2))

	assert.True(t, HasCode(err, CodeInsufficientStock))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestNewTransactionAbort(t *testing.T) {
	abort := NewTransactionAbort("batch completion", NewInsufficientStock("i", "B2", 3, 1))

	assert.Equal(t, CodeTransactionAborted, abort.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, abort.HTTPStatus)
	assert.Equal(t, CodeInsufficientStock, abort.Details["cause_code"])
	assert.Equal(t, "B2", abort.Details["location"])
	assert.Equal(t, int64(2), abort.Details["shortfall"])

	raw := NewTransactionAbort("batch completion", errors.New("conn reset"))
	assert.Equal(t, http.StatusInternalServerError, raw.HTTPStatus)
	require.ErrorContains(t, raw, "conn reset")
}
