// Package apperror defines the error type every ledger operation returns to
// its caller. The HTTP layer renders it verbatim as {code, message, details}.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInternal = "INTERNAL_ERROR"

	CodeValidation = "VALIDATION_ERROR"

	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeTransactionAborted     = "TRANSACTION_ABORTED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"

	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// statusOf maps codes to their default HTTP status. Codes missing here
// (custom business rules) default to 422.
var statusOf = map[string]int{
	CodeInternal:               http.StatusInternalServerError,
	CodeValidation:             http.StatusBadRequest,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeNotFound:               http.StatusNotFound,
	CodeInvalidStateTransition: http.StatusConflict,
	CodeConcurrentModification: http.StatusConflict,
	CodeConflict:               http.StatusConflict,
	CodeDuplicate:              http.StatusConflict,
	CodeIdempotency:            http.StatusConflict,
}

// AppError is a coded, client-safe error. Err keeps the underlying cause
// for logs and errors.Is without exposing it in JSON.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func newError(code, message string) *AppError {
	status, ok := statusOf[code]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets details[key] and returns e for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 4)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges kv into the details.
func (e *AppError) WithDetails(kv map[string]any) *AppError {
	for k, v := range kv {
		e.WithDetail(k, v)
	}
	return e
}

// WithCause records err as the underlying cause.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError { return newError(CodeValidation, message) }

func NewUnauthorized(message string) *AppError { return newError(CodeUnauthorized, message) }

func NewForbidden(message string) *AppError { return newError(CodeForbidden, message) }

func NewConflict(message string) *AppError { return newError(CodeConflict, message) }

// NewBusinessRule creates a 422 error with a caller-chosen code.
func NewBusinessRule(code, message string) *AppError { return newError(code, message) }

// NewInternal hides err behind a generic message.
func NewInternal(err error) *AppError {
	return newError(CodeInternal, "Internal server error").WithCause(err)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(CodeNotFound, entity+" not found").
		WithDetails(map[string]any{"entity": entity, "id": id})
}

func NewDuplicate(entity, field, value string) *AppError {
	return newError(CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetails(map[string]any{"entity": entity, "field": field, "value": value})
}

func NewConcurrentModification(entity string, id any) *AppError {
	return newError(CodeConcurrentModification, "Record was modified by another user. Please refresh and try again.").
		WithDetails(map[string]any{"entity": entity, "id": id})
}

// NewInsufficientStock reports a shortage at one location. The message is
// readable on its own; details carry the numbers for clients.
func NewInsufficientStock(itemID, location string, requested, available int64) *AppError {
	return newError(CodeInsufficientStock,
		fmt.Sprintf("Insufficient stock at %s: requested %d, available %d", location, requested, available)).
		WithDetails(map[string]any{
			"item_id":   itemID,
			"location":  location,
			"requested": requested,
			"available": available,
			"shortfall": requested - available,
		})
}

// NewInvalidStateTransition is returned when action is not allowed from
// the entity's current status.
func NewInvalidStateTransition(entity, from, action string) *AppError {
	return newError(CodeInvalidStateTransition, fmt.Sprintf("Cannot %s %s in status %s", action, entity, from)).
		WithDetails(map[string]any{"entity": entity, "from": from, "action": action})
}

// NewTransactionAbort wraps the first failure of a multi-step operation.
// Details of an AppError cause are lifted so the caller sees the offending
// member; non-AppError causes turn the abort into a 500.
func NewTransactionAbort(operation string, cause error) *AppError {
	e := newError(CodeTransactionAborted, operation+" aborted, no changes were applied").
		WithDetail("operation", operation).
		WithCause(cause)

	inner, ok := AsAppError(cause)
	switch {
	case ok:
		e.WithDetails(inner.Details)
		e.WithDetail("cause_code", inner.Code)
		e.WithDetail("cause", inner.Message)
		if inner.Code == CodeInternal {
			e.HTTPStatus = http.StatusInternalServerError
		}
	case cause != nil:
		e.HTTPStatus = http.StatusInternalServerError
	}
	return e
}

// NewIdempotencyConflict is returned while a request with the same key is
// still running.
func NewIdempotencyConflict(key string) *AppError {
	return newError(CodeIdempotency, "Operation already in progress or completed").
		WithDetail("idempotency_key", key)
}

// NewIdempotencyMismatch is returned when a key is reused for a different
// request (user, operation or body).
func NewIdempotencyMismatch(key string) *AppError {
	return newError(CodeIdempotency, "Idempotency key mismatch").
		WithDetail("idempotency_key", key)
}

// AsAppError extracts the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether the first AppError in the chain carries code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
