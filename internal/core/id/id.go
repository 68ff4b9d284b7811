// Package id provides UUIDv7 generation for ledger entities.
// UUIDv7 is time-ordered, so movements and lines sort naturally by creation.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// Nil is the zero ID.
var Nil = uuid.Nil

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// NewBatchKey returns a fresh batch key for movements that do not name one.
func NewBatchKey() string {
	return "b-" + New().String()
}
