// Package entity holds the fields shared by every persisted ledger entity.
package entity

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Validatable entities check their own invariants before they are stored.
// Validate must not touch the database.
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity is identity, soft-delete flag and optimistic-lock version.
// Version starts at 1 and repositories update WHERE version = old.
type BaseEntity struct {
	ID           id.ID `db:"id" json:"id"`
	DeletionMark bool  `db:"deletion_mark" json:"deletionMark"`
	Version      int   `db:"version" json:"version"`
}

// Bump advances the version after a successful update.
func (b *BaseEntity) Bump() { b.Version++ }

// BaseDocument adds authorship to BaseEntity.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument returns a fresh version-1 document with a new id.
func NewBaseDocument() BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: BaseEntity{ID: id.New(), Version: 1},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch stamps UpdatedAt and bumps the version.
func (b *BaseDocument) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.Bump()
}

func (b *BaseDocument) SetCreatedBy(userID string) {
	b.CreatedBy, b.UpdatedBy = userID, userID
}

func (b *BaseDocument) SetUpdatedBy(userID string) { b.UpdatedBy = userID }
