// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the PostgreSQL implementation
// lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context, so a ledger
	// movement issued from inside a count approval commits or rolls back
	// together with the approval.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// LongRunner is implemented by managers that can open a transaction sized
// for full-table work such as snapshot sync.
type LongRunner interface {
	Manager

	RunLong(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunLong uses m's long-running mode when it has one.
func RunLong(ctx context.Context, m Manager, fn func(ctx context.Context) error) error {
	if lr, ok := m.(LongRunner); ok {
		return lr.RunLong(ctx, fn)
	}
	return m.RunInTransaction(ctx, fn)
}
