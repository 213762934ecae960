// Package tx provides transaction management abstractions.
// The domain layer depends on Manager; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a unit of work against the primary store.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls join the transaction already in ctx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit schedules fn to run once the transaction in ctx commits.
	// It is dropped on rollback. Without a transaction fn runs immediately.
	AfterCommit(ctx context.Context, fn func())
}

// Nop is a Manager that runs fn directly. Used by stores that are
// atomic per call (in-memory fakes, tests).
type Nop struct{}

// RunInTransaction calls fn with ctx unchanged.
func (Nop) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AfterCommit runs fn immediately.
func (Nop) AfterCommit(_ context.Context, fn func()) {
	fn()
}
