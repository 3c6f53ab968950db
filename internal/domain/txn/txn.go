// Package txn defines the unit-of-work boundary shared by domain services.
package txn

import "context"

// Transactor runs fn inside a single store transaction. Repositories called
// with the ctx passed to fn participate in that transaction. If fn returns an
// error every change made through ctx is rolled back. Nested calls join the
// outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// WithinTx calls f.
func (f TransactorFunc) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// NoTx runs fn directly without a transaction. Useful for read paths and
// tests that do not exercise rollback.
var NoTx Transactor = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
