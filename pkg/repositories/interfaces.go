// Package repositories executes query plans and bulk writes for one table at
// a time against a pooled database.
package repositories

import (
	"context"

	"github.com/TFMV/querykit/pkg/rows"
)

// Querier executes statements rendered with $n placeholders. Implementations
// must be safe for concurrent use.
type Querier interface {
	// FetchAll returns every row the statement yields.
	FetchAll(ctx context.Context, sql string, args ...any) ([]rows.Row, error)
	// FetchOne returns the first row, or false when there is none.
	FetchOne(ctx context.Context, sql string, args ...any) (rows.Row, bool, error)
	// FetchValue returns the first column of the first row, or nil.
	FetchValue(ctx context.Context, sql string, args ...any) (any, error)
	// Execute runs a statement and returns the rows affected.
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	// ExecuteMany runs one statement once per argument set.
	ExecuteMany(ctx context.Context, sql string, argSets [][]any) error
}

// Database is a pooled connection provider.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, committing when fn returns
	// nil and rolling back otherwise. tx is only valid during fn.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error

	// UniqueViolation reports whether err is a unique-constraint violation
	// and returns the driver's detail for it.
	UniqueViolation(err error) (detail string, ok bool)

	// Close releases the pool.
	Close() error
}
