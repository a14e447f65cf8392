package repositories

import (
	"context"
	"sync"

	"github.com/TFMV/querykit/pkg/rows"
)

type txKey struct{}

type txScope struct {
	db Database
	q  Querier
}

// RunInTx runs fn in a transaction on db. Repositories over db called with
// the context passed to fn use the transaction. A nested call on the same db
// joins the enclosing transaction.
func RunInTx(ctx context.Context, db Database, fn func(ctx context.Context) error) error {
	if s, ok := ctx.Value(txKey{}).(txScope); ok && s.db == db {
		return fn(ctx)
	}
	return db.Transaction(ctx, func(ctx context.Context, tx Querier) error {
		scoped := context.WithValue(ctx, txKey{}, txScope{db: db, q: &serialQuerier{q: tx}})
		return fn(scoped)
	})
}

// InTx reports whether ctx carries a transaction on db.
func InTx(ctx context.Context, db Database) bool {
	s, ok := ctx.Value(txKey{}).(txScope)
	return ok && s.db == db
}

// querierFor returns the transaction bound to ctx for db, or db itself.
func querierFor(ctx context.Context, db Database) Querier {
	if s, ok := ctx.Value(txKey{}).(txScope); ok && s.db == db {
		return s.q
	}
	return db
}

// serialQuerier serializes statements on a transaction, whose single
// connection cannot run statements concurrently.
type serialQuerier struct {
	mu sync.Mutex
	q  Querier
}

func (s *serialQuerier) FetchAll(ctx context.Context, sql string, args ...any) ([]rows.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.FetchAll(ctx, sql, args...)
}

func (s *serialQuerier) FetchOne(ctx context.Context, sql string, args ...any) (rows.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.FetchOne(ctx, sql, args...)
}

func (s *serialQuerier) FetchValue(ctx context.Context, sql string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.FetchValue(ctx, sql, args...)
}

func (s *serialQuerier) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Execute(ctx, sql, args...)
}

func (s *serialQuerier) ExecuteMany(ctx context.Context, sql string, argSets [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.ExecuteMany(ctx, sql, argSets)
}
