// Package duckdb provides the DuckDB implementation of repositories.Database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/rows"
)

// conn is the subset of *sql.DB and *sql.Tx the querier needs.
type conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Database runs statements on a DuckDB connection pool.
type Database struct {
	querier
	pool pool.ConnectionPool
}

var _ repositories.Database = (*Database)(nil)

// Open creates a pool for cfg and wraps it.
func Open(cfg pool.Config, logger zerolog.Logger, opts ...pool.Option) (*Database, error) {
	p, err := pool.New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return New(p, logger), nil
}

// New wraps an existing pool.
func New(p pool.ConnectionPool, logger zerolog.Logger) *Database {
	return &Database{
		querier: querier{
			get:    func(ctx context.Context) (conn, error) { return p.Get(ctx) },
			pool:   p,
			logger: logger,
		},
		pool: p,
	}
}

// Pool returns the underlying connection pool.
func (d *Database) Pool() pool.ConnectionPool { return d.pool }

// Transaction runs fn in a transaction on one pooled connection.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Querier) error) (err error) {
	db, err := d.pool.Get(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	d.logger.Debug().Msg("Transaction started")

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				d.logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	txq := &querier{
		get:    func(context.Context) (conn, error) { return tx, nil },
		pool:   d.pool,
		logger: d.logger,
	}
	return fn(ctx, txq)
}

// UniqueViolation reports whether err is a DuckDB duplicate-key constraint
// error and returns its message as the detail.
func (d *Database) UniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var derr *duckdb.Error
	if errors.As(err, &derr) {
		if derr.Type == duckdb.ErrorTypeConstraint && isDuplicateKey(derr.Msg) {
			return derr.Msg, true
		}
		return "", false
	}
	if msg := err.Error(); isDuplicateKey(msg) {
		return msg, true
	}
	return "", false
}

func isDuplicateKey(msg string) bool {
	return strings.Contains(msg, "Duplicate key") || strings.Contains(msg, "duplicate key")
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.pool.Close()
}

// querier executes statements on the pool or on one transaction.
type querier struct {
	get    func(ctx context.Context) (conn, error)
	pool   pool.ConnectionPool
	logger zerolog.Logger
}

func (q *querier) FetchAll(ctx context.Context, query string, args ...any) ([]rows.Row, error) {
	var out []rows.Row
	err := q.query(ctx, query, args, func(cols []string, next func() ([]any, bool, error)) error {
		out = make([]rows.Row, 0)
		for {
			vals, ok, err := next()
			if err != nil || !ok {
				return err
			}
			out = append(out, rows.Normalize(cols, vals))
		}
	})
	return out, err
}

func (q *querier) FetchOne(ctx context.Context, query string, args ...any) (rows.Row, bool, error) {
	var (
		row   rows.Row
		found bool
	)
	err := q.query(ctx, query, args, func(cols []string, next func() ([]any, bool, error)) error {
		vals, ok, err := next()
		if err != nil || !ok {
			return err
		}
		row, found = rows.Normalize(cols, vals), true
		return nil
	})
	if err != nil {
		return rows.Row{}, false, err
	}
	return row, found, nil
}

func (q *querier) FetchValue(ctx context.Context, query string, args ...any) (any, error) {
	var v any
	err := q.query(ctx, query, args, func(_ []string, next func() ([]any, bool, error)) error {
		vals, ok, err := next()
		if err != nil || !ok || len(vals) == 0 {
			return err
		}
		v = vals[0]
		return nil
	})
	return v, err
}

func (q *querier) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	c, err := q.get(ctx)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	res, err := c.ExecContext(ctx, query, args...)
	q.pool.LogQuery(query, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (q *querier) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	if len(argSets) == 0 {
		return nil
	}
	c, err := q.get(ctx)
	if err != nil {
		return err
	}
	stmt, err := c.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	start := time.Now()
	for _, args := range argSets {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			q.pool.LogQuery(query, time.Since(start), err)
			return err
		}
	}
	q.pool.LogQuery(query, time.Since(start), nil)
	return nil
}

// query runs a statement and hands its columns and a row iterator to read.
// The result set is closed when read returns.
func (q *querier) query(ctx context.Context, query string, args []any, read func(cols []string, next func() ([]any, bool, error)) error) error {
	c, err := q.get(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	rs, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		q.pool.LogQuery(query, time.Since(start), err)
		return err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	next := func() ([]any, bool, error) {
		if !rs.Next() {
			return nil, false, rs.Err()
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, false, fmt.Errorf("failed to scan row: %w", err)
		}
		return vals, true, nil
	}
	err = read(cols, next)
	if err == nil {
		err = rs.Err()
	}
	q.pool.LogQuery(query, time.Since(start), err)
	return err
}
