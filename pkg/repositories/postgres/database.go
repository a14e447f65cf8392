// Package postgres provides the PostgreSQL implementation of
// repositories.Database on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/rows"
)

// Config represents pool configuration.
type Config struct {
	DSN                string        `json:"dsn" yaml:"dsn"`
	MaxConns           int32         `json:"max_conns" yaml:"max_conns"`
	MinConns           int32         `json:"min_conns" yaml:"min_conns"`
	MaxConnLifetime    time.Duration `json:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime    time.Duration `json:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	HealthCheckPeriod  time.Duration `json:"health_check_period" yaml:"health_check_period"`
	ConnectTimeout     time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold"`
}

// pgxConn is the subset of *pgxpool.Pool and pgx.Tx the querier needs.
type pgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Database runs statements on a pgx pool.
type Database struct {
	querier
	pool    *pgxpool.Pool
	metrics metrics.Collector
}

var _ repositories.Database = (*Database)(nil)

// Option configures a Database.
type Option func(*Database)

// WithMetrics reports pool gauges to m.
func WithMetrics(m metrics.Collector) Option {
	return func(d *Database) {
		if m != nil {
			d.metrics = m
		}
	}
}

// Open connects a pool for cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...Option) (*Database, error) {
	config, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("dsn", pool.MaskDSN(cfg.DSN)).
		Int32("max_conns", config.MaxConns).
		Int32("min_conns", config.MinConns).
		Msg("Creating PostgreSQL connection pool")

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	d := &Database{
		querier: querier{conn: p, logger: logger, slow: cfg.SlowQueryThreshold},
		pool:    p,
		metrics: metrics.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// parseConfig applies defaults and maps cfg onto a pgxpool config. JIT is
// disabled for every session: the short filtered statements this package
// issues pay its compile cost without benefit.
func parseConfig(cfg Config) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	config.ConnConfig.RuntimeParams["jit"] = "off"
	return config, nil
}

// Pool returns the underlying pgx pool.
func (d *Database) Pool() *pgxpool.Pool { return d.pool }

// Transaction runs fn in a transaction on one pooled connection.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Querier) error) error {
	d.recordStats()
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		return fn(ctx, &querier{conn: tx, logger: d.logger, slow: d.slow})
	})
}

// UniqueViolation reports whether err is SQLSTATE 23505 and returns the
// server's detail line, e.g. "Key (name)=(x) already exists.".
func (d *Database) UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		detail := pgErr.Detail
		if detail == "" {
			detail = pgErr.Message
		}
		return detail, true
	}
	return "", false
}

// Close closes the pool.
func (d *Database) Close() error {
	d.pool.Close()
	return nil
}

func (d *Database) recordStats() {
	s := d.pool.Stat()
	d.metrics.RecordGauge(metrics.PoolOpen, float64(s.TotalConns()), "driver", "postgres")
	d.metrics.RecordGauge(metrics.PoolInUse, float64(s.AcquiredConns()), "driver", "postgres")
}

// querier executes statements on the pool or on one transaction.
type querier struct {
	conn   pgxConn
	logger zerolog.Logger
	slow   time.Duration
}

func (q *querier) FetchAll(ctx context.Context, sql string, args ...any) ([]rows.Row, error) {
	start := time.Now()
	rs, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		q.log(sql, start, err)
		return nil, err
	}
	defer rs.Close()

	cols := fieldNames(rs)
	out := make([]rows.Row, 0)
	for rs.Next() {
		vals, err := rs.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		out = append(out, rows.Normalize(cols, vals))
	}
	err = rs.Err()
	q.log(sql, start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (q *querier) FetchOne(ctx context.Context, sql string, args ...any) (rows.Row, bool, error) {
	start := time.Now()
	rs, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		q.log(sql, start, err)
		return rows.Row{}, false, err
	}
	defer rs.Close()

	cols := fieldNames(rs)
	var (
		row   rows.Row
		found bool
	)
	if rs.Next() {
		vals, err := rs.Values()
		if err != nil {
			return rows.Row{}, false, fmt.Errorf("failed to read row: %w", err)
		}
		row, found = rows.Normalize(cols, vals), true
	}
	rs.Close()
	err = rs.Err()
	q.log(sql, start, err)
	if err != nil {
		return rows.Row{}, false, err
	}
	return row, found, nil
}

func (q *querier) FetchValue(ctx context.Context, sql string, args ...any) (any, error) {
	row, found, err := q.FetchOne(ctx, sql, args...)
	if err != nil || !found || row.Len() == 0 {
		return nil, err
	}
	return row.Values()[0], nil
}

func (q *querier) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	start := time.Now()
	tag, err := q.conn.Exec(ctx, sql, args...)
	q.log(sql, start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExecuteMany queues one execution per argument set into a single batch.
func (q *querier) ExecuteMany(ctx context.Context, sql string, argSets [][]any) error {
	if len(argSets) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, args := range argSets {
		b.Queue(sql, args...)
	}

	start := time.Now()
	br := q.conn.SendBatch(ctx, b)
	for range argSets {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			q.log(sql, start, err)
			return err
		}
	}
	err := br.Close()
	q.log(sql, start, err)
	return err
}

func (q *querier) log(sql string, start time.Time, err error) {
	d := time.Since(start)
	switch {
	case err != nil:
		q.logger.Error().Err(err).Str("query", truncateQuery(sql)).Msg("Query execution failed")
	case q.slow > 0 && d > q.slow:
		q.logger.Warn().Bool("slow_query", true).Dur("duration", d).Str("query", truncateQuery(sql)).Msg("Query executed")
	}
}

func fieldNames(rs pgx.Rows) []string {
	fds := rs.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return cols
}

func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
