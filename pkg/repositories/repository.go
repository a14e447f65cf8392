package repositories

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/pkg/filter"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/query"
	"github.com/TFMV/querykit/pkg/schema"
	"github.com/TFMV/querykit/pkg/tenant"
)

// DefaultParamLimit is the most bind parameters one statement may carry.
const DefaultParamLimit = 32767

// Options describes a read: filters, ordering, projection and paging.
type Options struct {
	Filters  filter.Descriptor
	OrderBy  []string
	Fields   []string
	Distinct bool
	Limit    int
	Offset   int
}

// Repository reads and writes one table.
type Repository struct {
	db         Database
	table      *schema.Table
	logger     zerolog.Logger
	metrics    metrics.Collector
	paramLimit int
	filterOpts []filter.Option
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the statement logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(r *Repository) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithParamLimit overrides DefaultParamLimit.
func WithParamLimit(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.paramLimit = n
		}
	}
}

// WithStrictFilters rejects unknown filter keys instead of dropping them.
func WithStrictFilters() Option {
	return func(r *Repository) { r.filterOpts = append(r.filterOpts, filter.Strict()) }
}

// New creates a repository for table on db.
func New(db Database, table *schema.Table, opts ...Option) *Repository {
	r := &Repository{
		db:         db,
		table:      table,
		logger:     zerolog.Nop(),
		metrics:    metrics.NewNoOpCollector(),
		paramLimit: DefaultParamLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("table", table.Name()).Logger()
	return r
}

// Table returns the repository's table.
func (r *Repository) Table() *schema.Table { return r.table }

// DB returns the underlying database.
func (r *Repository) DB() Database { return r.db }

// Select starts a plan over the repository's table.
func (r *Repository) Select(fields ...string) query.Plan {
	return query.Select(r.table, fields...)
}

// plan builds the select for opts.
func (r *Repository) plan(opts Options) query.Plan {
	return query.Select(r.table, opts.Fields...).
		Where(opts.Filters, r.filterOpts...).
		OrderBy(opts.OrderBy...).
		Distinct(opts.Distinct).
		Page(opts.Limit, opts.Offset)
}

// observe runs one statement against the context's querier, logging and
// recording it.
func (r *Repository) observe(ctx context.Context, op, sql string, nargs int, fn func(q Querier) error) error {
	timer := r.metrics.StartTimer(metrics.StatementDuration)
	err := fn(querierFor(ctx, r.db))
	elapsed := timer.Stop()

	r.metrics.IncrementCounter(metrics.StatementsTotal, "table", r.table.Name(), "op", op)
	r.metrics.RecordHistogram(metrics.StatementDuration, elapsed, "table", r.table.Name(), "op", op)

	event := r.logger.Debug()
	if err != nil {
		r.metrics.IncrementCounter(metrics.StatementErrors, "table", r.table.Name(), "op", op)
		event = r.logger.Debug().Err(err)
	}
	event.
		Str("op", op).
		Str("unit_id", tenant.UnitID(ctx)).
		Str("query", truncateQuery(sql)).
		Int("args_count", nargs).
		Float64("duration_s", elapsed).
		Msg("Executed statement")
	return err
}

func truncateQuery(query string) string {
	const maxLen = 200
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
