package repositories

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/filter"
	"github.com/TFMV/querykit/pkg/query"
	"github.com/TFMV/querykit/pkg/rows"
	"github.com/TFMV/querykit/pkg/schema"
)

// GetEntity returns the first row matching opts, or false when none does.
func (r *Repository) GetEntity(ctx context.Context, opts Options) (rows.Row, bool, error) {
	return r.FetchByPlan(ctx, r.plan(opts))
}

// GetEntities returns every row matching opts.
func (r *Repository) GetEntities(ctx context.Context, opts Options) ([]rows.Row, error) {
	return r.FetchAllByPlan(ctx, r.plan(opts))
}

// GetEntitiesWithCount returns one page of rows and the total number of rows
// the filters match. Both statements run concurrently.
func (r *Repository) GetEntitiesWithCount(ctx context.Context, opts Options) ([]rows.Row, int64, error) {
	p := r.plan(opts)
	if err := p.Err(); err != nil {
		return nil, 0, err
	}

	var (
		page  []rows.Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = r.FetchAllByPlan(gctx, p)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.CountByPlan(gctx, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// GetCount returns the number of rows matching opts.
func (r *Repository) GetCount(ctx context.Context, opts Options) (int64, error) {
	return r.CountByPlan(ctx, r.plan(opts))
}

// GetEntitiesIDs returns the primary key of every row matching opts. The
// table must have a single-column primary key.
func (r *Repository) GetEntitiesIDs(ctx context.Context, opts Options) ([]any, error) {
	key, err := r.singleKey()
	if err != nil {
		return nil, err
	}
	opts.Fields = []string{key}
	found, err := r.GetEntities(ctx, opts)
	if err != nil {
		return nil, err
	}
	return rows.Column(found, key), nil
}

// IsExists reports whether any row matches opts.
func (r *Repository) IsExists(ctx context.Context, opts Options) (bool, error) {
	sql, args, err := r.plan(opts).ExistsSQL()
	if err != nil {
		return false, err
	}
	var v any
	err = r.observe(ctx, "exists", sql, len(args), func(q Querier) error {
		var err error
		v, err = q.FetchValue(ctx, sql, args...)
		return err
	})
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// GetValue returns column of the first row matching opts, or nil.
func (r *Repository) GetValue(ctx context.Context, column string, opts Options) (any, error) {
	opts.Fields = []string{column}
	return r.valueByPlan(ctx, "value", r.plan(opts))
}

// GetMax returns the largest value of column among rows matching filters,
// or 0 when none match.
func (r *Repository) GetMax(ctx context.Context, column string, filters filter.Descriptor) (any, error) {
	if !r.table.HasColumn(column) {
		return nil, errors.BadInputf("unknown column %q on table %s", column, r.table.Name())
	}
	expr := sq.Expr("COALESCE(MAX(" + schema.QuoteIdent(r.table.Name(), column) + "), 0)")
	p := query.SelectExpr(r.table, expr).Where(filters, r.filterOpts...)
	return r.valueByPlan(ctx, "max", p)
}

// Delete removes the rows matching filters and returns how many it removed.
func (r *Repository) Delete(ctx context.Context, filters filter.Descriptor) (int64, error) {
	return r.ExecuteByPlan(ctx, query.Delete(r.table).Where(filters, r.filterOpts...))
}

// Update applies values to the rows matching filters. A value may be a
// query.ColumnFunc computed from the current column. With returning set it
// returns the first updated row.
func (r *Repository) Update(ctx context.Context, filters filter.Descriptor, values map[string]any, returning bool) (rows.Row, bool, error) {
	p := query.Update(r.table, values).Where(filters, r.filterOpts...)
	if !returning {
		_, err := r.ExecuteByPlan(ctx, p)
		return rows.Row{}, false, err
	}
	return r.FetchByPlan(ctx, p.Returning())
}

// FetchByPlan returns the first row p yields. p is a select, or an update
// or delete with RETURNING.
func (r *Repository) FetchByPlan(ctx context.Context, p query.Plan) (rows.Row, bool, error) {
	sql, args, err := p.ToSQL()
	if err != nil {
		return rows.Row{}, false, err
	}
	var (
		row   rows.Row
		found bool
	)
	err = r.observe(ctx, "fetch_one", sql, len(args), func(q Querier) error {
		var err error
		row, found, err = q.FetchOne(ctx, sql, args...)
		return err
	})
	return row, found, err
}

// FetchAllByPlan returns every row p yields.
func (r *Repository) FetchAllByPlan(ctx context.Context, p query.Plan) ([]rows.Row, error) {
	sql, args, err := p.ToSQL()
	if err != nil {
		return nil, err
	}
	var out []rows.Row
	err = r.observe(ctx, "fetch_all", sql, len(args), func(q Querier) error {
		var err error
		out, err = q.FetchAll(ctx, sql, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []rows.Row{}
	}
	return out, nil
}

// CountByPlan counts the rows the select p matches, ignoring its paging.
func (r *Repository) CountByPlan(ctx context.Context, p query.Plan) (int64, error) {
	sql, args, err := p.CountSQL()
	if err != nil {
		return 0, err
	}
	var v any
	err = r.observe(ctx, "count", sql, len(args), func(q Querier) error {
		var err error
		v, err = q.FetchValue(ctx, sql, args...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return toInt64(v), nil
}

// ExecuteByPlan runs an update or delete and returns the rows affected.
func (r *Repository) ExecuteByPlan(ctx context.Context, p query.Plan) (int64, error) {
	sql, args, err := p.ToSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.observe(ctx, "execute", sql, len(args), func(q Querier) error {
		var err error
		n, err = q.Execute(ctx, sql, args...)
		return err
	})
	return n, err
}

func (r *Repository) valueByPlan(ctx context.Context, op string, p query.Plan) (any, error) {
	sql, args, err := p.ToSQL()
	if err != nil {
		return nil, err
	}
	var v any
	err = r.observe(ctx, op, sql, len(args), func(q Querier) error {
		var err error
		v, err = q.FetchValue(ctx, sql, args...)
		return err
	})
	return v, err
}

func (r *Repository) singleKey() (string, error) {
	keys := r.table.PrimaryKeyColumns()
	if len(keys) != 1 {
		return "", errors.BadInputf("table %s needs a single-column primary key", r.table.Name())
	}
	return keys[0], nil
}

// toInt64 converts the integer types drivers return for COUNT(*).
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
