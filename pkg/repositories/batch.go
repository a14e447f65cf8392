package repositories

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/query"
	"github.com/TFMV/querykit/pkg/rows"
)

// batchSize returns how many rows of width cols fit in one statement, or 0
// when all n rows fit.
func batchSize(n, cols, limit int) int {
	if n*cols < limit {
		return 0
	}
	return limit / cols
}

// split cuts vals into consecutive chunks of at most size rows.
func split(vals [][]any, size int) [][][]any {
	if size <= 0 || len(vals) <= size {
		return [][][]any{vals}
	}
	chunks := make([][][]any, 0, (len(vals)+size-1)/size)
	for start := 0; start < len(vals); start += size {
		end := start + size
		if end > len(vals) {
			end = len(vals)
		}
		chunks = append(chunks, vals[start:end])
	}
	return chunks
}

// bulkInsert writes vals as one statement, or as parameter-bounded batches
// issued concurrently. The first failing batch cancels the rest. Returned
// rows keep batch order.
func (r *Repository) bulkInsert(ctx context.Context, cols []string, vals [][]any, returning bool) ([]rows.Row, error) {
	size := batchSize(len(vals), len(cols), r.paramLimit)
	if size == 0 && len(vals)*len(cols) >= r.paramLimit {
		return nil, errors.BadInputf("%d columns exceed the parameter limit %d", len(cols), r.paramLimit)
	}
	chunks := split(vals, size)

	r.metrics.RecordHistogram(metrics.BulkBatches, float64(len(chunks)), "table", r.table.Name())
	r.metrics.RecordHistogram(metrics.BulkRows, float64(len(vals)), "table", r.table.Name())
	r.logger.Debug().
		Int("rows", len(vals)).
		Int("columns", len(cols)).
		Int("batches", len(chunks)).
		Msg("Bulk insert")

	results := make([][]rows.Row, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		ins := query.InsertRows(r.table, cols, chunk)
		if returning {
			ins = ins.Returning()
		}
		g.Go(func() error {
			out, err := r.insertBatch(gctx, ins, returning)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, r.conflict(err)
	}

	if !returning {
		return nil, nil
	}
	total := 0
	for _, res := range results {
		total += len(res)
	}
	out := make([]rows.Row, 0, total)
	for _, res := range results {
		out = append(out, res...)
	}
	return out, nil
}

func (r *Repository) insertBatch(ctx context.Context, ins query.Insert, returning bool) ([]rows.Row, error) {
	sql, args, err := ins.ToSQL()
	if err != nil {
		return nil, err
	}
	var out []rows.Row
	err = r.observe(ctx, "bulk_insert", sql, len(args), func(q Querier) error {
		if !returning {
			_, err := q.Execute(ctx, sql, args...)
			return err
		}
		var err error
		out, err = q.FetchAll(ctx, sql, args...)
		return err
	})
	return out, err
}
