package repositories

import (
	"context"
	"fmt"
	"slices"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/query"
	"github.com/TFMV/querykit/pkg/rows"
	"github.com/TFMV/querykit/pkg/schema"
	"github.com/TFMV/querykit/pkg/tenant"
)

// ConflictMode selects what Upsert does with a row that collides with an
// existing one.
type ConflictMode int

const (
	// OnConflictUpdate overwrites the existing row with the proposed values.
	OnConflictUpdate ConflictMode = iota
	// OnConflictIgnore keeps the existing row.
	OnConflictIgnore
)

func (m ConflictMode) String() string {
	if m == OnConflictIgnore {
		return "ignore"
	}
	return "update"
}

// Create inserts one row. With returning set it returns the stored row.
func (r *Repository) Create(ctx context.Context, values map[string]any, returning bool) (rows.Row, bool, error) {
	cols, vals, err := r.prepare(ctx, []map[string]any{values})
	if err != nil {
		return rows.Row{}, false, err
	}
	ins := query.InsertRows(r.table, cols, vals)
	if !returning {
		_, err := r.executeInsert(ctx, ins)
		return rows.Row{}, false, err
	}
	return r.fetchInsert(ctx, ins.Returning())
}

// BulkCreate inserts rows, splitting them into concurrent batches when they
// exceed the parameter limit. Every row must carry the same columns. With
// returning set the stored rows come back in input order.
func (r *Repository) BulkCreate(ctx context.Context, values []map[string]any, returning bool) ([]rows.Row, error) {
	if len(values) == 0 {
		if returning {
			return []rows.Row{}, nil
		}
		return nil, nil
	}
	cols, vals, err := r.prepare(ctx, values)
	if err != nil {
		return nil, err
	}
	return r.bulkInsert(ctx, cols, vals, returning)
}

// Upsert inserts one row, resolving a collision on the table's conflict
// target according to mode. The modified column, if any, is stamped with
// the server time. In ignore mode a collision yields no row.
func (r *Repository) Upsert(ctx context.Context, values map[string]any, mode ConflictMode) (rows.Row, bool, error) {
	values = copyValues(values)
	if col := r.table.ModifiedColumn(); col != "" {
		values[col] = query.Now
	}
	cols, vals, err := r.prepare(ctx, []map[string]any{values})
	if err != nil {
		return rows.Row{}, false, err
	}

	ins := query.InsertRows(r.table, cols, vals)
	if mode == OnConflictIgnore {
		return r.fetchInsert(ctx, ins.OnConflictDoNothing().Returning())
	}

	target := r.table.ConflictTarget()
	ins = ins.OnConflictUpdate(target, upsertSet(cols, target)).Returning()
	key, ok := storedKey(r.table, target, cols, vals[0])
	if !ok {
		return r.fetchInsert(ctx, ins)
	}

	// DuckDB returns the proposed tuple on conflict, not the stored one.
	var (
		row   rows.Row
		found bool
	)
	err = RunInTx(ctx, r.db, func(ctx context.Context) error {
		if _, _, err := r.fetchInsert(ctx, ins); err != nil {
			return err
		}
		var err error
		row, found, err = r.FetchByPlan(ctx, query.Select(r.table).WhereExpr(key))
		return err
	})
	if err != nil {
		return rows.Row{}, false, err
	}
	return row, found, nil
}

// storedKey matches the row an upsert landed on by its conflict target
// values. It fails when a target column is missing or computed.
func storedKey(t *schema.Table, target, cols []string, vals []any) (sq.Eq, bool) {
	if len(target) == 0 {
		return nil, false
	}
	key := make(sq.Eq, len(target))
	for _, col := range target {
		i := slices.Index(cols, col)
		if i < 0 || vals[i] == nil {
			return nil, false
		}
		if _, computed := vals[i].(sq.Sqlizer); computed {
			return nil, false
		}
		key[schema.QuoteIdent(t.Name(), col)] = vals[i]
	}
	return key, true
}

// InsertOrIgnore inserts one row unless it collides with an existing one and
// returns the number of rows inserted.
func (r *Repository) InsertOrIgnore(ctx context.Context, values map[string]any) (int64, error) {
	cols, vals, err := r.prepare(ctx, []map[string]any{values})
	if err != nil {
		return 0, err
	}
	return r.executeInsert(ctx, query.InsertRows(r.table, cols, vals).OnConflictDoNothing())
}

// BulkUpdate updates rows by primary key, one statement per row on a single
// prepared statement. Every row must carry the key and the same columns. The
// tenant column is never rewritten.
func (r *Repository) BulkUpdate(ctx context.Context, values []map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	key, err := r.singleKey()
	if err != nil {
		return err
	}

	stripped := make([]map[string]any, len(values))
	for i, v := range values {
		stripped[i] = copyValues(v)
		if col := r.table.TenantColumn(); col != "" && col != key {
			delete(stripped[i], col)
		}
	}

	cols, err := r.columnSet(stripped)
	if err != nil {
		return err
	}
	set := make([]string, 0, len(cols))
	hasKey := false
	for _, c := range cols {
		if c == key {
			hasKey = true
			continue
		}
		set = append(set, c)
	}
	if !hasKey {
		return errors.BadInputf("bulk update of %s needs %q in every row", r.table.Name(), key)
	}

	sql, err := query.UpdateByKey(r.table, key, set)
	if err != nil {
		return err
	}
	argSets := make([][]any, len(stripped))
	for i, v := range stripped {
		args := make([]any, 0, len(set)+1)
		for _, c := range set {
			args = append(args, v[c])
		}
		argSets[i] = append(args, v[key])
	}

	return r.observe(ctx, "bulk_update", sql, len(argSets)*(len(set)+1), func(q Querier) error {
		return q.ExecuteMany(ctx, sql, argSets)
	})
}

// prepare fills the tenant column and lays the rows out in table column
// order.
func (r *Repository) prepare(ctx context.Context, values []map[string]any) ([]string, [][]any, error) {
	filled := r.withTenant(ctx, values)
	cols, err := r.columnSet(filled)
	if err != nil {
		return nil, nil, err
	}
	vals := make([][]any, len(filled))
	for i, v := range filled {
		row := make([]any, len(cols))
		for n, c := range cols {
			row[n] = v[c]
		}
		vals[i] = row
	}
	return cols, vals, nil
}

// withTenant returns copies of values with the active project filled in
// where the table is tenant-scoped and a row does not set it.
func (r *Repository) withTenant(ctx context.Context, values []map[string]any) []map[string]any {
	col := r.table.TenantColumn()
	projectID, ok := tenant.ProjectID(ctx)
	if col == "" || !ok {
		return values
	}
	out := make([]map[string]any, len(values))
	for i, v := range values {
		if _, set := v[col]; set {
			out[i] = v
			continue
		}
		c := copyValues(v)
		c[col] = projectID
		out[i] = c
	}
	return out
}

// columnSet returns the columns of the first row in table order, checking
// that each is known and that every row carries exactly the same set.
func (r *Repository) columnSet(values []map[string]any) ([]string, error) {
	first := values[0]
	if len(first) == 0 {
		return nil, errors.BadInputf("row 0 for %s has no values", r.table.Name())
	}
	cols := make([]string, 0, len(first))
	for c := range first {
		if !r.table.HasColumn(c) {
			return nil, errors.BadInputf("unknown column %q on table %s", c, r.table.Name()).WithDetail("column", c)
		}
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		return r.table.Position(cols[i]) < r.table.Position(cols[j])
	})

	for i, v := range values[1:] {
		if len(v) != len(first) {
			return nil, mismatch(r.table.Name(), i+1)
		}
		for c := range v {
			if _, ok := first[c]; !ok {
				return nil, mismatch(r.table.Name(), i+1)
			}
		}
	}
	return cols, nil
}

func mismatch(table string, row int) error {
	return errors.BadInputf("row %d for %s has a different set of columns than row 0", row, table).
		WithDetail("row", row)
}

// upsertSet is every proposed column outside the conflict target. When the
// target covers them all, the first key is assigned to itself so that the
// statement still returns the existing row.
func upsertSet(cols, target []string) []string {
	inTarget := make(map[string]bool, len(target))
	for _, c := range target {
		inTarget[c] = true
	}
	set := make([]string, 0, len(cols))
	for _, c := range cols {
		if !inTarget[c] {
			set = append(set, c)
		}
	}
	if len(set) == 0 && len(target) > 0 {
		set = append(set, target[0])
	}
	return set
}

func (r *Repository) fetchInsert(ctx context.Context, ins query.Insert) (rows.Row, bool, error) {
	sql, args, err := ins.ToSQL()
	if err != nil {
		return rows.Row{}, false, err
	}
	var (
		row   rows.Row
		found bool
	)
	err = r.observe(ctx, "insert", sql, len(args), func(q Querier) error {
		var err error
		row, found, err = q.FetchOne(ctx, sql, args...)
		return err
	})
	if err != nil {
		return rows.Row{}, false, r.conflict(err)
	}
	return row, found, nil
}

func (r *Repository) executeInsert(ctx context.Context, ins query.Insert) (int64, error) {
	sql, args, err := ins.ToSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.observe(ctx, "insert", sql, len(args), func(q Querier) error {
		var err error
		n, err = q.Execute(ctx, sql, args...)
		return err
	})
	if err != nil {
		return 0, r.conflict(err)
	}
	return n, nil
}

// conflict maps a unique violation to a Conflict error carrying the
// driver's detail. Other errors pass through.
func (r *Repository) conflict(err error) error {
	if errors.IsConflict(err) {
		return err
	}
	detail, ok := r.db.UniqueViolation(err)
	if !ok {
		return err
	}
	r.metrics.IncrementCounter(metrics.ConflictsTotal, "table", r.table.Name())
	if detail == "" {
		detail = fmt.Sprintf("duplicate row in %s", r.table.Name())
	}
	return errors.Conflict(detail, err)
}

func copyValues(v map[string]any) map[string]any {
	c := make(map[string]any, len(v)+1)
	for k, x := range v {
		c[k] = x
	}
	return c
}
