// Package query assembles compiled filters, joins, ordering and paging into
// executable statements.
//
// A Plan is a value: every method returns a modified copy and leaves the
// receiver untouched, so a base plan can be shared and refined per call.
// Construction errors are sticky and surface from the render methods.
package query

import (
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/filter"
	"github.com/TFMV/querykit/pkg/schema"
)

// Kind is the statement type of a plan.
type Kind int

const (
	KindSelect Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return "unknown"
}

const (
	descPrefix  = "-"
	labelSuffix = "__label"
)

// ColumnFunc computes an update value from the current column, given as a
// quoted identifier.
type ColumnFunc func(column string) sq.Sqlizer

// Now is the server timestamp expression.
var Now sq.Sqlizer = sq.Expr("now()")

type assignment struct {
	column string
	value  any
}

// Plan is an immutable statement description.
type Plan struct {
	kind      Kind
	table     *schema.Table
	columns   []sq.Sqlizer
	preds     []sq.Sqlizer
	joins     []filter.Join
	orders    []string
	distinct  bool
	limit     uint64
	hasLimit  bool
	offset    uint64
	hasOffset bool
	set       []assignment
	returning []string
	err       error
}

// Select projects fields of t, or every column when fields is empty.
func Select(t *schema.Table, fields ...string) Plan {
	p := Plan{kind: KindSelect, table: t}
	if len(fields) == 0 {
		fields = t.ColumnNames()
	}
	p.columns = make([]sq.Sqlizer, 0, len(fields))
	for _, f := range fields {
		if !t.HasColumn(f) {
			p.err = errors.BadInputf("unknown field %q on table %s", f, t.Name()).WithDetail("field", f)
			return p
		}
		p.columns = append(p.columns, sq.Expr(schema.QuoteIdent(t.Name(), f)))
	}
	return p
}

// SelectExpr projects a single expression, such as an aggregate.
func SelectExpr(t *schema.Table, expr sq.Sqlizer) Plan {
	return Plan{kind: KindSelect, table: t, columns: []sq.Sqlizer{expr}}
}

// Update assigns values to columns of t. A value may be a ColumnFunc.
func Update(t *schema.Table, values map[string]any) Plan {
	p := Plan{kind: KindUpdate, table: t}
	for col, v := range values {
		if !t.HasColumn(col) {
			p.err = errors.BadInputf("unknown column %q on table %s", col, t.Name()).WithDetail("column", col)
			return p
		}
		p.set = append(p.set, assignment{column: col, value: v})
	}
	sort.Slice(p.set, func(i, j int) bool {
		return t.Position(p.set[i].column) < t.Position(p.set[j].column)
	})
	return p
}

// Delete removes rows of t.
func Delete(t *schema.Table) Plan {
	return Plan{kind: KindDelete, table: t}
}

func (p Plan) Kind() Kind { return p.kind }

func (p Plan) Table() *schema.Table { return p.table }

// Err returns the first construction error.
func (p Plan) Err() error { return p.err }

func (p Plan) clone() Plan {
	c := p
	c.columns = append([]sq.Sqlizer(nil), p.columns...)
	c.preds = append([]sq.Sqlizer(nil), p.preds...)
	c.joins = append([]filter.Join(nil), p.joins...)
	c.orders = append([]string(nil), p.orders...)
	c.set = append([]assignment(nil), p.set...)
	c.returning = append([]string(nil), p.returning...)
	return c
}

// Where compiles d against the plan's table and adds its predicates and
// joins. A join already present under the same alias is not added twice.
func (p Plan) Where(d filter.Descriptor, opts ...filter.Option) Plan {
	if p.err != nil || len(d) == 0 {
		return p
	}
	r, err := filter.Compile(p.table, d, opts...)
	c := p.clone()
	if err != nil {
		c.err = err
		return c
	}
	c.preds = append(c.preds, r.Predicates...)
	for _, j := range r.Joins {
		if !c.hasJoin(j.Alias) {
			c.joins = append(c.joins, j)
		}
	}
	return c
}

// WhereExpr adds raw predicates.
func (p Plan) WhereExpr(preds ...sq.Sqlizer) Plan {
	if p.err != nil || len(preds) == 0 {
		return p
	}
	c := p.clone()
	c.preds = append(c.preds, preds...)
	return c
}

func (p Plan) hasJoin(alias string) bool {
	for _, j := range p.joins {
		if j.Alias == alias {
			return true
		}
	}
	return false
}

// OrderBy appends ordering keys: "col" ascending, "-col" descending, and
// "name__label" for a result label instead of a table column.
func (p Plan) OrderBy(keys ...string) Plan {
	if p.err != nil || len(keys) == 0 {
		return p
	}
	c := p.clone()
	for _, key := range keys {
		name, desc := strings.CutPrefix(key, descPrefix)
		var expr string
		if label, ok := strings.CutSuffix(name, labelSuffix); ok {
			expr = schema.QuoteIdent(label)
		} else {
			if !p.table.HasColumn(name) {
				c.err = errors.BadInputf("unknown order field %q on table %s", name, p.table.Name()).
					WithDetail("order_by", key)
				return c
			}
			expr = schema.QuoteIdent(p.table.Name(), name)
		}
		if desc {
			expr += " DESC"
		} else {
			expr += " ASC"
		}
		c.orders = append(c.orders, expr)
	}
	return c
}

// Distinct toggles SELECT DISTINCT.
func (p Plan) Distinct(on bool) Plan {
	c := p.clone()
	c.distinct = on
	return c
}

// Page sets LIMIT and OFFSET. Non-positive values leave the bound unset.
func (p Plan) Page(limit, offset int) Plan {
	c := p.clone()
	c.limit, c.hasLimit = 0, false
	c.offset, c.hasOffset = 0, false
	if limit > 0 {
		c.limit, c.hasLimit = uint64(limit), true
	}
	if offset > 0 {
		c.offset, c.hasOffset = uint64(offset), true
	}
	return c
}

// Annotate adds expr to the projection under label, which OrderBy can then
// reference as "label__label".
func (p Plan) Annotate(label string, expr sq.Sqlizer) Plan {
	c := p.clone()
	c.columns = append(c.columns, sq.Alias(expr, schema.QuoteIdent(label)))
	return c
}

// Returning adds a RETURNING clause to update and delete plans. No columns
// means every table column.
func (p Plan) Returning(cols ...string) Plan {
	if p.err != nil {
		return p
	}
	c := p.clone()
	if len(cols) == 0 {
		cols = p.table.ColumnNames()
	}
	for _, col := range cols {
		if !p.table.HasColumn(col) {
			c.err = errors.BadInputf("unknown returning column %q on table %s", col, p.table.Name())
			return c
		}
	}
	c.returning = cols
	return c
}

// HasReturning reports whether the plan yields rows.
func (p Plan) HasReturning() bool {
	return p.kind == KindSelect || len(p.returning) > 0
}
