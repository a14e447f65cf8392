package query

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/schema"
)

// ToSQL renders the plan with $n placeholders.
func (p Plan) ToSQL() (string, []any, error) {
	if p.err != nil {
		return "", nil, p.err
	}
	var s sq.Sqlizer
	switch p.kind {
	case KindSelect:
		s = p.selectBuilder(true)
	case KindUpdate:
		b, err := p.updateBuilder()
		if err != nil {
			return "", nil, err
		}
		s = b
	case KindDelete:
		s = p.deleteBuilder()
	}
	return dollar(s)
}

// CountSQL counts the rows the select would return, ignoring ordering and
// paging, by wrapping it as a subquery.
func (p Plan) CountSQL() (string, []any, error) {
	if err := p.requireSelect("count"); err != nil {
		return "", nil, err
	}
	return dollar(sq.Select("COUNT(*)").FromSelect(p.selectBuilder(false), "count_subquery"))
}

// ExistsSQL reports whether the select matches any row.
func (p Plan) ExistsSQL() (string, []any, error) {
	if err := p.requireSelect("exists"); err != nil {
		return "", nil, err
	}
	return dollar(sq.Select().Column(sq.Expr("EXISTS (?)", p.selectBuilder(false))))
}

// Subquery returns the select for use as a filter value, e.g. with
// "id__in". Its placeholders are left for the enclosing statement.
func (p Plan) Subquery() sq.Sqlizer {
	if p.err != nil {
		return errSqlizer{p.err}
	}
	return p.selectBuilder(true)
}

func (p Plan) requireSelect(op string) error {
	if p.err != nil {
		return p.err
	}
	if p.kind != KindSelect {
		return errors.BadInputf("%s needs a select plan, got %s", op, p.kind)
	}
	return nil
}

func (p Plan) selectBuilder(paged bool) sq.SelectBuilder {
	b := sq.Select().From(schema.QuoteIdent(p.table.Name()))
	for _, c := range p.columns {
		b = b.Column(c)
	}
	if p.distinct {
		b = b.Distinct()
	}
	for _, j := range p.joins {
		b = b.Join(j.Clause())
	}
	if len(p.preds) > 0 {
		b = b.Where(sq.And(p.preds))
	}
	if !paged {
		return b
	}
	if len(p.orders) > 0 {
		b = b.OrderBy(p.orders...)
	}
	if p.hasLimit {
		b = b.Limit(p.limit)
	}
	if p.hasOffset {
		b = b.Offset(p.offset)
	}
	return b
}

func (p Plan) updateBuilder() (sq.UpdateBuilder, error) {
	if len(p.set) == 0 {
		return sq.UpdateBuilder{}, errors.BadInputf("update of %s has no values", p.table.Name())
	}
	b := sq.Update(schema.QuoteIdent(p.table.Name()))
	for _, a := range p.set {
		col := schema.QuoteIdent(a.column)
		switch fn := a.value.(type) {
		case ColumnFunc:
			b = b.Set(col, fn(col))
		case func(string) sq.Sqlizer:
			b = b.Set(col, fn(col))
		default:
			b = b.Set(col, a.value)
		}
	}
	if where := p.mutationWhere(); where != nil {
		b = b.Where(where)
	}
	if len(p.returning) > 0 {
		b = b.Suffix(returningClause(p.returning))
	}
	return b, nil
}

func (p Plan) deleteBuilder() sq.DeleteBuilder {
	b := sq.Delete(schema.QuoteIdent(p.table.Name()))
	if where := p.mutationWhere(); where != nil {
		b = b.Where(where)
	}
	if len(p.returning) > 0 {
		b = b.Suffix(returningClause(p.returning))
	}
	return b
}

// mutationWhere restricts updates and deletes. Relation filters cannot join
// in UPDATE/DELETE portably, so they select the matching keys instead.
func (p Plan) mutationWhere() sq.Sqlizer {
	if len(p.preds) == 0 {
		return nil
	}
	if len(p.joins) == 0 {
		return sq.And(p.preds)
	}

	keys := p.table.PrimaryKeyColumns()
	if len(keys) == 0 {
		keys = p.table.ConflictTarget()
	}
	refs := make([]string, len(keys))
	for i, k := range keys {
		refs[i] = schema.QuoteIdent(p.table.Name(), k)
	}
	inner := sq.Select(refs...).From(schema.QuoteIdent(p.table.Name()))
	for _, j := range p.joins {
		inner = inner.Join(j.Clause())
	}
	inner = inner.Where(sq.And(p.preds))

	lhs := refs[0]
	if len(refs) > 1 {
		lhs = "(" + strings.Join(refs, ", ") + ")"
	}
	return sq.Expr(lhs+" IN (?)", inner)
}

func returningClause(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = schema.QuoteIdent(c)
	}
	return "RETURNING " + strings.Join(quoted, ", ")
}

// dollar renders s with ? placeholders and numbers them.
func dollar(s sq.Sqlizer) (string, []any, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return "", nil, err
	}
	sql, err = sq.Dollar.ReplacePlaceholders(sql)
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

type errSqlizer struct {
	err error
}

func (e errSqlizer) ToSql() (string, []interface{}, error) {
	return "", nil, e.err
}
