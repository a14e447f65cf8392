package filter

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
)

// operand is the left-hand side of a predicate: a column reference or an
// expression over one, with its own bound arguments.
type operand struct {
	sql  string
	args []any
}

func (o operand) expr(suffix string, args ...any) sq.Sqlizer {
	all := make([]any, 0, len(o.args)+len(args))
	all = append(all, o.args...)
	all = append(all, args...)
	return sq.Expr(o.sql+suffix, all...)
}

func (o operand) isNull() sq.Sqlizer {
	return o.expr(" IS NULL")
}

// wrap surrounds the operand; args bind placeholders in suffix.
func (o operand) wrap(prefix, suffix string, args ...any) operand {
	all := make([]any, 0, len(o.args)+len(args))
	all = append(all, o.args...)
	all = append(all, args...)
	return operand{sql: prefix + o.sql + suffix, args: all}
}

// not negates a predicate.
type not struct {
	pred sq.Sqlizer
}

func (n not) ToSql() (string, []interface{}, error) {
	sql, args, err := n.pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

var (
	alwaysTrue  = sq.Expr("1=1")
	alwaysFalse = sq.Expr("1=0")
)

type builder func(o operand, l Lookup, value any) (sq.Sqlizer, error)

var builders = map[Op]builder{
	OpEq:         buildEq,
	OpGt:         buildCompare(">"),
	OpLt:         buildCompare("<"),
	OpGte:        buildCompare(">="),
	OpLte:        buildCompare("<="),
	OpContains:   buildPattern("LIKE"),
	OpIContains:  buildPattern("ILIKE"),
	OpILike:      buildILike,
	OpIn:         buildIn(false),
	OpNotIn:      buildIn(true),
	OpIncludeAll: buildArray("@>", false),
	OpIncludeAny: buildArray("&&", false),
	OpOverlap:    buildArray("&&", false),
	OpExcludeAll: buildArray("@>", true),
	OpExcludeAny: buildArray("&&", true),
	OpIsNull:     buildIsNull,
	OpJSONIsNull: buildJSONIsNull,
	OpHasAnyKeys: buildHasAnyKeys,
}

func badValue(l Lookup, want string, got any) *errors.Error {
	return errors.BadInputf("filter %s expects %s, got %T", l.Op, want, got)
}

func buildEq(o operand, _ Lookup, v any) (sq.Sqlizer, error) {
	if v == nil {
		return o.isNull(), nil
	}
	return o.expr(" = ?", v), nil
}

func buildCompare(sym string) builder {
	return func(o operand, _ Lookup, v any) (sq.Sqlizer, error) {
		return o.expr(" "+sym+" ?", v), nil
	}
}

func buildPattern(keyword string) builder {
	clause := " " + keyword + " ? ESCAPE '\\'"
	return func(o operand, l Lookup, v any) (sq.Sqlizer, error) {
		if !l.AnyPattern {
			s, ok := v.(string)
			if !ok {
				return nil, badValue(l, "a string", v)
			}
			return o.expr(clause, containsPattern(s)), nil
		}

		items, ok := asStrings(v)
		if !ok {
			return nil, badValue(l, "a list of strings", v)
		}
		if len(items) == 0 {
			return alwaysFalse, nil
		}
		if l.NotAll {
			all := make(sq.And, len(items))
			for i, s := range items {
				all[i] = o.expr(clause, containsPattern(s))
			}
			return not{all}, nil
		}
		or := make(sq.Or, len(items))
		for i, s := range items {
			or[i] = o.expr(clause, containsPattern(s))
		}
		return or, nil
	}
}

func buildILike(o operand, l Lookup, v any) (sq.Sqlizer, error) {
	s, ok := v.(string)
	if !ok {
		return nil, badValue(l, "a string", v)
	}
	return o.expr(" ILIKE ?", s), nil
}

func buildIn(negate bool) builder {
	keyword := " IN "
	empty := alwaysFalse
	if negate {
		keyword = " NOT IN "
		empty = alwaysTrue
	}
	return func(o operand, l Lookup, v any) (sq.Sqlizer, error) {
		if sub, ok := v.(sq.Sqlizer); ok {
			return o.expr(keyword+"(?)", sub), nil
		}
		items, ok := asList(v)
		if !ok {
			return nil, badValue(l, "a list", v)
		}
		if len(items) == 0 {
			return empty, nil
		}
		return o.expr(keyword+"("+sq.Placeholders(len(items))+")", items...), nil
	}
}

func buildArray(sym string, exclude bool) builder {
	return func(o operand, l Lookup, v any) (sq.Sqlizer, error) {
		if !isList(v) {
			return nil, badValue(l, "a list", v)
		}
		pred := o.expr(" "+sym+" ?", v)
		if exclude {
			return sq.Or{o.isNull(), not{pred}}, nil
		}
		return pred, nil
	}
}

func buildIsNull(o operand, l Lookup, v any) (sq.Sqlizer, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, badValue(l, "a bool", v)
	}
	if b {
		return o.isNull(), nil
	}
	return o.expr(" IS NOT NULL"), nil
}

func buildJSONIsNull(o operand, l Lookup, v any) (sq.Sqlizer, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, badValue(l, "a bool", v)
	}
	if b {
		return o.expr(" = 'null'"), nil
	}
	return o.expr(" <> 'null'"), nil
}

func buildHasAnyKeys(o operand, l Lookup, v any) (sq.Sqlizer, error) {
	keys, ok := asStrings(v)
	if !ok {
		return nil, badValue(l, "a list of strings", v)
	}
	// ?? renders as a literal ? once placeholders are numbered.
	return o.expr(" ??| ?", keys), nil
}
