// Package filter compiles filter descriptors into SQL predicates.
//
// A descriptor key names a column, optional modifiers and an operator, joined
// by "__":
//
//	name                      equality (IS NULL for a nil value)
//	name__icontains           case-insensitive substring match
//	created__date__gte        compare the date part of a timestamp
//	created__date__with_offset__lt
//	                          shift by [minutes, value][0] minutes first
//	a__or__b                  equality against either column
//	a__or__b__include_any_in_pair
//	a__or__b__coalesce__in__in_pair
//	team__project__name       filter through declared relations
//
// Keys that do not resolve against the table are dropped unless Strict is
// given. Malformed values for a resolved key are always BAD_INPUT.
package filter

import (
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/schema"
)

// Descriptor maps filter keys to values.
type Descriptor map[string]any

// Join is an inner join required by relation filters.
type Join struct {
	Table  *schema.Table
	Alias  string
	Parent string
	Local  string
	Remote string
}

// Clause renders the join for squirrel's Join, without the JOIN keyword.
func (j Join) Clause() string {
	return schema.QuoteIdent(j.Table.Name()) + " AS " + schema.QuoteIdent(j.Alias) +
		" ON " + schema.QuoteIdent(j.Parent, j.Local) + " = " + schema.QuoteIdent(j.Alias, j.Remote)
}

// Result is a conjunction of predicates plus the joins they need, parents
// before children.
type Result struct {
	Predicates []sq.Sqlizer
	Joins      []Join
}

// Where returns the predicates as one conjunction, or nil when empty.
func (r Result) Where() sq.Sqlizer {
	if len(r.Predicates) == 0 {
		return nil
	}
	return sq.And(r.Predicates)
}

type options struct {
	strict bool
}

// Option configures compilation.
type Option func(*options)

// Strict rejects unresolvable keys with BAD_INPUT instead of dropping them.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// Compile compiles d against t, referencing t by its table name.
func Compile(t *schema.Table, d Descriptor, opts ...Option) (Result, error) {
	return CompileAs(t, t.Name(), d, opts...)
}

// CompileAs compiles d against t referenced as alias.
func CompileAs(t *schema.Table, alias string, d Descriptor, opts ...Option) (Result, error) {
	c := &compiler{}
	for _, opt := range opts {
		opt(&c.opts)
	}
	preds, err := c.compile(t, alias, "", d)
	if err != nil {
		return Result{}, err
	}
	return Result{Predicates: preds, Joins: c.joins}, nil
}

type compiler struct {
	opts  options
	joins []Join
}

func (c *compiler) compile(t *schema.Table, alias, path string, d Descriptor) ([]sq.Sqlizer, error) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []sq.Sqlizer
	related := make(map[string]Descriptor)
	var relNames []string

	for _, key := range keys {
		if name, rest, ok := strings.Cut(key, sep); ok && rest != "" {
			if _, isRel := t.Relation(name); isRel {
				if _, seen := related[name]; !seen {
					related[name] = make(Descriptor)
					relNames = append(relNames, name)
				}
				related[name][rest] = d[key]
				continue
			}
		}

		pred, ok, err := c.column(t, alias, key, d[key])
		if err != nil {
			return nil, err
		}
		if !ok {
			if c.opts.strict {
				return nil, errors.BadInputf("unknown filter key %q on table %s", path+prefix(path)+key, t.Name()).
					WithDetail("key", key)
			}
			continue
		}
		preds = append(preds, pred)
	}

	sort.Strings(relNames)
	for _, name := range relNames {
		rel, _ := t.Relation(name)
		childPath := name
		if path != "" {
			childPath = path + sep + name
		}

		mark := len(c.joins)
		c.joins = append(c.joins, Join{
			Table:  rel.Table,
			Alias:  childPath,
			Parent: alias,
			Local:  rel.LocalColumn,
			Remote: rel.RemoteColumn,
		})

		sub, err := c.compile(rel.Table, childPath, childPath, related[name])
		if err != nil {
			return nil, err
		}
		if len(sub) == 0 {
			// Nothing resolved: an inner join alone would still drop rows.
			c.joins = c.joins[:mark]
			continue
		}
		preds = append(preds, sub...)
	}
	return preds, nil
}

func prefix(path string) string {
	if path == "" {
		return ""
	}
	return sep
}

// column compiles a non-relation key. ok is false when the key does not
// resolve against t.
func (c *compiler) column(t *schema.Table, alias, key string, value any) (sq.Sqlizer, bool, error) {
	l, ok := ParseKey(key)
	if !ok {
		return nil, false, nil
	}
	cols := make([]schema.Column, len(l.Columns))
	for i, name := range l.Columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, false, nil
		}
		cols[i] = col
	}
	if l.Pair && len(cols) != 2 {
		return nil, false, nil
	}
	if l.Coalesce && len(cols) < 2 {
		return nil, false, nil
	}
	if err := checkTypes(t, l, cols); err != nil {
		return nil, true, err.WithDetail("key", key)
	}

	pred, err := build(alias, l, cols, value)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return nil, true, e.WithDetail("key", key)
		}
		return nil, true, err
	}
	return pred, true, nil
}

func checkTypes(t *schema.Table, l Lookup, cols []schema.Column) *errors.Error {
	for _, col := range cols {
		switch {
		case l.Op.array() && col.Type != schema.TypeArray && col.Type != schema.TypeUnknown:
			return errors.BadInputf("filter %s needs an array column, %s.%s is %s", l.Op, t.Name(), col.Name, col.Type)
		case l.Op.json() && col.Type != schema.TypeJSON && col.Type != schema.TypeUnknown:
			return errors.BadInputf("filter %s needs a json column, %s.%s is %s", l.Op, t.Name(), col.Name, col.Type)
		case l.Date && (col.Type == schema.TypeBoolean || col.Type == schema.TypeJSON || col.Type == schema.TypeArray):
			return errors.BadInputf("date filter on %s column %s.%s", col.Type, t.Name(), col.Name)
		}
	}
	return nil
}

func build(alias string, l Lookup, cols []schema.Column, value any) (sq.Sqlizer, error) {
	if l.Coalesce {
		refs := make([]string, len(cols))
		for i, col := range cols {
			refs[i] = schema.QuoteIdent(alias, col.Name)
		}
		return predicate(operand{sql: "COALESCE(" + strings.Join(refs, ", ") + ")"}, l, value)
	}
	if l.Date && l.Pair && l.Op.comparison() {
		return datePair(alias, l, cols, value)
	}
	if len(cols) == 1 {
		return predicate(operand{sql: schema.QuoteIdent(alias, cols[0].Name)}, l, value)
	}

	or := make(sq.Or, 0, len(cols))
	for _, col := range cols {
		p, err := predicate(operand{sql: schema.QuoteIdent(alias, col.Name)}, l, value)
		if err != nil {
			return nil, err
		}
		or = append(or, p)
	}
	return or, nil
}

func predicate(o operand, l Lookup, value any) (sq.Sqlizer, error) {
	switch {
	case l.Offset:
		items, ok := asList(value)
		if !ok || len(items) != 2 {
			return nil, badValue(l, "a [minutes, value] pair", value)
		}
		minutes, ok := asInt(items[0])
		if !ok {
			return nil, badValue(l, "integer minutes", items[0])
		}
		o = o.wrap("CAST(", " + (CAST(? AS BIGINT) * INTERVAL '1 minute') AS DATE)", minutes)
		value = items[1]
	case l.Date:
		o = o.wrap("CAST(", " AS DATE)")
	}

	pred, err := builders[l.Op](o, l, value)
	if err != nil {
		return nil, err
	}
	if l.OrNull {
		return sq.Or{o.isNull(), pred}, nil
	}
	return pred, nil
}

// datePair compares the date of the first column when it is set and the
// date of the second column otherwise, each against its own value. A gt
// lookup is inclusive on the second column.
func datePair(alias string, l Lookup, cols []schema.Column, value any) (sq.Sqlizer, error) {
	items, ok := asList(value)
	if !ok || len(items) != 2 {
		return nil, badValue(l, "a [first, second] pair", value)
	}
	first := operand{sql: schema.QuoteIdent(alias, cols[0].Name)}
	second := operand{sql: schema.QuoteIdent(alias, cols[1].Name)}

	build := builders[l.Op]
	p0, err := build(first.wrap("CAST(", " AS DATE)"), l, items[0])
	if err != nil {
		return nil, err
	}
	fallback := builders[l.Op]
	if l.Op == OpGt {
		fallback = builders[OpGte]
	}
	p1, err := fallback(second.wrap("CAST(", " AS DATE)"), l, items[1])
	if err != nil {
		return nil, err
	}
	return sq.Or{
		sq.And{first.expr(" IS NOT NULL"), p0},
		sq.And{first.isNull(), p1},
	}, nil
}
