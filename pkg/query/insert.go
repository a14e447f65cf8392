package query

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/schema"
)

type conflictMode int

const (
	conflictNone conflictMode = iota
	conflictUpdate
	conflictIgnore
)

// Insert is a multi-row INSERT over a fixed column list. Like Plan, its
// methods return copies.
type Insert struct {
	table     *schema.Table
	columns   []string
	rows      [][]any
	mode      conflictMode
	target    []string
	set       []string
	returning []string
}

// InsertRows builds an insert of rows, each holding one value per column.
// The rows slice is referenced, not copied.
func InsertRows(t *schema.Table, columns []string, rows [][]any) Insert {
	return Insert{table: t, columns: columns, rows: rows}
}

// OnConflictUpdate sets each column in set to its proposed value when a row
// conflicts on target.
func (i Insert) OnConflictUpdate(target, set []string) Insert {
	i.mode = conflictUpdate
	i.target = append([]string(nil), target...)
	i.set = append([]string(nil), set...)
	return i
}

// OnConflictDoNothing skips conflicting rows.
func (i Insert) OnConflictDoNothing() Insert {
	i.mode = conflictIgnore
	i.target, i.set = nil, nil
	return i
}

// Returning adds a RETURNING clause; no columns means every table column.
func (i Insert) Returning(cols ...string) Insert {
	if len(cols) == 0 {
		cols = i.table.ColumnNames()
	}
	i.returning = append([]string(nil), cols...)
	return i
}

// Params is the number of bound values the statement carries.
func (i Insert) Params() int {
	return len(i.rows) * len(i.columns)
}

// ToSQL renders the insert with $n placeholders.
func (i Insert) ToSQL() (string, []any, error) {
	if len(i.columns) == 0 || len(i.rows) == 0 {
		return "", nil, errors.BadInputf("insert into %s has no values", i.table.Name())
	}
	cols := make([]string, len(i.columns))
	for n, c := range i.columns {
		if !i.table.HasColumn(c) {
			return "", nil, errors.BadInputf("unknown column %q on table %s", c, i.table.Name())
		}
		cols[n] = schema.QuoteIdent(c)
	}

	b := sq.Insert(schema.QuoteIdent(i.table.Name())).Columns(cols...)
	for n, row := range i.rows {
		if len(row) != len(cols) {
			return "", nil, errors.BadInputf("row %d has %d values, want %d", n, len(row), len(cols))
		}
		b = b.Values(row...)
	}

	switch i.mode {
	case conflictUpdate:
		target := make([]string, len(i.target))
		for n, c := range i.target {
			target[n] = schema.QuoteIdent(c)
		}
		set := make([]string, len(i.set))
		for n, c := range i.set {
			q := schema.QuoteIdent(c)
			set[n] = q + " = EXCLUDED." + q
		}
		b = b.Suffix("ON CONFLICT (" + strings.Join(target, ", ") + ") DO UPDATE SET " + strings.Join(set, ", "))
	case conflictIgnore:
		b = b.Suffix("ON CONFLICT DO NOTHING")
	}
	if len(i.returning) > 0 {
		b = b.Suffix(returningClause(i.returning))
	}
	return dollar(b)
}

// UpdateByKey renders "UPDATE t SET c1 = $1, ... WHERE t.key = $n" for
// execution once per row. Arguments are bound in columns order, key last.
func UpdateByKey(t *schema.Table, key string, columns []string) (string, error) {
	if !t.HasColumn(key) {
		return "", errors.BadInputf("unknown key column %q on table %s", key, t.Name())
	}
	if len(columns) == 0 {
		return "", errors.BadInputf("update of %s has no values", t.Name())
	}
	b := sq.Update(schema.QuoteIdent(t.Name()))
	for _, c := range columns {
		if !t.HasColumn(c) {
			return "", errors.BadInputf("unknown column %q on table %s", c, t.Name())
		}
		b = b.Set(schema.QuoteIdent(c), sq.Expr("?"))
	}
	b = b.Where(schema.QuoteIdent(t.Name(), key) + " = ?")
	sql, _, err := dollar(b)
	return sql, err
}
