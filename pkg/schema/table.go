// Package schema describes relational tables for the filter compiler and the
// bulk writer: ordered typed columns, keys, tenant and modified-stamp columns,
// and the relations that filter keys may traverse.
//
// Tables are assembled once at package init with the builder methods and are
// read-only afterwards.
package schema

import (
	"fmt"

	"github.com/TFMV/querykit/pkg/errors"
)

// Relation declares that filter keys prefixed with Name target Table, joined
// on local.LocalColumn = Table.RemoteColumn.
type Relation struct {
	Name         string
	LocalColumn  string
	Table        *Table
	RemoteColumn string
}

// Table is a relational table definition.
type Table struct {
	name       string
	columns    []Column
	index      map[string]int
	primaryKey []string
	uniques    []Constraint
	tenant     string
	modified   string
	indexKeys  []string
	relations  map[string]Relation
	relOrder   []string
}

// NewTable starts a table definition with the given ordered columns.
func NewTable(name string, columns ...Column) *Table {
	t := &Table{
		name:      name,
		index:     make(map[string]int, len(columns)),
		relations: make(map[string]Relation),
	}
	for _, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			continue
		}
		t.index[c.Name] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t
}

// PrimaryKey sets the primary-key columns.
func (t *Table) PrimaryKey(cols ...string) *Table {
	t.primaryKey = append([]string(nil), cols...)
	return t
}

// Unique adds a named unique constraint.
func (t *Table) Unique(name string, cols ...string) *Table {
	t.uniques = append(t.uniques, Constraint{Name: name, Columns: append([]string(nil), cols...)})
	return t
}

// Tenant marks the tenant-scoping column.
func (t *Table) Tenant(col string) *Table {
	t.tenant = col
	return t
}

// Modified marks the column stamped with the server time on upsert.
func (t *Table) Modified(col string) *Table {
	t.modified = col
	return t
}

// IndexKeys sets an explicit upsert conflict target.
func (t *Table) IndexKeys(cols ...string) *Table {
	t.indexKeys = append([]string(nil), cols...)
	return t
}

// Relate declares a relation reachable from filter keys prefixed name__.
func (t *Table) Relate(name, localCol string, related *Table, remoteCol string) *Table {
	if _, ok := t.relations[name]; !ok {
		t.relOrder = append(t.relOrder, name)
	}
	t.relations[name] = Relation{
		Name:         name,
		LocalColumn:  localCol,
		Table:        related,
		RemoteColumn: remoteCol,
	}
	return t
}

func (t *Table) Name() string { return t.name }

// Columns returns the columns in declaration order.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the table declares name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Position returns the declaration index of a column, or -1.
func (t *Table) Position(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

func (t *Table) PrimaryKeyColumns() []string { return append([]string(nil), t.primaryKey...) }

func (t *Table) UniqueConstraints() []Constraint {
	out := make([]Constraint, len(t.uniques))
	for i, u := range t.uniques {
		out[i] = Constraint{Name: u.Name, Columns: append([]string(nil), u.Columns...)}
	}
	return out
}

func (t *Table) TenantColumn() string { return t.tenant }

func (t *Table) ModifiedColumn() string { return t.modified }

// Relation looks up a declared relation by name.
func (t *Table) Relation(name string) (Relation, bool) {
	r, ok := t.relations[name]
	return r, ok
}

// Relations returns the declared relations in declaration order.
func (t *Table) Relations() []Relation {
	out := make([]Relation, 0, len(t.relOrder))
	for _, name := range t.relOrder {
		out = append(out, t.relations[name])
	}
	return out
}

// ConflictTarget resolves the upsert key set: explicit index keys, else the
// first unique constraint, else the primary key.
func (t *Table) ConflictTarget() []string {
	switch {
	case len(t.indexKeys) > 0:
		return append([]string(nil), t.indexKeys...)
	case len(t.uniques) > 0:
		return append([]string(nil), t.uniques[0].Columns...)
	default:
		return append([]string(nil), t.primaryKey...)
	}
}

// Validate checks that every referenced column exists and that the table has
// a usable conflict target.
func (t *Table) Validate() error {
	if t.name == "" {
		return errors.BadInput("table name is empty")
	}
	if len(t.columns) == 0 {
		return errors.BadInputf("table %s has no columns", t.name)
	}
	check := func(what string, cols []string) error {
		for _, c := range cols {
			if !t.HasColumn(c) {
				return errors.BadInputf("table %s: %s references unknown column %q", t.name, what, c)
			}
		}
		return nil
	}
	if err := check("primary key", t.primaryKey); err != nil {
		return err
	}
	for _, u := range t.uniques {
		if len(u.Columns) == 0 {
			return errors.BadInputf("table %s: unique constraint %s has no columns", t.name, u.Name)
		}
		if err := check("unique constraint "+u.Name, u.Columns); err != nil {
			return err
		}
	}
	if err := check("index keys", t.indexKeys); err != nil {
		return err
	}
	if t.tenant != "" {
		if err := check("tenant column", []string{t.tenant}); err != nil {
			return err
		}
	}
	if t.modified != "" {
		if err := check("modified column", []string{t.modified}); err != nil {
			return err
		}
	}
	for _, name := range t.relOrder {
		r := t.relations[name]
		if r.Table == nil {
			return errors.BadInputf("table %s: relation %s has no target table", t.name, name)
		}
		if err := check("relation "+name, []string{r.LocalColumn}); err != nil {
			return err
		}
		if !r.Table.HasColumn(r.RemoteColumn) {
			return errors.BadInputf("table %s: relation %s references unknown column %s.%s",
				t.name, name, r.Table.name, r.RemoteColumn)
		}
	}
	if len(t.ConflictTarget()) == 0 {
		return errors.BadInputf("table %s has neither a primary key nor a unique constraint", t.name)
	}
	return nil
}

// MustTable panics if t is invalid. Intended for package-level table vars.
func MustTable(t *Table) *Table {
	if err := t.Validate(); err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return t
}
