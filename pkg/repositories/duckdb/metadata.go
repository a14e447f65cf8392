package duckdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/schema"
)

const (
	tablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	columnsQuery = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = $1
		ORDER BY ordinal_position`

	constraintsQuery = `
		SELECT constraint_type, constraint_name, constraint_column_names,
			referenced_table, referenced_column_names
		FROM duckdb_constraints()
		WHERE schema_name = 'main' AND table_name = $1
			AND constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY constraint_index`
)

// Tables lists the base tables of the main schema.
func Tables(ctx context.Context, q repositories.Querier) ([]string, error) {
	rs, err := q.FetchAll(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		if name, ok := r.Get("table_name").(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Describe reads the definition of a table from the catalog: its ordered
// columns, primary key, unique constraints and single-column foreign keys.
// A foreign key on column x_id becomes relation x; related tables are
// described recursively.
func Describe(ctx context.Context, q repositories.Querier, name string) (*schema.Table, error) {
	d := describer{q: q, seen: make(map[string]*schema.Table)}
	t, err := d.describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

type describer struct {
	q    repositories.Querier
	seen map[string]*schema.Table
}

func (d *describer) describe(ctx context.Context, name string) (*schema.Table, error) {
	if t, ok := d.seen[name]; ok {
		return t, nil
	}

	cols, err := d.q.FetchAll(ctx, columnsQuery, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", name, err)
	}
	if len(cols) == 0 {
		return nil, errors.BadInputf("table %s does not exist", name).WithDetail("table", name)
	}
	columns := make([]schema.Column, 0, len(cols))
	for _, c := range cols {
		colName, _ := c.Get("column_name").(string)
		dataType, _ := c.Get("data_type").(string)
		columns = append(columns, schema.Col(colName, schema.ParseType(dataType)))
	}
	t := schema.NewTable(name, columns...)
	d.seen[name] = t

	cons, err := d.q.FetchAll(ctx, constraintsQuery, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints of %s: %w", name, err)
	}
	for _, c := range cons {
		kind, _ := c.Get("constraint_type").(string)
		local := stringList(c.Get("constraint_column_names"))
		if len(local) == 0 {
			continue
		}
		switch kind {
		case "PRIMARY KEY":
			t.PrimaryKey(local...)
		case "UNIQUE":
			cname, _ := c.Get("constraint_name").(string)
			if cname == "" {
				cname = name + "_" + strings.Join(local, "_") + "_key"
			}
			t.Unique(cname, local...)
		case "FOREIGN KEY":
			remote := stringList(c.Get("referenced_column_names"))
			refTable, _ := c.Get("referenced_table").(string)
			if len(local) != 1 || len(remote) != 1 || refTable == "" || !t.HasColumn(local[0]) {
				continue
			}
			related, err := d.describe(ctx, refTable)
			if err != nil {
				return nil, err
			}
			t.Relate(relationName(local[0], refTable), local[0], related, remote[0])
		}
	}
	return t, nil
}

func relationName(col, refTable string) string {
	if name := strings.TrimSuffix(col, "_id"); name != col && name != "" {
		return name
	}
	return refTable
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
