package repositories

import (
	"context"
	"strings"
	"sync"

	"github.com/TFMV/querykit/pkg/rows"
	"github.com/TFMV/querykit/pkg/schema"
)

type call struct {
	sql  string
	args []any
}

// fakeDB records every statement and delegates to the func fields when set.
type fakeDB struct {
	mu    sync.Mutex
	calls []call

	FetchAllFunc    func(ctx context.Context, sql string, args ...any) ([]rows.Row, error)
	FetchOneFunc    func(ctx context.Context, sql string, args ...any) (rows.Row, bool, error)
	FetchValueFunc  func(ctx context.Context, sql string, args ...any) (any, error)
	ExecuteFunc     func(ctx context.Context, sql string, args ...any) (int64, error)
	ExecuteManyFunc func(ctx context.Context, sql string, argSets [][]any) error
	TransactionFunc func(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error
	ViolationFunc   func(err error) (string, bool)
}

func (f *fakeDB) record(sql string, args []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{sql: sql, args: args})
}

func (f *fakeDB) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeDB) FetchAll(ctx context.Context, sql string, args ...any) ([]rows.Row, error) {
	f.record(sql, args)
	if f.FetchAllFunc != nil {
		return f.FetchAllFunc(ctx, sql, args...)
	}
	return nil, nil
}

func (f *fakeDB) FetchOne(ctx context.Context, sql string, args ...any) (rows.Row, bool, error) {
	f.record(sql, args)
	if f.FetchOneFunc != nil {
		return f.FetchOneFunc(ctx, sql, args...)
	}
	return rows.Row{}, false, nil
}

func (f *fakeDB) FetchValue(ctx context.Context, sql string, args ...any) (any, error) {
	f.record(sql, args)
	if f.FetchValueFunc != nil {
		return f.FetchValueFunc(ctx, sql, args...)
	}
	return nil, nil
}

func (f *fakeDB) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	f.record(sql, args)
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, sql, args...)
	}
	return 0, nil
}

func (f *fakeDB) ExecuteMany(ctx context.Context, sql string, argSets [][]any) error {
	f.record(sql, nil)
	if f.ExecuteManyFunc != nil {
		return f.ExecuteManyFunc(ctx, sql, argSets)
	}
	return nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	if f.TransactionFunc != nil {
		return f.TransactionFunc(ctx, fn)
	}
	return fn(ctx, f)
}

func (f *fakeDB) UniqueViolation(err error) (string, bool) {
	if f.ViolationFunc != nil {
		return f.ViolationFunc(err)
	}
	return "", false
}

func (f *fakeDB) Close() error { return nil }

// echoRows returns one row per VALUES tuple of an insert, built from its
// bound arguments.
func echoRows(cols []string) func(ctx context.Context, sql string, args ...any) ([]rows.Row, error) {
	return func(_ context.Context, sql string, args ...any) ([]rows.Row, error) {
		if !strings.HasPrefix(sql, "INSERT") {
			return nil, nil
		}
		out := make([]rows.Row, 0, len(args)/len(cols))
		for i := 0; i+len(cols) <= len(args); i += len(cols) {
			out = append(out, rows.Normalize(cols, args[i:i+len(cols)]))
		}
		return out, nil
	}
}

var (
	testProject = schema.MustTable(schema.NewTable("project",
		schema.Col("id", schema.TypeBigInt),
		schema.Col("name", schema.TypeText),
	).PrimaryKey("id").Unique("project_name_key", "name"))

	testTeam = schema.MustTable(schema.NewTable("team",
		schema.Col("id", schema.TypeBigInt),
		schema.Col("project_id", schema.TypeBigInt),
		schema.Col("name", schema.TypeText),
		schema.Col("created", schema.TypeTimestamp),
		schema.Col("modified", schema.TypeTimestamp),
	).PrimaryKey("id").
		Unique("team_project_id_name_key", "project_id", "name").
		Tenant("project_id").
		Modified("modified").
		Relate("project", "project_id", testProject, "id"))
)
