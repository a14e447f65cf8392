package filter

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/schema"
)

var (
	testProject = schema.MustTable(schema.NewTable("project",
		schema.Col("id", schema.TypeBigInt),
		schema.Col("name", schema.TypeText),
	).PrimaryKey("id"))

	testTeam = schema.MustTable(schema.NewTable("team",
		schema.Col("id", schema.TypeBigInt),
		schema.Col("project_id", schema.TypeBigInt),
		schema.Col("name", schema.TypeText),
		schema.Col("tags", schema.TypeArray),
		schema.Col("labels", schema.TypeArray),
		schema.Col("meta", schema.TypeJSON),
		schema.Col("created", schema.TypeTimestamp),
		schema.Col("closed", schema.TypeTimestamp),
		schema.Col("active", schema.TypeBoolean),
	).PrimaryKey("id").
		Unique("team_project_id_name_key", "project_id", "name").
		Tenant("project_id").
		Relate("project", "project_id", testProject, "id"))

	testTeamData = schema.MustTable(schema.NewTable("team_data",
		schema.Col("id", schema.TypeBigInt),
		schema.Col("team_id", schema.TypeBigInt),
		schema.Col("date", schema.TypeDate),
	).PrimaryKey("id").
		Relate("team", "team_id", testTeam, "id"))
)

func render(t *testing.T, r Result) (string, []any) {
	t.Helper()
	where := r.Where()
	if where == nil {
		return "", nil
	}
	sql, args, err := where.ToSql()
	require.NoError(t, err)
	return sql, args
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		filters  Descriptor
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equality",
			filters:  Descriptor{"name": "a"},
			wantSQL:  `("team"."name" = ?)`,
			wantArgs: []any{"a"},
		},
		{
			name:    "nil equality is IS NULL",
			filters: Descriptor{"name": nil},
			wantSQL: `("team"."name" IS NULL)`,
		},
		{
			name:     "keys are compiled in sorted order",
			filters:  Descriptor{"name": "a", "id": 1},
			wantSQL:  `("team"."id" = ? AND "team"."name" = ?)`,
			wantArgs: []any{1, "a"},
		},
		{
			name:     "comparisons",
			filters:  Descriptor{"id__gt": 1, "id__lte": 9},
			wantSQL:  `("team"."id" > ? AND "team"."id" <= ?)`,
			wantArgs: []any{1, 9},
		},
		{
			name:     "contains escapes pattern characters",
			filters:  Descriptor{"name__contains": `a_b%c\`},
			wantSQL:  `("team"."name" LIKE ? ESCAPE '\')`,
			wantArgs: []any{`%a\_b\%c\\%`},
		},
		{
			name:     "icontains",
			filters:  Descriptor{"name__icontains": "ab"},
			wantSQL:  `("team"."name" ILIKE ? ESCAPE '\')`,
			wantArgs: []any{"%ab%"},
		},
		{
			name:     "ilike passes the pattern through",
			filters:  Descriptor{"name__ilike": "a%"},
			wantSQL:  `("team"."name" ILIKE ?)`,
			wantArgs: []any{"a%"},
		},
		{
			name:     "icontains any of a list",
			filters:  Descriptor{"name__icontains__in": []string{"a", "b"}},
			wantSQL:  `(("team"."name" ILIKE ? ESCAPE '\' OR "team"."name" ILIKE ? ESCAPE '\'))`,
			wantArgs: []any{"%a%", "%b%"},
		},
		{
			name:     "icontains not all of a list",
			filters:  Descriptor{"name__icontains__not_in": []string{"a", "b"}},
			wantSQL:  `(NOT (("team"."name" ILIKE ? ESCAPE '\' AND "team"."name" ILIKE ? ESCAPE '\')))`,
			wantArgs: []any{"%a%", "%b%"},
		},
		{
			name:     "in",
			filters:  Descriptor{"id__in": []int64{1, 2}},
			wantSQL:  `("team"."id" IN (?,?))`,
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:    "empty in matches nothing",
			filters: Descriptor{"id__in": []int64{}},
			wantSQL: `(1=0)`,
		},
		{
			name:    "empty not_in matches everything",
			filters: Descriptor{"id__not_in": []int64{}},
			wantSQL: `(1=1)`,
		},
		{
			name:     "in_subquery alias",
			filters:  Descriptor{"id__not_in_subquery": []int{3}},
			wantSQL:  `("team"."id" NOT IN (?))`,
			wantArgs: []any{3},
		},
		{
			name:     "in with subquery value",
			filters:  Descriptor{"project_id__in": sq.Select("id").From("project").Where("name = ?", "p")},
			wantSQL:  `("team"."project_id" IN (SELECT id FROM project WHERE name = ?))`,
			wantArgs: []any{"p"},
		},
		{
			name:     "in_if_exists admits null",
			filters:  Descriptor{"id__in_if_exists": []int{1}},
			wantSQL:  `(("team"."id" IS NULL OR "team"."id" IN (?)))`,
			wantArgs: []any{1},
		},
		{
			name:     "date transform",
			filters:  Descriptor{"created__date__gte": "2024-01-01"},
			wantSQL:  `(CAST("team"."created" AS DATE) >= ?)`,
			wantArgs: []any{"2024-01-01"},
		},
		{
			name:     "date equality",
			filters:  Descriptor{"created__date": "2024-01-01"},
			wantSQL:  `(CAST("team"."created" AS DATE) = ?)`,
			wantArgs: []any{"2024-01-01"},
		},
		{
			name:     "date lt_if_exists",
			filters:  Descriptor{"closed__date__lt_if_exists": "2024-01-01"},
			wantSQL:  `((CAST("team"."closed" AS DATE) IS NULL OR CAST("team"."closed" AS DATE) < ?))`,
			wantArgs: []any{"2024-01-01"},
		},
		{
			name:     "date with offset",
			filters:  Descriptor{"created__date__with_offset__lt": []any{-60, "2024-01-01"}},
			wantSQL:  `(CAST("team"."created" + (CAST(? AS BIGINT) * INTERVAL '1 minute') AS DATE) < ?)`,
			wantArgs: []any{int64(-60), "2024-01-01"},
		},
		{
			name:    "or across columns",
			filters: Descriptor{"created__or__closed": nil},
			wantSQL: `(("team"."created" IS NULL OR "team"."closed" IS NULL))`,
		},
		{
			name:     "include_all",
			filters:  Descriptor{"tags__include_all": []string{"x"}},
			wantSQL:  `("team"."tags" @> ?)`,
			wantArgs: []any{[]string{"x"}},
		},
		{
			name:     "include_any and overlap",
			filters:  Descriptor{"tags__include_any": []string{"x"}, "labels__overlap": []string{"y"}},
			wantSQL:  `("team"."labels" && ? AND "team"."tags" && ?)`,
			wantArgs: []any{[]string{"y"}, []string{"x"}},
		},
		{
			name:     "exclude_any tolerates null",
			filters:  Descriptor{"tags__exclude_any": []string{"x"}},
			wantSQL:  `(("team"."tags" IS NULL OR NOT ("team"."tags" && ?)))`,
			wantArgs: []any{[]string{"x"}},
		},
		{
			name:     "include_all_if_exists",
			filters:  Descriptor{"tags__include_all_if_exists": []string{"x"}},
			wantSQL:  `(("team"."tags" IS NULL OR "team"."tags" @> ?))`,
			wantArgs: []any{[]string{"x"}},
		},
		{
			name:     "pair applies to either column",
			filters:  Descriptor{"tags__or__labels__include_any_in_pair": []string{"x"}},
			wantSQL:  `(("team"."tags" && ? OR "team"."labels" && ?))`,
			wantArgs: []any{[]string{"x"}, []string{"x"}},
		},
		{
			name:     "in_pair",
			filters:  Descriptor{"id__or__project_id__in_pair": []int{1}},
			wantSQL:  `(("team"."id" IN (?) OR "team"."project_id" IN (?)))`,
			wantArgs: []any{1, 1},
		},
		{
			name:     "coalesce pair",
			filters:  Descriptor{"tags__or__labels__coalesce__include_all_in_pair": []string{"x"}},
			wantSQL:  `(COALESCE("team"."tags", "team"."labels") @> ?)`,
			wantArgs: []any{[]string{"x"}},
		},
		{
			name:     "coalesce in pair",
			filters:  Descriptor{"id__or__project_id__coalesce__in__in_pair": []int{1, 2}},
			wantSQL:  `(COALESCE("team"."id", "team"."project_id") IN (?,?))`,
			wantArgs: []any{1, 2},
		},
		{
			name:     "icontains in pair matches any pattern on either column",
			filters:  Descriptor{"name__or__meta__icontains__in_pair": []string{"a"}},
			wantSQL:  `((("team"."name" ILIKE ? ESCAPE '\') OR ("team"."meta" ILIKE ? ESCAPE '\')))`,
			wantArgs: []any{"%a%", "%a%"},
		},
		{
			name:    "date pair falls back to the second column",
			filters: Descriptor{"closed__or__created__date__gt_in_pair": []string{"2024-01-01", "2023-01-01"}},
			wantSQL: `(((` +
				`"team"."closed" IS NOT NULL AND CAST("team"."closed" AS DATE) > ?) OR (` +
				`"team"."closed" IS NULL AND CAST("team"."created" AS DATE) >= ?)))`,
			wantArgs: []any{"2024-01-01", "2023-01-01"},
		},
		{
			name:    "date pair lt is strict on both columns",
			filters: Descriptor{"closed__or__created__date__lt_in_pair": []string{"2024-01-01", "2023-01-01"}},
			wantSQL: `(((` +
				`"team"."closed" IS NOT NULL AND CAST("team"."closed" AS DATE) < ?) OR (` +
				`"team"."closed" IS NULL AND CAST("team"."created" AS DATE) < ?)))`,
			wantArgs: []any{"2024-01-01", "2023-01-01"},
		},
		{
			name:    "isnull",
			filters: Descriptor{"closed__isnull": true, "created__isnull": false},
			wantSQL: `("team"."closed" IS NULL AND "team"."created" IS NOT NULL)`,
		},
		{
			name:    "jsonb_isnull",
			filters: Descriptor{"meta__jsonb_isnull": false},
			wantSQL: `("team"."meta" <> 'null')`,
		},
		{
			name:     "has_any_keys",
			filters:  Descriptor{"meta__has_any_keys": []string{"a", "b"}},
			wantSQL:  `("team"."meta" ??| ?)`,
			wantArgs: []any{[]string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(testTeam, tt.filters)
			require.NoError(t, err)
			assert.Empty(t, r.Joins)

			sql, args := render(t, r)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCompile_UnknownKeysAreDropped(t *testing.T) {
	tests := []Descriptor{
		{"nope": 1},
		{"name__nope": 1},
		{"name__or__nope": 1},
		{"id__in_pair": []int{1}},
		{"name__coalesce__in": []string{"a"}},
		{"project__nope": 1},
		{"name__date__contains": "x"},
		{"": 1},
	}

	for _, d := range tests {
		r, err := Compile(testTeam, d)
		require.NoError(t, err, "%v", d)
		assert.Nil(t, r.Where(), "%v", d)
		assert.Empty(t, r.Joins, "%v", d)
	}
}

func TestCompile_Strict(t *testing.T) {
	_, err := Compile(testTeam, Descriptor{"nope": 1}, Strict())
	require.Error(t, err)
	assert.True(t, errors.IsBadInput(err))

	_, err = Compile(testTeamData, Descriptor{"team__nope": 1}, Strict())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"team__nope"`)

	_, err = Compile(testTeam, Descriptor{"name": "a"}, Strict())
	assert.NoError(t, err)
}

func TestCompile_BadInput(t *testing.T) {
	tests := []struct {
		name    string
		filters Descriptor
	}{
		{name: "in needs a list", filters: Descriptor{"id__in": 1}},
		{name: "in rejects bytes", filters: Descriptor{"id__in": []byte("ab")}},
		{name: "isnull needs a bool", filters: Descriptor{"name__isnull": "yes"}},
		{name: "contains needs a string", filters: Descriptor{"name__contains": 1}},
		{name: "icontains in needs strings", filters: Descriptor{"name__icontains__in": []int{1}}},
		{name: "offset needs a pair", filters: Descriptor{"created__date__with_offset": "2024-01-01"}},
		{name: "offset needs integer minutes", filters: Descriptor{"created__date__with_offset": []any{1.5, "x"}}},
		{name: "date pair needs two values", filters: Descriptor{"closed__or__created__date__gt_in_pair": "x"}},
		{name: "array op on text column", filters: Descriptor{"name__include_all": []string{"a"}}},
		{name: "json op on text column", filters: Descriptor{"name__has_any_keys": []string{"a"}}},
		{name: "date on boolean column", filters: Descriptor{"active__date": "2024-01-01"}},
		{name: "array op needs a list", filters: Descriptor{"tags__overlap": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(testTeam, tt.filters)
			require.Error(t, err)
			assert.True(t, errors.IsBadInput(err), "got %v", err)
		})
	}
}

func TestCompile_Relations(t *testing.T) {
	r, err := Compile(testTeamData, Descriptor{
		"date__gte":           "2024-01-01",
		"team__name":          "a",
		"team__project__name": "p",
		"team__id__in":        []int{1, 2},
	})
	require.NoError(t, err)

	require.Len(t, r.Joins, 2)
	assert.Equal(t, `"team" AS "team" ON "team_data"."team_id" = "team"."id"`, r.Joins[0].Clause())
	assert.Equal(t, `"project" AS "team__project" ON "team"."project_id" = "team__project"."id"`, r.Joins[1].Clause())

	sql, args := render(t, r)
	assert.Equal(t,
		`("team_data"."date" >= ? AND "team"."id" IN (?,?) AND "team"."name" = ? AND "team__project"."name" = ?)`,
		sql)
	assert.Equal(t, []any{"2024-01-01", 1, 2, "a", "p"}, args)
}

func TestCompile_RelationJoinedOnce(t *testing.T) {
	r, err := Compile(testTeam, Descriptor{
		"project__name":     "p",
		"project__id__gt":   0,
		"project__name__in": []string{"p", "q"},
	})
	require.NoError(t, err)
	assert.Len(t, r.Joins, 1)
	assert.Len(t, r.Predicates, 3)
}

func TestCompile_UnresolvedRelationAddsNoJoin(t *testing.T) {
	r, err := Compile(testTeamData, Descriptor{"team__project__nope": 1, "team__nope": 2})
	require.NoError(t, err)
	assert.Empty(t, r.Joins)
	assert.Nil(t, r.Where())
}

func TestCompileAs(t *testing.T) {
	r, err := CompileAs(testTeam, "t", Descriptor{"name": "a"})
	require.NoError(t, err)

	sql, _ := render(t, r)
	assert.Equal(t, `("t"."name" = ?)`, sql)
}

func TestCompile_HasAnyKeysRendersWithDollarPlaceholders(t *testing.T) {
	r, err := Compile(testTeam, Descriptor{"meta__has_any_keys": []string{"a"}, "name": "x"})
	require.NoError(t, err)

	sql, _ := render(t, r)
	sql, err = sq.Dollar.ReplacePlaceholders(sql)
	require.NoError(t, err)
	assert.Equal(t, `("team"."meta" ?| $1 AND "team"."name" = $2)`, sql)
}
