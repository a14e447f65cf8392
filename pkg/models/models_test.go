package models

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/repositories/duckdb"
)

func TestTables(t *testing.T) {
	for _, tbl := range Tables() {
		t.Run(tbl.Name(), func(t *testing.T) {
			require.NoError(t, tbl.Validate())
			if tbl != Project {
				assert.Equal(t, "project_id", tbl.TenantColumn())
				_, ok := tbl.Relation("project")
				assert.True(t, ok)
			}
		})
	}

	assert.Equal(t, []string{"project_id", "name"}, Team.ConflictTarget())
	assert.Equal(t, []string{"team_id", "date"}, TeamData.ConflictTarget())
	assert.Equal(t, []string{"team_id"}, TeamStats.ConflictTarget())
	assert.Equal(t, []string{"id"}, Imports.ConflictTarget())
}

func TestLookup(t *testing.T) {
	tbl, ok := Lookup("team_data")
	require.True(t, ok)
	assert.Same(t, TeamData, tbl)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	for _, d := range []Dialect{DialectDuckDB, DialectPostgres} {
		stmts, err := Schema(d)
		require.NoError(t, err)
		assert.NotEmpty(t, stmts)
	}

	_, err := Schema("sqlite")
	assert.Error(t, err)
}

func TestCreateTables_DuckDB(t *testing.T) {
	ctx := context.Background()
	db, err := duckdb.Open(pool.Config{DSN: ":memory:"}, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateTables(ctx, db, DialectDuckDB))
	require.NoError(t, CreateTables(ctx, db, DialectDuckDB), "creating twice must be a no-op")

	n, err := db.FetchValue(ctx, `SELECT COUNT(*) FROM project WHERE name = 'default'`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for _, tbl := range Tables() {
		t.Run(tbl.Name(), func(t *testing.T) {
			got, err := duckdb.Describe(ctx, db, tbl.Name())
			require.NoError(t, err)
			assert.Equal(t, tbl.ColumnNames(), got.ColumnNames())
			assert.Equal(t, tbl.PrimaryKeyColumns(), got.PrimaryKeyColumns())
			assert.Equal(t, tbl.ConflictTarget(), got.ConflictTarget())
		})
	}
}

func TestTeamMetric_Validate(t *testing.T) {
	day := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		metric  TeamMetric
		wantErr bool
	}{
		{name: "valid", metric: TeamMetric{Team: "core", Date: day, ReviewTime: 10, MergeTime: 0}},
		{name: "empty team", metric: TeamMetric{Date: day}, wantErr: true},
		{name: "long team", metric: TeamMetric{Team: string(make([]byte, 256)), Date: day}, wantErr: true},
		{name: "missing date", metric: TeamMetric{Team: "core"}, wantErr: true},
		{name: "negative review time", metric: TeamMetric{Team: "core", Date: day, ReviewTime: -1}, wantErr: true},
		{name: "negative merge time", metric: TeamMetric{Team: "core", Date: day, MergeTime: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.metric.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsBadInput(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTeamMetric_Values(t *testing.T) {
	m := TeamMetric{
		Team:       "core",
		Date:       time.Date(2023, 3, 14, 17, 30, 0, 0, time.FixedZone("X", 3600)),
		ReviewTime: 5,
		MergeTime:  7,
	}
	assert.Equal(t, map[string]any{
		"team_id":     42,
		"date":        time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
		"review_time": int64(5),
		"merge_time":  int64(7),
	}, m.Values(42))
}
