package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/repositories"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverDuckDB, cfg.Driver)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, repositories.DefaultParamLimit, cfg.ParamLimit)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "empty config gets defaults",
			cfg:  Config{},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, DriverDuckDB, cfg.Driver)
				assert.Equal(t, ":memory:", cfg.Database)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "json", cfg.LogFormat)
				assert.Equal(t, repositories.DefaultParamLimit, cfg.ParamLimit)
				assert.Equal(t, 5*time.Minute, cfg.QueryTimeout)
				assert.Equal(t, 25, cfg.ConnectionPool.MaxOpenConnections)
				assert.Equal(t, 5, cfg.ConnectionPool.MaxIdleConnections)
			},
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "sqlite"},
			wantErr: "unsupported driver",
		},
		{
			name:    "postgres needs a database",
			cfg:     Config{Driver: DriverPostgres},
			wantErr: "database is required",
		},
		{
			name:    "invalid log level",
			cfg:     Config{LogLevel: "verbose"},
			wantErr: "invalid log level",
		},
		{
			name:    "invalid log format",
			cfg:     Config{LogFormat: "xml"},
			wantErr: "invalid log format",
		},
		{
			name:    "negative project",
			cfg:     Config{Project: -1},
			wantErr: "project",
		},
		{
			name: "idle connections capped by open",
			cfg: Config{ConnectionPool: ConnectionPoolConfig{
				MaxOpenConnections: 2,
				MaxIdleConnections: 10,
			}},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 2, cfg.ConnectionPool.MaxIdleConnections)
			},
		},
		{
			name: "metrics address defaulted",
			cfg:  Config{Metrics: MetricsConfig{Enabled: true}},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, ":9090", cfg.Metrics.Address)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfig_DriverConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database = "postgres://user@localhost/teams"
	cfg.ConnectionPool.SlowQueryThreshold = 0
	require.NoError(t, cfg.Validate())

	pc := cfg.PoolConfig()
	assert.Equal(t, cfg.Database, pc.DSN)
	assert.Equal(t, 25, pc.MaxOpenConnections)
	assert.False(t, pc.EnableSlowQueryLogging)

	pg := cfg.PostgresConfig()
	assert.Equal(t, int32(25), pg.MaxConns)
	assert.Equal(t, int32(5), pg.MinConns)
	assert.Equal(t, 30*time.Second, pg.ConnectTimeout)
}
