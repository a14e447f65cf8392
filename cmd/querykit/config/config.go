// Package config provides configuration structures for the querykit CLI.
package config

import (
	"fmt"
	"time"

	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/repositories/postgres"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config represents the CLI configuration.
type Config struct {
	Driver        string        `yaml:"driver" json:"driver"`
	Database      string        `yaml:"database" json:"database"`
	LogLevel      string        `yaml:"log_level" json:"log_level"`
	LogFormat     string        `yaml:"log_format" json:"log_format"`
	Project       int64         `yaml:"project" json:"project"`
	ParamLimit    int           `yaml:"param_limit" json:"param_limit"`
	StrictFilters bool          `yaml:"strict_filters" json:"strict_filters"`
	QueryTimeout  time.Duration `yaml:"query_timeout" json:"query_timeout"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Connection pool configuration
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// ConnectionPoolConfig represents connection pool configuration.
type ConnectionPoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckPeriod  time.Duration `yaml:"health_check_period" json:"health_check_period"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`
}

// DefaultConfig returns a configuration for an in-memory DuckDB database.
func DefaultConfig() *Config {
	return &Config{
		Driver:       DriverDuckDB,
		Database:     ":memory:",
		LogLevel:     "info",
		LogFormat:    "json",
		ParamLimit:   repositories.DefaultParamLimit,
		QueryTimeout: 5 * time.Minute,
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		ConnectionPool: ConnectionPoolConfig{
			MaxOpenConnections: 25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    5 * time.Minute,
			HealthCheckPeriod:  time.Minute,
			ConnectionTimeout:  30 * time.Second,
			SlowQueryThreshold: time.Second,
		},
	}
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	switch c.Driver {
	case "":
		c.Driver = DriverDuckDB
	case DriverDuckDB, DriverPostgres:
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}

	if c.Database == "" {
		if c.Driver == DriverPostgres {
			return fmt.Errorf("database is required for the postgres driver")
		}
		c.Database = ":memory:"
	}

	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = "json"
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}

	if c.Project < 0 {
		return fmt.Errorf("project must not be negative")
	}

	if c.ParamLimit <= 0 {
		c.ParamLimit = repositories.DefaultParamLimit
	}

	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Minute
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	p := &c.ConnectionPool
	if p.MaxOpenConnections <= 0 {
		p.MaxOpenConnections = 25
	}
	if p.MaxIdleConnections <= 0 {
		p.MaxIdleConnections = 5
	}
	if p.MaxIdleConnections > p.MaxOpenConnections {
		p.MaxIdleConnections = p.MaxOpenConnections
	}
	if p.ConnectionTimeout <= 0 {
		p.ConnectionTimeout = 30 * time.Second
	}

	return nil
}

// PoolConfig maps the configuration onto a DuckDB pool configuration.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		DSN:                    c.Database,
		MaxOpenConnections:     c.ConnectionPool.MaxOpenConnections,
		MaxIdleConnections:     c.ConnectionPool.MaxIdleConnections,
		ConnMaxLifetime:        c.ConnectionPool.ConnMaxLifetime,
		ConnMaxIdleTime:        c.ConnectionPool.ConnMaxIdleTime,
		HealthCheckPeriod:      c.ConnectionPool.HealthCheckPeriod,
		ConnectionTimeout:      c.ConnectionPool.ConnectionTimeout,
		EnableSlowQueryLogging: c.ConnectionPool.SlowQueryThreshold > 0,
		SlowQueryThreshold:     c.ConnectionPool.SlowQueryThreshold,
	}
}

// PostgresConfig maps the configuration onto a PostgreSQL pool configuration.
func (c *Config) PostgresConfig() postgres.Config {
	return postgres.Config{
		DSN:                c.Database,
		MaxConns:           int32(c.ConnectionPool.MaxOpenConnections),
		MinConns:           int32(c.ConnectionPool.MaxIdleConnections),
		MaxConnLifetime:    c.ConnectionPool.ConnMaxLifetime,
		MaxConnIdleTime:    c.ConnectionPool.ConnMaxIdleTime,
		HealthCheckPeriod:  c.ConnectionPool.HealthCheckPeriod,
		ConnectTimeout:     c.ConnectionPool.ConnectionTimeout,
		SlowQueryThreshold: c.ConnectionPool.SlowQueryThreshold,
	}
}
