// Package main provides the querykit command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/querykit/cmd/querykit/config"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/repositories/duckdb"
	"github.com/TFMV/querykit/pkg/repositories/postgres"
	"github.com/TFMV/querykit/pkg/schema"
	"github.com/TFMV/querykit/pkg/tenant"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "querykit",
		Short: "Query and bulk-load relational tables",
		Long: `querykit compiles filter descriptors into SQL and bulk-loads rows
into DuckDB or PostgreSQL tables.

Example:
  querykit init --database ./teams.duckdb
  querykit query team --where '{"project__name": "default", "name__icontains": "core"}' --order-by -created
  querykit import metrics.json --project 1`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("driver", config.DriverDuckDB, "database driver (duckdb, postgres)")
	flags.String("database", ":memory:", "DuckDB database path or PostgreSQL DSN")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.Int64("project", 0, "project id scoping writes")
	flags.Int("param-limit", repositories.DefaultParamLimit, "maximum bind parameters per statement")
	flags.Bool("strict-filters", false, "reject unknown filter keys")
	flags.Duration("query-timeout", 5*time.Minute, "timeout for the whole command")
	flags.Bool("metrics", false, "expose Prometheus metrics while the command runs")
	flags.String("metrics-address", ":9090", "metrics server address")
	flags.Int("max-connections", 25, "maximum open connections")
	flags.Duration("slow-query-threshold", time.Second, "log queries slower than this")

	// Bind flags to viper
	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	v.SetEnvPrefix("QUERYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newQueryCmd(v),
		newCountCmd(v),
		newDescribeCmd(v),
		newInitCmd(v),
		newTeamsCmd(v),
		newImportCmd(v),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "querykit\n")
				fmt.Fprintf(out, "Version:    %s\n", version)
				fmt.Fprintf(out, "Commit:     %s\n", commit)
				fmt.Fprintf(out, "Build Date: %s\n", buildDate)
			},
		},
	)
	return rootCmd
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	// Load config file if specified
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Driver = v.GetString("driver")
	cfg.Database = v.GetString("database")
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFormat = v.GetString("log-format")
	cfg.Project = v.GetInt64("project")
	cfg.ParamLimit = v.GetInt("param-limit")
	cfg.StrictFilters = v.GetBool("strict-filters")
	cfg.QueryTimeout = v.GetDuration("query-timeout")
	cfg.Metrics.Enabled = v.GetBool("metrics")
	cfg.Metrics.Address = v.GetString("metrics-address")
	cfg.ConnectionPool.MaxOpenConnections = v.GetInt("max-connections")
	cfg.ConnectionPool.SlowQueryThreshold = v.GetDuration("slow-query-threshold")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	// Stdout carries command output.
	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	ctx := logger.Level(logLevel).With().Timestamp().Str("service", "querykit")
	if logLevel == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// app holds the resources shared by every command.
type app struct {
	cfg           *config.Config
	logger        zerolog.Logger
	db            repositories.Database
	collector     metrics.Collector
	metricsServer *metrics.MetricsServer
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, collector: metrics.NewNoOpCollector()}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.collector = metrics.NewPrometheusCollector(reg)
		a.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, reg)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := a.metricsServer.Start(); err != nil {
				logger.Debug().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	var err error
	switch cfg.Driver {
	case config.DriverPostgres:
		a.db, err = postgres.Open(ctx, cfg.PostgresConfig(), logger, postgres.WithMetrics(a.collector))
	default:
		a.db, err = duckdb.Open(cfg.PoolConfig(), logger, pool.WithMetrics(a.collector))
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database")
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}
}

func (a *app) repoOptions() []repositories.Option {
	opts := []repositories.Option{
		repositories.WithLogger(a.logger),
		repositories.WithMetrics(a.collector),
		repositories.WithParamLimit(a.cfg.ParamLimit),
	}
	if a.cfg.StrictFilters {
		opts = append(opts, repositories.WithStrictFilters())
	}
	return opts
}

// scope attaches the configured project to ctx.
func (a *app) scope(ctx context.Context) context.Context {
	if a.cfg.Project > 0 {
		return tenant.NewContext(ctx, a.cfg.Project)
	}
	return ctx
}

func (a *app) dialect() models.Dialect {
	if a.cfg.Driver == config.DriverPostgres {
		return models.DialectPostgres
	}
	return models.DialectDuckDB
}

// table resolves a built-in table, or describes it from the DuckDB catalog.
// Described tables scope writes by project_id and stamp modified when they
// have those columns.
func (a *app) table(ctx context.Context, name string) (*schema.Table, error) {
	if t, ok := models.Lookup(name); ok {
		return t, nil
	}
	if a.cfg.Driver != config.DriverDuckDB {
		return nil, fmt.Errorf("unknown table %q: catalog lookup requires the duckdb driver", name)
	}
	t, err := duckdb.Describe(ctx, a.db, name)
	if err != nil {
		return nil, err
	}
	if t.HasColumn("project_id") {
		t.Tenant("project_id")
	}
	if t.HasColumn("modified") {
		t.Modified("modified")
	}
	return t, nil
}

// withApp loads the configuration, opens the database and runs fn under the
// command timeout.
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Debug().
		Str("version", version).
		Str("driver", cfg.Driver).
		Str("database", pool.MaskDSN(cfg.Database)).
		Str("command", cmd.Name()).
		Msg("Running command")
	return fn(ctx, a)
}

// serviceLoggerAdapter adapts zerolog.Logger to services.Logger.
type serviceLoggerAdapter struct {
	logger zerolog.Logger
}

func (l *serviceLoggerAdapter) event(e *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if err, ok := keysAndValues[i+1].(error); ok && key == "error" {
			e = e.Err(err)
			continue
		}
		e = e.Interface(key, keysAndValues[i+1])
	}
	e.Msg(msg)
}

func (l *serviceLoggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	l.event(l.logger.Debug(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.event(l.logger.Info(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	l.event(l.logger.Warn(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	l.event(l.logger.Error(), msg, keysAndValues)
}
