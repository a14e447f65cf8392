// Package pool provides database connection pooling for DuckDB.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
)

// Config represents pool configuration.
type Config struct {
	DSN                    string        `json:"dsn" yaml:"dsn"`
	MaxOpenConnections     int           `json:"max_open_connections" yaml:"max_open_connections"`
	MaxIdleConnections     int           `json:"max_idle_connections" yaml:"max_idle_connections"`
	ConnMaxLifetime        time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime        time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	HealthCheckPeriod      time.Duration `json:"health_check_period" yaml:"health_check_period"`
	ConnectionTimeout      time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	EnableSlowQueryLogging bool          `json:"enable_slow_query_logging" yaml:"enable_slow_query_logging"`
	SlowQueryThreshold     time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold"`
}

// ConnectionPool manages database connections.
type ConnectionPool interface {
	// Get returns a database connection.
	Get(ctx context.Context) (*sql.DB, error)
	// Stats returns pool statistics.
	Stats() PoolStats
	// HealthCheck performs a health check on the pool.
	HealthCheck(ctx context.Context) error
	// LogQuery records a finished statement, warning when it was slow.
	LogQuery(query string, duration time.Duration, err error)
	// Close closes the connection pool.
	Close() error
}

// PoolStats represents connection pool statistics.
type PoolStats struct {
	OpenConnections   int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	SlowQueries       int64         `json:"slow_queries"`
	LastHealthCheck   time.Time     `json:"last_health_check"`
	HealthCheckStatus string        `json:"health_check_status"`
}

type connectionPool struct {
	db      *sql.DB
	config  Config
	logger  zerolog.Logger
	metrics metrics.Collector

	closed atomic.Bool

	lastHealthCheck atomic.Int64 // Unix timestamp
	healthStatus    atomic.Value // string

	ctx    context.Context
	cancel context.CancelFunc

	waitCount    atomic.Int64
	waitDuration atomic.Int64
	slowQueries  atomic.Int64
}

// Option configures a pool.
type Option func(*connectionPool)

// WithMetrics reports open and in-use connection gauges to m.
func WithMetrics(m metrics.Collector) Option {
	return func(p *connectionPool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New creates a new connection pool.
func New(cfg Config, logger zerolog.Logger, opts ...Option) (ConnectionPool, error) {
	if cfg.DSN == "" {
		cfg.DSN = ":memory:" // Default to in-memory database
	}
	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = 25
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 1 * time.Second
	}

	logger.Info().
		Str("dsn", maskDSN(cfg.DSN)).
		Int("max_open", cfg.MaxOpenConnections).
		Int("max_idle", cfg.MaxIdleConnections).
		Dur("conn_lifetime", cfg.ConnMaxLifetime).
		Dur("conn_idle_time", cfg.ConnMaxIdleTime).
		Msg("Creating DuckDB connection pool")

	db, err := sql.Open("duckdb", dsnForDriver(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())

	pool := &connectionPool{
		db:      db,
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewNoOpCollector(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.healthStatus.Store("unknown")

	connCtx, connCancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer connCancel()

	if err := pool.HealthCheck(connCtx); err != nil {
		db.Close()
		cancel()
		return nil, fmt.Errorf("initial health check failed: %w", err)
	}

	if cfg.HealthCheckPeriod > 0 {
		go pool.healthCheckRoutine(ctx)
	}

	logger.Info().Msg("DuckDB connection pool created successfully")

	return pool, nil
}

// dsnForDriver maps the in-memory marker onto the driver's empty DSN, under
// which every pooled connection shares one database.
func dsnForDriver(dsn string) string {
	if dsn == ":memory:" {
		return ""
	}
	return dsn
}

// Get returns a database connection.
func (p *connectionPool) Get(ctx context.Context) (*sql.DB, error) {
	if p.closed.Load() {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "connection pool is closed")
	}

	start := time.Now()
	p.waitCount.Add(1)
	defer func() {
		p.waitDuration.Add(int64(time.Since(start)))
	}()

	stats := p.db.Stats()
	p.metrics.RecordGauge(metrics.PoolOpen, float64(stats.OpenConnections), "driver", "duckdb")
	p.metrics.RecordGauge(metrics.PoolInUse, float64(stats.InUse), "driver", "duckdb")

	return p.db, nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	dbStats := p.db.Stats()

	return PoolStats{
		OpenConnections:   dbStats.OpenConnections,
		InUse:             dbStats.InUse,
		Idle:              dbStats.Idle,
		WaitCount:         p.waitCount.Load(),
		WaitDuration:      time.Duration(p.waitDuration.Load()),
		MaxIdleClosed:     dbStats.MaxIdleClosed,
		MaxLifetimeClosed: dbStats.MaxLifetimeClosed,
		SlowQueries:       p.slowQueries.Load(),
		LastHealthCheck:   time.Unix(p.lastHealthCheck.Load(), 0),
		HealthCheckStatus: p.getHealthStatus(),
	}
}

// LogQuery logs query execution details.
func (p *connectionPool) LogQuery(query string, duration time.Duration, err error) {
	slow := duration > p.config.SlowQueryThreshold
	if slow {
		p.slowQueries.Add(1)
	}
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("query", truncateQuery(query)).
			Msg("Query execution failed")
		return
	}
	if !p.config.EnableSlowQueryLogging || !slow {
		return
	}
	p.logger.Warn().
		Bool("slow_query", true).
		Dur("duration", duration).
		Str("query", truncateQuery(query)).
		Msg("Query executed")
}

// HealthCheck performs a health check on the pool.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return pkgerrors.New(pkgerrors.CodeUnavailable, "connection pool is closed")
	}

	if err := p.db.PingContext(ctx); err != nil {
		p.updateHealthStatus("unhealthy", err.Error())
		return fmt.Errorf("health check ping failed: %w", err)
	}

	var result int
	err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil || result != 1 {
		p.updateHealthStatus("unhealthy", "query test failed")
		if err == nil {
			err = fmt.Errorf("unexpected result %d", result)
		}
		return fmt.Errorf("health check query failed: %w", err)
	}

	p.updateHealthStatus("healthy", "")
	return nil
}

// Close closes the connection pool.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	p.logger.Info().Msg("Closing DuckDB connection pool")

	p.cancel()

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// healthCheckRoutine performs periodic health checks until ctx is cancelled.
func (p *connectionPool) healthCheckRoutine(ctx context.Context) {
	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	p.logger.Info().Dur("period", p.config.HealthCheckPeriod).Msg("Health check routine started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Health check routine stopped")
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.HealthCheck(probeCtx); err != nil && !errors.Is(err, context.Canceled) && !pkgerrors.IsUnavailable(err) {
				p.logger.Error().Err(err).Msg("Periodic health check failed")
			}
			cancel()
		}
	}
}

func (p *connectionPool) updateHealthStatus(status, detail string) {
	p.lastHealthCheck.Store(time.Now().Unix())
	p.healthStatus.Store(status)

	if status == "unhealthy" && detail != "" {
		p.logger.Warn().
			Str("status", status).
			Str("detail", detail).
			Msg("Connection pool health status changed")
	}
}

func (p *connectionPool) getHealthStatus() string {
	if v := p.healthStatus.Load(); v != nil {
		return v.(string)
	}
	return "unknown"
}

// maskDSN hides passwords, tokens and secrets but keeps enough of the string
// to be recognisable in logs.
//
//   - ":memory:" or empty → returned verbatim
//   - URL-like DSNs       → redact user password and sensitive query params
//   - plain paths/files   → keep first/last 3 runes, mask the middle
func maskDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err == nil && looksLikeURL(u) {
		if ui := u.User; ui != nil {
			user := ui.Username()
			if _, hasPass := ui.Password(); hasPass {
				u.User = url.UserPassword(user, "*****")
			} else {
				u.User = url.User(user)
			}
		}

		q := u.Query()
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, "*****")
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	runes := []rune(dsn)
	if len(runes) <= 10 {
		return "***"
	}
	return string(runes[:3]) + "***" + string(runes[len(runes)-3:])
}

// MaskDSN is maskDSN for callers outside the package that log DSNs.
func MaskDSN(dsn string) string { return maskDSN(dsn) }

func looksLikeURL(u *url.URL) bool {
	return u.Scheme != "" || u.Host != "" || u.User != nil || u.RawQuery != ""
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "pass"),
		strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.HasSuffix(key, "key"):
		return true
	default:
		return false
	}
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
