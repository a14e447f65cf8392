// Package metrics provides statement and bulk-write instrumentation.
package metrics

import (
	"time"
)

// Metric names recorded by the repository layer.
const (
	StatementsTotal   = "querykit_statements_total"
	StatementDuration = "querykit_statement_duration_seconds"
	StatementErrors   = "querykit_statement_errors_total"
	ConflictsTotal    = "querykit_conflicts_total"
	BulkBatches       = "querykit_bulk_batches"
	BulkRows          = "querykit_bulk_rows"
	PoolOpen          = "querykit_pool_open_connections"
	PoolInUse         = "querykit_pool_in_use_connections"
	ImportsTotal      = "querykit_imports_total"
	ImportDuration    = "querykit_import_duration_seconds"
	ImportRows        = "querykit_import_rows"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncrementCounter increments a counter metric.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram records a value in a histogram metric.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge records a gauge metric value.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer starts a timer for measuring duration.
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	// Stop stops the timer and returns the duration in seconds.
	Stop() float64
}

// NoOpCollector is a no-op implementation of Collector.
type NoOpCollector struct{}

// NewNoOpCollector creates a new no-op collector.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

// IncrementCounter does nothing.
func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

// RecordHistogram does nothing.
func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

// RecordGauge does nothing.
func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

// StartTimer returns a timer that only measures.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &stopwatch{start: time.Now()}
}

type stopwatch struct {
	start time.Time
}

func (t *stopwatch) Stop() float64 {
	return time.Since(t.start).Seconds()
}
