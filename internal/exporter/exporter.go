// Package exporter defines the thin polymorphic boundary the pipeline
// core exports telemetry through. Implementations are variants (OTLP,
// stdout, noop, …); exceptions from implementations never propagate to
// callers, per spec §4.3 and §7.
package exporter

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

// Result is the outcome of a single export attempt.
type Result int

const (
	// ResultSuccess indicates the export completed.
	ResultSuccess Result = iota
	// ResultFailedRetryable indicates a transient failure; the caller may retry.
	ResultFailedRetryable
	// ResultFailedNotRetryable indicates a permanent failure; the spans/metrics are discarded.
	ResultFailedNotRetryable
)

// ErrShutdown is returned by an exporter that has already been shut down.
var ErrShutdown = errors.New("exporter: already shut down")

// Traces exports finished spans. Implementations must not block longer
// than the context's deadline and must not panic; the BSP runner recovers
// a panic from ExportTraces, logs it and counts it as an export failure,
// and the batch is discarded.
type Traces interface {
	// ExportTraces sends one batch of traces, grouped by instrumentation
	// scope, tagged with the process resource.
	ExportTraces(ctx context.Context, traces ptrace.Traces, resource pcommon.Resource) (Result, error)

	// Shutdown releases any resources held by the exporter.
	Shutdown(ctx context.Context) error
}

// Metrics exports a batch of collected metric records.
type Metrics interface {
	// ExportMetrics sends one collection's worth of metric records.
	ExportMetrics(ctx context.Context, metrics []MetricRecord, resource pcommon.Resource) (Result, error)

	// Shutdown releases any resources held by the exporter.
	Shutdown(ctx context.Context) error
}

// Temporality distinguishes cumulative-since-start reporting from
// per-interval reporting (glossary: Temporality).
type Temporality int

const (
	// Cumulative datapoints are never reset between collections.
	Cumulative Temporality = iota
	// Delta datapoints are reset to zero at each checkpoint.
	Delta
)

// DataPointKind tags which shape a DataPoint's value fields hold.
type DataPointKind int

const (
	// KindSum is a monotonic or non-monotonic running total.
	KindSum DataPointKind = iota
	// KindGauge is a last-value snapshot.
	KindGauge
	// KindHistogram is a bucketed distribution.
	KindHistogram
)

// DataPoint is one attribute-set's reported value for a metric stream.
type DataPoint struct {
	Kind        DataPointKind
	Attributes  pcommon.Map
	StartTime   time.Time
	Time        time.Time
	IsMonotonic bool

	// Value holds the sum (KindSum) or last value (KindGauge).
	Value float64

	// Histogram fields, populated only when Kind == KindHistogram.
	Count          uint64
	Sum            float64
	BucketCounts   []uint64
	ExplicitBounds []float64
}

// MetricRecord is the exporter-facing shape of one collected metric
// stream: a scope-qualified name plus its datapoint sequence. Defined
// here (rather than imported from metricreader) so the exporter package
// has no dependency on the reader's internal aggregation machinery.
type MetricRecord struct {
	Scope       pcommon.InstrumentationScope
	Name        string
	Description string
	Unit        string
	Temporality Temporality
	Data        []DataPoint
}
