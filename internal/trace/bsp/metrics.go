package bsp

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

// selfMetrics tracks the processor's own operational counters, mirroring
// the teacher's MetricsManager (reservoirsampler/metrics.go): plain
// atomics updated on the hot path, surfaced to a Meter through
// observable-callback instruments so registration never blocks ingest.
type selfMetrics struct {
	queueSize        *atomic.Int64
	droppedTotal     *atomic.Int64
	exportedTotal    *atomic.Int64
	exportFailures   *atomic.Int64
	exportDurationMs *atomic.Int64
}

func newSelfMetrics() *selfMetrics {
	return &selfMetrics{
		queueSize:        atomic.NewInt64(0),
		droppedTotal:     atomic.NewInt64(0),
		exportedTotal:    atomic.NewInt64(0),
		exportFailures:   atomic.NewInt64(0),
		exportDurationMs: atomic.NewInt64(0),
	}
}

// register registers the observable instruments against the supplied
// Meter. A nil meter is accepted so processors constructed without a
// MeterProvider still function (self-observability is ambient, not load
// bearing for the pipeline's correctness).
func (m *selfMetrics) register(meter metric.Meter, name string) error {
	if meter == nil {
		return nil
	}

	_, err := meter.Int64ObservableGauge(
		"bsp.queue_size",
		metric.WithDescription("Number of spans currently buffered in the active buffer"),
		metric.WithUnit("{spans}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.queueSize.Load())
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register queue size gauge for %s: %w", name, err)
	}

	_, err = m.meterCounter(meter, "bsp.dropped_spans", "Number of spans dropped by policy", m.droppedTotal)
	if err != nil {
		return err
	}
	_, err = m.meterCounter(meter, "bsp.exported_spans", "Number of spans successfully handed to an exporter", m.exportedTotal)
	if err != nil {
		return err
	}
	_, err = m.meterCounter(meter, "bsp.export_failures", "Number of export attempts that failed or timed out", m.exportFailures)
	if err != nil {
		return err
	}

	_, err = meter.Int64ObservableGauge(
		"bsp.last_export_duration_ms",
		metric.WithDescription("Duration of the most recently completed export, in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.exportDurationMs.Load())
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register export duration gauge for %s: %w", name, err)
	}

	return nil
}

func (m *selfMetrics) meterCounter(meter metric.Meter, name, desc string, counter *atomic.Int64) (metric.Int64ObservableCounter, error) {
	c, err := meter.Int64ObservableCounter(
		name,
		metric.WithDescription(desc),
		metric.WithUnit("{spans}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(counter.Load())
			return nil
		}),
	)
	if err != nil {
		return c, fmt.Errorf("failed to register %s: %w", name, err)
	}
	return c, nil
}
