package metricreader

import (
	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// AggregationMapping chooses the aggregation module a reader applies to
// a newly observed instrument (spec §6 "meter server registration"),
// given the temporality already resolved for it by TemporalityMapping.
// The default mapping follows the instrument kind: counters and
// up/down-counters get Sum, histograms get Histogram with a fixed
// bucket set, gauges get LastValue — each Sum/Histogram constructed with
// the resolved temporality baked in, so the aggregation's own
// checkpoint-reset behavior always agrees with the temporality label a
// reader ends up reporting (BindInstrument resolves temporality once and
// threads it into this call; it is never computed independently on the
// aggregation side).
type AggregationMapping func(Instrument, exporter.Temporality) Aggregation

// TemporalityMapping chooses the temporality a reader reports an
// instrument's datapoints with. The default, DefaultTemporalityMapping,
// reports Cumulative for every instrument kind, per spec §4.2's
// configuration table.
type TemporalityMapping func(Instrument) exporter.Temporality

// DefaultHistogramBounds are the bucket boundaries used when no
// explicit bounds are supplied for a histogram instrument.
var DefaultHistogramBounds = []float64{0, 5, 10, 25, 50, 75, 100, 250, 500, 1000, 2500, 5000, 10000}

// DefaultAggregationMapping implements the standard kind-to-aggregation
// table, constructing each Sum/Histogram with the temporality resolved
// by the reader's TemporalityMapping.
func DefaultAggregationMapping(inst Instrument, temporality exporter.Temporality) Aggregation {
	switch inst.Kind {
	case KindCounter, KindObservableCounter:
		return NewSum(true, temporality)
	case KindUpDownCounter, KindObservableUpDownCounter:
		return NewSum(false, temporality)
	case KindHistogram:
		return NewHistogram(DefaultHistogramBounds, temporality)
	case KindObservableGauge:
		return NewLastValue()
	default:
		return NewLastValue()
	}
}

// DefaultTemporalityMapping reports Cumulative for every instrument
// kind, matching the OTLP exporter's conventional default.
func DefaultTemporalityMapping(Instrument) exporter.Temporality {
	return exporter.Cumulative
}
