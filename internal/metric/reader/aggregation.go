package metricreader

import (
	"time"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// Aggregation is the per-view-aggregation contract an instrument-kind is
// bound to (spec §6 "Aggregation modules"). Checkpoint snapshots and, for
// delta temporality, resets in-table state; Collect turns the snapshot
// into the exporter-facing datapoint sequence.
type Aggregation interface {
	// Checkpoint produces the reportable snapshot and, for delta
	// temporality, resets in-table state.
	Checkpoint(tables *Tables, va *ViewAggregation, collectionStart time.Time)

	// Collect obtains the datapoint sequence from the most recent
	// checkpoint.
	Collect(tables *Tables, va *ViewAggregation, collectionStart time.Time) []exporter.DataPoint

	// Kind identifies the exporter-facing datapoint shape this
	// aggregation produces.
	Kind() exporter.DataPointKind
}

// dropAggregation is the sentinel aggregation that short-circuits
// collection: the reader skips any view-aggregation bound to it without
// calling Checkpoint or Collect (spec §4.2 step 3).
type dropAggregation struct{}

// Drop is the canonical drop-aggregation instance.
var Drop Aggregation = dropAggregation{}

func (dropAggregation) Checkpoint(*Tables, *ViewAggregation, time.Time) {}
func (dropAggregation) Collect(*Tables, *ViewAggregation, time.Time) []exporter.DataPoint {
	return nil
}
func (dropAggregation) Kind() exporter.DataPointKind { return exporter.KindSum }

// IsDrop reports whether agg is the drop sentinel.
func IsDrop(agg Aggregation) bool {
	_, ok := agg.(dropAggregation)
	return ok
}

// sumAggregation accumulates a running total per attribute set.
// Cumulative: never reset. Delta: reset to zero at every checkpoint.
type sumAggregation struct {
	isMonotonic bool
	temporality exporter.Temporality
}

// NewSum returns a Sum aggregation module.
func NewSum(isMonotonic bool, temporality exporter.Temporality) Aggregation {
	return &sumAggregation{isMonotonic: isMonotonic, temporality: temporality}
}

func (a *sumAggregation) Kind() exporter.DataPointKind { return exporter.KindSum }

func (a *sumAggregation) Checkpoint(tables *Tables, va *ViewAggregation, collectionStart time.Time) {
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		e.snapshotValue = e.sum
		e.snapshotStart = e.startTime
		e.snapshotTime = collectionStart
		if a.temporality == exporter.Delta {
			e.sum = 0
			e.startTime = collectionStart
		}
		e.mu.Unlock()
	})
}

func (a *sumAggregation) Collect(tables *Tables, va *ViewAggregation, _ time.Time) []exporter.DataPoint {
	var out []exporter.DataPoint
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		attrs := cloneAttrs(e.attrs)
		dp := exporter.DataPoint{
			Kind:        exporter.KindSum,
			Attributes:  attrs,
			StartTime:   e.snapshotStart,
			Time:        e.snapshotTime,
			IsMonotonic: a.isMonotonic,
			Value:       e.snapshotValue,
		}
		e.mu.Unlock()
		out = append(out, dp)
	})
	return out
}

// lastValueAggregation reports the most recent observation per attribute
// set. Gauges are inherently "delta-shaped" in the sense that there is
// nothing to reset; this module holds no temporality of its own (the
// ViewAggregation carries the reported one).
type lastValueAggregation struct{}

// NewLastValue returns a LastValue aggregation module, used for gauges.
func NewLastValue() Aggregation { return &lastValueAggregation{} }

func (a *lastValueAggregation) Kind() exporter.DataPointKind { return exporter.KindGauge }

func (a *lastValueAggregation) Checkpoint(tables *Tables, va *ViewAggregation, collectionStart time.Time) {
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		e.snapshotValue = e.last
		e.snapshotStart = e.startTime
		e.snapshotTime = collectionStart
		e.mu.Unlock()
	})
}

func (a *lastValueAggregation) Collect(tables *Tables, va *ViewAggregation, _ time.Time) []exporter.DataPoint {
	var out []exporter.DataPoint
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		dp := exporter.DataPoint{
			Kind:       exporter.KindGauge,
			Attributes: cloneAttrs(e.attrs),
			StartTime:  e.snapshotStart,
			Time:       e.snapshotTime,
			Value:      e.snapshotValue,
		}
		e.mu.Unlock()
		out = append(out, dp)
	})
	return out
}

// histogramAggregation buckets observed values per attribute set.
type histogramAggregation struct {
	bounds      []float64
	temporality exporter.Temporality
}

// NewHistogram returns a Histogram aggregation module with the given
// explicit bucket boundaries.
func NewHistogram(bounds []float64, temporality exporter.Temporality) Aggregation {
	return &histogramAggregation{bounds: bounds, temporality: temporality}
}

func (a *histogramAggregation) Kind() exporter.DataPointKind { return exporter.KindHistogram }

func (a *histogramAggregation) Checkpoint(tables *Tables, va *ViewAggregation, collectionStart time.Time) {
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		e.snapshotCount = e.histCount
		e.snapshotSum = e.histSum
		e.snapshotBuckets = append([]uint64(nil), e.histCounts...)
		e.snapshotStart = e.startTime
		e.snapshotTime = collectionStart
		if a.temporality == exporter.Delta {
			e.histCount = 0
			e.histSum = 0
			for i := range e.histCounts {
				e.histCounts[i] = 0
			}
			e.startTime = collectionStart
		}
		e.mu.Unlock()
	})
}

func (a *histogramAggregation) Collect(tables *Tables, va *ViewAggregation, _ time.Time) []exporter.DataPoint {
	var out []exporter.DataPoint
	tables.metrics.forEachEntry(va.id, func(e *datapointEntry) {
		e.mu.Lock()
		dp := exporter.DataPoint{
			Kind:           exporter.KindHistogram,
			Attributes:     cloneAttrs(e.attrs),
			StartTime:      e.snapshotStart,
			Time:           e.snapshotTime,
			Count:          e.snapshotCount,
			Sum:            e.snapshotSum,
			BucketCounts:   e.snapshotBuckets,
			ExplicitBounds: a.bounds,
		}
		e.mu.Unlock()
		out = append(out, dp)
	})
	return out
}
