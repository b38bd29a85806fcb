package metricreader

import (
	"context"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
)

// Meter is the producer-facing entry point for registering instruments
// against the shared tables (spec §3 "Instrument", §6 "meter server
// registration"). A Meter has no lifecycle of its own: it is a thin
// handle over *Tables plus the scope instruments created through it are
// tagged with.
type Meter struct {
	tables *Tables
	name   string
	scope  pcommon.InstrumentationScope
}

// NewMeter returns a Meter named name, bound to tables.
func NewMeter(tables *Tables, name, version string) *Meter {
	scope := pcommon.NewInstrumentationScope()
	scope.SetName(name)
	scope.SetVersion(version)
	return &Meter{tables: tables, name: name, scope: scope}
}

// Counter is a monotonic synchronous instrument.
type Counter struct {
	inst Instrument
	bind []*ViewAggregation
	tbl  *Tables
}

// Int64Counter registers a monotonic counter instrument.
func (m *Meter) Int64Counter(name, unit, description string) *Counter {
	inst := Instrument{Kind: KindCounter, Name: name, Unit: unit, Description: description, Meter: m.name}
	return &Counter{inst: inst, bind: m.tables.BindInstrument(inst, m.scope), tbl: m.tables}
}

// Add records delta against attrs. delta should be >= 0; this is not
// enforced since the spec leaves sampling/validation to the producer.
func (c *Counter) Add(_ context.Context, delta float64, attrs pcommon.Map) {
	now := time.Now()
	for _, va := range c.bind {
		c.tbl.Entry(va, attrs, now).AddSum(delta)
	}
}

// UpDownCounter is a non-monotonic synchronous instrument.
type UpDownCounter struct {
	inst Instrument
	bind []*ViewAggregation
	tbl  *Tables
}

// Int64UpDownCounter registers a non-monotonic counter instrument.
func (m *Meter) Int64UpDownCounter(name, unit, description string) *UpDownCounter {
	inst := Instrument{Kind: KindUpDownCounter, Name: name, Unit: unit, Description: description, Meter: m.name}
	return &UpDownCounter{inst: inst, bind: m.tables.BindInstrument(inst, m.scope), tbl: m.tables}
}

// Add records delta (positive or negative) against attrs.
func (c *UpDownCounter) Add(_ context.Context, delta float64, attrs pcommon.Map) {
	now := time.Now()
	for _, va := range c.bind {
		c.tbl.Entry(va, attrs, now).AddSum(delta)
	}
}

// Histogram buckets observed values.
type Histogram struct {
	inst   Instrument
	bind   []*ViewAggregation
	bounds []float64
	tbl    *Tables
}

// Float64Histogram registers a histogram instrument with the given
// explicit bucket bounds. Pass nil to use DefaultHistogramBounds.
func (m *Meter) Float64Histogram(name, unit, description string, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DefaultHistogramBounds
	}
	inst := Instrument{Kind: KindHistogram, Name: name, Unit: unit, Description: description, Meter: m.name}
	return &Histogram{inst: inst, bind: m.tables.BindInstrument(inst, m.scope), bounds: bounds, tbl: m.tables}
}

// Record buckets value against attrs.
func (h *Histogram) Record(_ context.Context, value float64, attrs pcommon.Map) {
	now := time.Now()
	for _, va := range h.bind {
		h.tbl.Entry(va, attrs, now).RecordHistogram(value, h.bounds)
	}
}

// ObservableCallback is a producer-supplied function invoked once per
// collection cycle per reader; it reports the current value for one
// attribute set via the supplied Observe function (spec §4.2 step 1).
type ObservableCallback func(ctx context.Context, observe func(value float64, attrs pcommon.Map))

// RegisterObservableGauge registers an asynchronous gauge instrument:
// cb runs once per collection for every reader that has this instrument
// bound, writing fresh values into the shared tables immediately before
// that reader's view-aggregations are checkpointed.
func (m *Meter) RegisterObservableGauge(name, unit, description string, cb ObservableCallback) {
	inst := Instrument{Kind: KindObservableGauge, Name: name, Unit: unit, Description: description, Meter: m.name}
	bindings := m.tables.BindInstrument(inst, m.scope)
	m.registerObservable(bindings, cb, func(e *datapointEntry, v float64) { e.SetLastValue(v) })
}

// RegisterObservableCounter registers an asynchronous monotonic counter.
func (m *Meter) RegisterObservableCounter(name, unit, description string, cb ObservableCallback) {
	inst := Instrument{Kind: KindObservableCounter, Name: name, Unit: unit, Description: description, Meter: m.name}
	bindings := m.tables.BindInstrument(inst, m.scope)
	m.registerObservable(bindings, cb, func(e *datapointEntry, v float64) { e.mu.Lock(); e.sum = v; e.mu.Unlock() })
}

func (m *Meter) registerObservable(bindings []*ViewAggregation, cb ObservableCallback, write func(*datapointEntry, float64)) {
	byReader := make(map[ReaderID]*ViewAggregation, len(bindings))
	for _, va := range bindings {
		byReader[va.ReaderID] = va
	}
	for readerID, va := range byReader {
		va := va
		m.tables.RegisterCallback(readerID, func(tables *Tables, _ ReaderID) {
			now := time.Now()
			cb(context.Background(), func(value float64, attrs pcommon.Map) {
				write(tables.Entry(va, attrs, now), value)
			})
		})
	}
}
