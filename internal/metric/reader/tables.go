package metricreader

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/collector/pdata/pcommon"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// viewAggID is the opaque identity of one (view, reader) binding, used
// as the namespace component of a metric datapoint's key (spec §3).
type viewAggID uint64

var nextViewAggID = struct {
	mu sync.Mutex
	n  uint64
}{}

func newViewAggID() viewAggID {
	nextViewAggID.mu.Lock()
	defer nextViewAggID.mu.Unlock()
	nextViewAggID.n++
	return viewAggID(nextViewAggID.n)
}

// ViewAggregation binds an instrument to an aggregation shape for one
// reader (spec §3, glossary "View aggregation").
type ViewAggregation struct {
	id          viewAggID
	Name        string
	Description string
	Unit        string
	Scope       pcommon.InstrumentationScope
	ReaderID    ReaderID
	Instrument  Instrument
	Aggregation Aggregation
	Temporality exporter.Temporality
}

// datapointEntry holds one (view-aggregation, attribute-set) datapoint's
// live state. Producers mutate the live fields directly; only the
// owning reader's checkpoint call touches the snapshot fields, and only
// while holding mu — satisfying the "mutual exclusion required at the
// per-datapoint level" invariant (spec §3) without taking a table-wide
// lock on the hot path.
type datapointEntry struct {
	mu        sync.Mutex
	attrs     pcommon.Map
	startTime time.Time

	// sum / last-value live state
	sum  float64
	last float64

	// histogram live state
	histCounts []uint64
	histSum    float64
	histCount  uint64

	// snapshot state, populated by Checkpoint, read by Collect
	snapshotValue   float64
	snapshotStart   time.Time
	snapshotTime    time.Time
	snapshotCount   uint64
	snapshotSum     float64
	snapshotBuckets []uint64
}

// AddSum atomically adds delta to the entry's running sum.
func (e *datapointEntry) AddSum(delta float64) {
	e.mu.Lock()
	e.sum += delta
	e.mu.Unlock()
}

// SetLastValue records the most recent observed value.
func (e *datapointEntry) SetLastValue(v float64) {
	e.mu.Lock()
	e.last = v
	e.mu.Unlock()
}

// RecordHistogram buckets one observed value.
func (e *datapointEntry) RecordHistogram(v float64, bounds []float64) {
	e.mu.Lock()
	if e.histCounts == nil {
		e.histCounts = make([]uint64, len(bounds)+1)
	}
	idx := sort.SearchFloat64s(bounds, v)
	e.histCounts[idx]++
	e.histSum += v
	e.histCount++
	e.mu.Unlock()
}

// metricKey identifies one entry within the metrics table: a
// view-aggregation plus a hashed attribute set (spec §3).
type metricKey struct {
	viewAgg viewAggID
	attrs   uint64
}

// metricsTable is the shared *metrics* table (spec §2 component 6):
// keyed by (name, attribute-set) — here (view-aggregation, attribute-set)
// since a view-aggregation already carries its metric name. Concurrent
// reads are supported by the table itself; per-datapoint mutation is
// guarded by datapointEntry.mu.
type metricsTable struct {
	mu      sync.RWMutex
	entries map[metricKey]*datapointEntry
	byView  map[viewAggID][]*datapointEntry
}

func newMetricsTable() *metricsTable {
	return &metricsTable{
		entries: make(map[metricKey]*datapointEntry),
		byView:  make(map[viewAggID][]*datapointEntry),
	}
}

// GetOrCreate returns the entry for (va, attrs), creating it with
// startTime if absent.
func (t *metricsTable) GetOrCreate(va viewAggID, attrs pcommon.Map, startTime time.Time) *datapointEntry {
	key := metricKey{viewAgg: va, attrs: hashAttrs(attrs)}

	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e
	}
	e = &datapointEntry{attrs: cloneAttrs(attrs), startTime: startTime}
	t.entries[key] = e
	t.byView[va] = append(t.byView[va], e)
	return e
}

// forEachEntry visits every entry belonging to va, in registration order.
func (t *metricsTable) forEachEntry(va viewAggID, fn func(*datapointEntry)) {
	t.mu.RLock()
	entries := t.byView[va]
	t.mu.RUnlock()
	for _, e := range entries {
		fn(e)
	}
}

func hashAttrs(attrs pcommon.Map) uint64 {
	h := xxhash.New()
	keys := make([]string, 0, attrs.Len())
	attrs.Range(func(k string, _ pcommon.Value) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := attrs.Get(k)
		h.Write([]byte(k))
		h.Write([]byte(v.AsString()))
	}
	return h.Sum64()
}

func cloneAttrs(attrs pcommon.Map) pcommon.Map {
	m := pcommon.NewMap()
	attrs.CopyTo(m)
	return m
}

// CallbackFunc is an asynchronous instrument callback: it observes values
// for its instrument by writing into the metrics table through the
// per-reader view-aggregation binding (spec §6 "Observables helper").
type CallbackFunc func(tables *Tables, readerID ReaderID)

// Tables bundles the three shared tables the meter server hands back on
// registration (spec §6 "add_metric_reader"): callbacks, view
// aggregations, and metrics.
type Tables struct {
	mu        sync.RWMutex
	callbacks map[ReaderID][]CallbackFunc
	viewAggs  map[string][]*ViewAggregation // keyed by instrument identity
	allAggs   []*ViewAggregation
	metrics   *metricsTable
	readers   map[ReaderID]*Config
}

// NewTables constructs an empty set of shared tables.
func NewTables() *Tables {
	return &Tables{
		callbacks: make(map[ReaderID][]CallbackFunc),
		viewAggs:  make(map[string][]*ViewAggregation),
		metrics:   newMetricsTable(),
		readers:   make(map[ReaderID]*Config),
	}
}

// registerReader records cfg's aggregation/temporality policy so later
// instrument registrations can bind a view-aggregation for readerID
// without the caller re-supplying its policy each time.
func (t *Tables) registerReader(readerID ReaderID, cfg *Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readers[readerID] = cfg
}

// BindInstrument ensures a ViewAggregation exists for inst under every
// currently registered reader, applying each reader's own
// AggregationMapping/TemporalityMapping, and returns the bindings. Safe
// to call repeatedly; existing bindings are reused.
func (t *Tables) BindInstrument(inst Instrument, scope pcommon.InstrumentationScope) []*ViewAggregation {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing := make(map[ReaderID]*ViewAggregation, len(t.viewAggs[inst.key()]))
	for _, va := range t.viewAggs[inst.key()] {
		existing[va.ReaderID] = va
	}

	out := make([]*ViewAggregation, 0, len(t.readers))
	for readerID, cfg := range t.readers {
		if va, ok := existing[readerID]; ok {
			out = append(out, va)
			continue
		}
		// Resolve temporality first and thread it into the aggregation
		// constructor so the aggregation's own checkpoint-reset behavior
		// always agrees with the label reported on va.Temporality —
		// never computed independently from AggregationMapping.
		temporality := cfg.TemporalityMapping(inst)
		agg := cfg.AggregationMapping(inst, temporality)
		va := &ViewAggregation{
			id:          newViewAggID(),
			Name:        inst.Name,
			Description: inst.Description,
			Unit:        inst.Unit,
			Scope:       scope,
			ReaderID:    readerID,
			Instrument:  inst,
			Aggregation: agg,
			Temporality: temporality,
		}
		t.viewAggs[inst.key()] = append(t.viewAggs[inst.key()], va)
		t.allAggs = append(t.allAggs, va)
		out = append(out, va)
	}
	return out
}

// RegisterCallback adds cb under readerID, run once per collection cycle
// for that reader (spec §4.2 step 1).
func (t *Tables) RegisterCallback(readerID ReaderID, cb CallbackFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[readerID] = append(t.callbacks[readerID], cb)
}

// callbacksFor returns the callbacks registered for readerID.
func (t *Tables) callbacksFor(readerID ReaderID) []CallbackFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]CallbackFunc(nil), t.callbacks[readerID]...)
}

// AddViewAggregation binds instrument to agg for readerID and returns the
// new ViewAggregation, registering it in the shared table.
func (t *Tables) AddViewAggregation(readerID ReaderID, instrument Instrument, name, description, unit string, scope pcommon.InstrumentationScope, agg Aggregation, temporality exporter.Temporality) *ViewAggregation {
	va := &ViewAggregation{
		id:          newViewAggID(),
		Name:        name,
		Description: description,
		Unit:        unit,
		Scope:       scope,
		ReaderID:    readerID,
		Instrument:  instrument,
		Aggregation: agg,
		Temporality: temporality,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewAggs[instrument.key()] = append(t.viewAggs[instrument.key()], va)
	t.allAggs = append(t.allAggs, va)
	return va
}

// forReader returns every view-aggregation bound to readerID, in
// registration order, for the collection walk (spec §4.2 step 3).
func (t *Tables) forReader(readerID ReaderID) []*ViewAggregation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*ViewAggregation
	for _, va := range t.allAggs {
		if va.ReaderID == readerID {
			out = append(out, va)
		}
	}
	return out
}

// Entry resolves (or creates) the live datapoint entry for va under the
// given attribute set, for use by producer-side instrument calls.
func (t *Tables) Entry(va *ViewAggregation, attrs pcommon.Map, now time.Time) *datapointEntry {
	return t.metrics.GetOrCreate(va.id, attrs, now)
}
