package metricreader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

type fakeMetricsExporter struct {
	mu       sync.Mutex
	exports  [][]exporter.MetricRecord
	shutdown bool
}

func (f *fakeMetricsExporter) ExportMetrics(_ context.Context, records []exporter.MetricRecord, _ pcommon.Resource) (exporter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, records)
	return exporter.ResultSuccess, nil
}

func (f *fakeMetricsExporter) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

func (f *fakeMetricsExporter) lastExport() []exporter.MetricRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.exports) == 0 {
		return nil
	}
	return f.exports[len(f.exports)-1]
}

func (f *fakeMetricsExporter) exportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exports)
}

func TestReaderOnDemandCollectExportsCounterValue(t *testing.T) {
	tables := NewTables()
	exp := &fakeMetricsExporter{}

	cfg, err := NewConfig(WithName("test"), WithCollectInterval(0))
	require.NoError(t, err)

	r, err := tables.AddMetricReader(context.Background(), cfg, pcommon.NewResource(), exp, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	meter := NewMeter(tables, "test-meter", "v1")
	counter := meter.Int64Counter("requests", "{requests}", "")

	attrs := pcommon.NewMap()
	attrs.PutStr("route", "/x")
	counter.Add(context.Background(), 3, attrs)
	counter.Add(context.Background(), 4, attrs)

	require.NoError(t, r.Collect(context.Background()))

	records := exp.lastExport()
	require.Len(t, records, 1)
	require.Len(t, records[0].Data, 1)
	assert.Equal(t, float64(7), records[0].Data[0].Value)
}

func TestReaderPeriodicCollectionRunsOnSchedule(t *testing.T) {
	tables := NewTables()
	exp := &fakeMetricsExporter{}

	cfg, err := NewConfig(WithName("periodic"), WithCollectInterval(20*time.Millisecond))
	require.NoError(t, err)

	r, err := tables.AddMetricReader(context.Background(), cfg, pcommon.NewResource(), exp, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	meter := NewMeter(tables, "periodic-meter", "v1")
	counter := meter.Int64Counter("ticks", "{ticks}", "")
	counter.Add(context.Background(), 1, pcommon.NewMap())

	require.Eventually(t, func() bool {
		return exp.exportCount() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestReaderObservableGaugeCallbackRunsEachCollection(t *testing.T) {
	tables := NewTables()
	exp := &fakeMetricsExporter{}

	cfg, err := NewConfig(WithName("gauge"), WithCollectInterval(0))
	require.NoError(t, err)

	r, err := tables.AddMetricReader(context.Background(), cfg, pcommon.NewResource(), exp, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	meter := NewMeter(tables, "gauge-meter", "v1")
	value := 10.0
	meter.RegisterObservableGauge("temperature", "C", "", func(_ context.Context, observe func(float64, pcommon.Map)) {
		observe(value, pcommon.NewMap())
	})

	require.NoError(t, r.Collect(context.Background()))
	records := exp.lastExport()
	require.Len(t, records, 1)
	assert.Equal(t, 10.0, records[0].Data[0].Value)

	value = 20.0
	require.NoError(t, r.Collect(context.Background()))
	records = exp.lastExport()
	require.Len(t, records, 1)
	assert.Equal(t, 20.0, records[0].Data[0].Value)
}

func TestReaderShutdownExportsFinallyAndShutsDownExporter(t *testing.T) {
	tables := NewTables()
	exp := &fakeMetricsExporter{}

	cfg, err := NewConfig(WithName("shutdown"), WithCollectInterval(0))
	require.NoError(t, err)

	r, err := tables.AddMetricReader(context.Background(), cfg, pcommon.NewResource(), exp, zap.NewNop())
	require.NoError(t, err)

	meter := NewMeter(tables, "shutdown-meter", "v1")
	counter := meter.Int64Counter("final", "{x}", "")
	counter.Add(context.Background(), 1, pcommon.NewMap())

	require.NoError(t, r.Shutdown(context.Background()))

	assert.GreaterOrEqual(t, exp.exportCount(), 1)
	exp.mu.Lock()
	assert.True(t, exp.shutdown)
	exp.mu.Unlock()
}

// A custom TemporalityMapping selecting Delta for counters, with no
// matching custom AggregationMapping, must still produce a Sum
// aggregation that actually resets at checkpoint — the reported
// temporality and the aggregation's reset behavior are resolved
// together in BindInstrument, not independently.
func TestReaderHonorsTemporalityMappingWithoutCustomAggregationMapping(t *testing.T) {
	tables := NewTables()
	exp := &fakeMetricsExporter{}

	cfg, err := NewConfig(
		WithName("delta"),
		WithCollectInterval(0),
		WithTemporalityMapping(func(Instrument) exporter.Temporality { return exporter.Delta }),
	)
	require.NoError(t, err)

	r, err := tables.AddMetricReader(context.Background(), cfg, pcommon.NewResource(), exp, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	meter := NewMeter(tables, "delta-meter", "v1")
	counter := meter.Int64Counter("requests", "{requests}", "")

	attrs := pcommon.NewMap()
	counter.Add(context.Background(), 5, attrs)
	require.NoError(t, r.Collect(context.Background()))

	records := exp.lastExport()
	require.Len(t, records, 1)
	require.Len(t, records[0].Data, 1)
	assert.Equal(t, float64(5), records[0].Data[0].Value)
	assert.Equal(t, exporter.Delta, records[0].Temporality)

	counter.Add(context.Background(), 3, attrs)
	require.NoError(t, r.Collect(context.Background()))

	records = exp.lastExport()
	require.Len(t, records, 1)
	require.Len(t, records[0].Data, 1)
	assert.Equal(t, float64(3), records[0].Data[0].Value, "delta temporality must reset the sum at checkpoint")
}
