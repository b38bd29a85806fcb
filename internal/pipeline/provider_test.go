package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
	metricreader "github.com/albertored/otel-pipeline-core/internal/metric/reader"
)

type fakeTraceExporter struct {
	mu       sync.Mutex
	batches  []ptrace.Traces
	shutdown bool
}

func (f *fakeTraceExporter) ExportTraces(_ context.Context, traces ptrace.Traces, _ pcommon.Resource) (exporter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, traces)
	return exporter.ResultSuccess, nil
}

func (f *fakeTraceExporter) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

func (f *fakeTraceExporter) spanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tr := range f.batches {
		n += tr.SpanCount()
	}
	return n
}

type fakeMetricsExporterPipeline struct {
	mu       sync.Mutex
	exports  int
	shutdown bool
}

func (f *fakeMetricsExporterPipeline) ExportMetrics(_ context.Context, _ []exporter.MetricRecord, _ pcommon.Resource) (exporter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports++
	return exporter.ResultSuccess, nil
}

func (f *fakeMetricsExporterPipeline) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

func TestProviderWiresTraceProcessorAndAcceptsSpans(t *testing.T) {
	traceExp := &fakeTraceExporter{}

	p, err := New(context.Background(), WithTraceExporter(traceExp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	span := ptrace.NewSpan()
	span.SetFlags(1)
	result, err := p.TraceProcessor().OnEnd(span, p.Resource(), pcommon.NewInstrumentationScope())
	require.NoError(t, err)
	assert.Equal(t, 0, int(result)) // bsp.Accepted

	require.NoError(t, p.TraceProcessor().ForceFlush(context.Background()))
	require.Eventually(t, func() bool {
		return traceExp.spanCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProviderAddMetricReaderSharesResourceAndTables(t *testing.T) {
	p, err := New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	metricsExp := &fakeMetricsExporterPipeline{}
	cfg, err := metricreader.NewConfig(metricreader.WithName("reader"), metricreader.WithCollectInterval(0))
	require.NoError(t, err)

	r, err := p.AddMetricReader(context.Background(), cfg, metricsExp)
	require.NoError(t, err)

	meter := metricreader.NewMeter(p.Tables(), "pipeline-test", "v1")
	counter := meter.Int64Counter("requests", "{requests}", "")
	counter.Add(context.Background(), 1, pcommon.NewMap())

	require.NoError(t, r.Collect(context.Background()))
	metricsExp.mu.Lock()
	assert.Equal(t, 1, metricsExp.exports)
	metricsExp.mu.Unlock()
}

func TestProviderShutdownStopsTracesThenReaders(t *testing.T) {
	traceExp := &fakeTraceExporter{}
	metricsExp := &fakeMetricsExporterPipeline{}

	p, err := New(context.Background(), WithTraceExporter(traceExp))
	require.NoError(t, err)

	cfg, err := metricreader.NewConfig(metricreader.WithName("reader"), metricreader.WithCollectInterval(0))
	require.NoError(t, err)
	_, err = p.AddMetricReader(context.Background(), cfg, metricsExp)
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))

	traceExp.mu.Lock()
	assert.True(t, traceExp.shutdown)
	traceExp.mu.Unlock()

	metricsExp.mu.Lock()
	assert.True(t, metricsExp.shutdown)
	metricsExp.mu.Unlock()
}
