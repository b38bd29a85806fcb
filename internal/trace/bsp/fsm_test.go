package bsp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// slowExporter blocks until its context is cancelled, to exercise the
// exporting-timeout path.
type slowExporter struct {
	started chan struct{}
}

func (s *slowExporter) ExportTraces(ctx context.Context, _ ptrace.Traces, _ pcommon.Resource) (exporter.Result, error) {
	close(s.started)
	<-ctx.Done()
	return exporter.ResultFailedRetryable, ctx.Err()
}

func (s *slowExporter) Shutdown(context.Context) error { return nil }

// panicExporter always panics, to exercise the runner's recover path.
type panicExporter struct{}

func (panicExporter) ExportTraces(context.Context, ptrace.Traces, pcommon.Resource) (exporter.Result, error) {
	panic("boom")
}

func (panicExporter) Shutdown(context.Context) error { return nil }

func TestExportingTimeoutReturnsToIdleAndAllowsFurtherExports(t *testing.T) {
	exp := &slowExporter{started: make(chan struct{})}

	cfg, err := NewConfig(
		WithScheduledDelay(10*time.Millisecond),
		WithCheckTableSize(time.Hour),
		WithExportingTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	p, err := NewProcessor(cfg, pcommon.NewResource(), exp, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	span := ptrace.NewSpan()
	span.SetFlags(spanFlagsTraceFlagsSampledBit)
	_, err = p.OnEnd(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())
	require.NoError(t, err)

	select {
	case <-exp.started:
	case <-time.After(time.Second):
		t.Fatal("export never started")
	}

	require.Eventually(t, func() bool {
		return p.ctrl.metrics.exportFailures.Load() > 0
	}, time.Second, 5*time.Millisecond)

	assert.True(t, p.ctrl.enabled.Load())
}

// controllableExporter blocks its first export until released, and
// records a timestamp for every export it serves.
type controllableExporter struct {
	mu     sync.Mutex
	calls  int
	starts []time.Time
	block  chan struct{}
}

func (e *controllableExporter) ExportTraces(_ context.Context, _ ptrace.Traces, _ pcommon.Resource) (exporter.Result, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.starts = append(e.starts, time.Now())
	e.mu.Unlock()
	if call == 1 {
		<-e.block
	}
	return exporter.ResultSuccess, nil
}

func (e *controllableExporter) Shutdown(context.Context) error { return nil }

func (e *controllableExporter) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestDeferredScheduledExportIsServedPromptlyOnReturnToIdle(t *testing.T) {
	exp := &controllableExporter{block: make(chan struct{})}
	delay := 30 * time.Millisecond

	cfg, err := NewConfig(
		WithScheduledDelay(delay),
		WithCheckTableSize(time.Hour),
		WithExportingTimeout(time.Second),
	)
	require.NoError(t, err)

	p, err := NewProcessor(cfg, pcommon.NewResource(), exp, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	// Keep the buffer non-empty so every scheduled tick actually starts
	// an export instead of no-op'ing on an empty buffer.
	span := ptrace.NewSpan()
	span.SetFlags(spanFlagsTraceFlagsSampledBit)
	_, err = p.OnEnd(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())
	require.NoError(t, err)

	// Wait for the first scheduled export to start and block inside it.
	require.Eventually(t, func() bool { return exp.callCount() >= 1 }, time.Second, 2*time.Millisecond)

	_, err = p.OnEnd(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())
	require.NoError(t, err)

	// Let a second scheduled tick fire while still exporting, so it is
	// deferred into pendingScheduledExport rather than served.
	time.Sleep(2 * delay)
	require.Equal(t, 1, exp.callCount())

	releasedAt := time.Now()
	close(exp.block)

	require.Eventually(t, func() bool { return exp.callCount() >= 2 }, time.Second, 2*time.Millisecond)

	exp.mu.Lock()
	secondStart := exp.starts[1]
	exp.mu.Unlock()

	// The deferred export must be served promptly once idle, not after
	// waiting out another full scheduled_delay from the release point.
	assert.Less(t, secondStart.Sub(releasedAt), delay)
}

func TestRunnerRecoversFromExporterPanic(t *testing.T) {
	cfg, err := NewConfig(
		WithScheduledDelay(10*time.Millisecond),
		WithCheckTableSize(time.Hour),
		WithExportingTimeout(time.Second),
	)
	require.NoError(t, err)

	p, err := NewProcessor(cfg, pcommon.NewResource(), panicExporter{}, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	span := ptrace.NewSpan()
	span.SetFlags(spanFlagsTraceFlagsSampledBit)
	_, err = p.OnEnd(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.ctrl.metrics.exportFailures.Load() > 0
	}, time.Second, 5*time.Millisecond)
}
