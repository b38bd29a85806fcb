package exporter

import (
	"context"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// stdoutExporter writes a one-line summary per trace export, and one
// line per metric record, to its logger.
// Grounded on the teacher's pervasive zap.Logger threading (e.g.
// reservoirsampler/processor.go's "Exporting reservoir" log line).
type stdoutExporter struct {
	logger   *zap.Logger
	shutdown *atomic.Bool
}

// NewStdout builds a stdout exporter variant that logs through logger.
func NewStdout(logger *zap.Logger) *stdoutExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stdoutExporter{logger: logger, shutdown: atomic.NewBool(false)}
}

func (e *stdoutExporter) ExportTraces(_ context.Context, traces ptrace.Traces, resource pcommon.Resource) (Result, error) {
	if e.shutdown.Load() {
		return ResultFailedNotRetryable, ErrShutdown
	}
	e.logger.Info("exporting spans",
		zap.Int("span_count", traces.SpanCount()),
		zap.Int("resource_span_count", traces.ResourceSpans().Len()),
		zap.String("service.name", serviceName(resource)),
	)
	return ResultSuccess, nil
}

func (e *stdoutExporter) ExportMetrics(_ context.Context, metrics []MetricRecord, resource pcommon.Resource) (Result, error) {
	if e.shutdown.Load() {
		return ResultFailedNotRetryable, ErrShutdown
	}
	for _, m := range metrics {
		e.logger.Info("exporting metric",
			zap.String("name", m.Name),
			zap.String("unit", m.Unit),
			zap.String("service.name", serviceName(resource)),
		)
	}
	return ResultSuccess, nil
}

func (e *stdoutExporter) Shutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}

func serviceName(resource pcommon.Resource) string {
	if v, ok := resource.Attributes().Get("service.name"); ok {
		return v.AsString()
	}
	return ""
}
