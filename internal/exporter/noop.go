package exporter

import (
	"context"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

// noopExporter discards everything it is given. It is the concrete form
// of the spec's "none" exporter sentinel (§4.1 configuration table).
type noopExporter struct{}

// Noop returns the exporter used when no real exporter is configured.
func Noop() *noopExporter { return &noopExporter{} }

func (*noopExporter) ExportTraces(context.Context, ptrace.Traces, pcommon.Resource) (Result, error) {
	return ResultSuccess, nil
}

func (*noopExporter) ExportMetrics(context.Context, []MetricRecord, pcommon.Resource) (Result, error) {
	return ResultSuccess, nil
}

func (*noopExporter) Shutdown(context.Context) error { return nil }
