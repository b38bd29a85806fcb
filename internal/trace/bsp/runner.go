package bsp

import (
	"context"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// runnerResult is reported by an export runner when it finishes, whether
// by completing the export or by being cancelled out from under itself.
type runnerResult struct {
	id       uint64
	cancelled bool
	duration time.Duration
}

// spawnRunner hands traces off to exp for a single export attempt,
// running on its own goroutine so the control task never blocks on
// exporter I/O (§5: "The export runner blocks synchronously inside the
// exporter call"). The runner catches panics from the exporter the same
// way the spec requires exceptions to be caught: logged, never
// propagated, and always followed by a completion report so the FSM can
// advance (§4.1 Failure semantics).
func spawnRunner(
	ctx context.Context,
	id uint64,
	exp exporter.Traces,
	traces ptrace.Traces,
	resource pcommon.Resource,
	logger *zap.Logger,
	metrics *selfMetrics,
	done chan<- runnerResult,
) context.CancelFunc {
	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		start := time.Now()
		cancelled := false

		defer func() {
			if r := recover(); r != nil {
				logger.Error("exporter panicked during export",
					zap.Any("panic", r), zap.Uint64("runner_id", id))
				metrics.exportFailures.Inc()
			}
			metrics.exportDurationMs.Store(time.Since(start).Milliseconds())
			select {
			case done <- runnerResult{id: id, cancelled: cancelled, duration: time.Since(start)}:
			case <-ctx.Done():
			}
		}()

		result, err := exp.ExportTraces(runCtx, traces, resource)
		if runCtx.Err() != nil {
			cancelled = true
			return
		}
		if err != nil {
			logger.Error("export failed", zap.Error(err), zap.Uint64("runner_id", id))
			metrics.exportFailures.Inc()
			return
		}
		switch result {
		case exporter.ResultSuccess, exporter.ResultFailedNotRetryable:
			// A non-retryable failure is treated as completion for FSM
			// purposes: the spans are discarded either way (§4.1).
			metrics.exportedTotal.Add(int64(traces.SpanCount()))
		case exporter.ResultFailedRetryable:
			logger.Warn("export reported a retryable failure; spans are discarded by this processor",
				zap.Uint64("runner_id", id))
			metrics.exportFailures.Inc()
		}
	}()

	return cancel
}
