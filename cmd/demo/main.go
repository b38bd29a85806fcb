// Command demo exercises the pipeline core end to end: it starts a
// Provider with a stdout trace exporter and one metric reader, emits a
// handful of spans and counter increments, force-flushes, then shuts
// down cleanly. It exists to give the exporter boundary, the batch span
// processor, and the metric reader a concrete caller, the way the
// original's examples/basic/client.go exercises its own SDK pipeline.
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
	metricreader "github.com/albertored/otel-pipeline-core/internal/metric/reader"
	"github.com/albertored/otel-pipeline-core/internal/pipeline"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	provider, err := pipeline.New(ctx,
		pipeline.WithLogger(logger),
		pipeline.WithTraceExporter(exporter.NewStdout(logger)),
	)
	if err != nil {
		logger.Fatal("failed to start provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	readerCfg, err := metricreader.NewConfig(
		metricreader.WithName("demo-reader"),
		metricreader.WithCollectInterval(2*time.Second),
	)
	if err != nil {
		logger.Fatal("failed to build reader config", zap.Error(err))
	}
	if _, err := provider.AddMetricReader(ctx, readerCfg, exporter.NewStdout(logger)); err != nil {
		logger.Fatal("failed to add metric reader", zap.Error(err))
	}

	meter := metricreader.NewMeter(provider.Tables(), "demo", "v1")
	requests := meter.Int64Counter("demo.requests", "{requests}", "Number of simulated requests handled")

	scope := pcommon.NewInstrumentationScope()
	scope.SetName("demo")
	scope.SetVersion("v1")

	for i := 0; i < 10; i++ {
		span := ptrace.NewSpan()
		span.SetName("demo-span")
		span.SetFlags(1) // sampled
		span.SetStartTimestamp(pcommon.NewTimestampFromTime(time.Now()))
		span.SetEndTimestamp(pcommon.NewTimestampFromTime(time.Now()))

		if _, err := provider.TraceProcessor().OnEnd(span, provider.Resource(), scope); err != nil {
			logger.Warn("span rejected", zap.Error(err))
		}

		attrs := pcommon.NewMap()
		attrs.PutStr("route", "/demo")
		requests.Add(ctx, 1, attrs)

		time.Sleep(100 * time.Millisecond)
	}

	if err := provider.TraceProcessor().ForceFlush(ctx); err != nil {
		logger.Warn("force flush failed", zap.Error(err))
	}

	time.Sleep(500 * time.Millisecond)
	logger.Info("demo run complete")
}
