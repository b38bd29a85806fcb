package exporter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// otlpExporter ships traces and metrics over an OTLP/gRPC connection using
// the collector pdata wire clients (ptraceotlp/pmetricotlp), which match
// this pipeline's pdata-based span and metric representation directly —
// unlike go.opentelemetry.io/otel's own otlptracegrpc, which is built
// against the otel-go SDK's separate in-process span type.
type otlpExporter struct {
	conn         *grpc.ClientConn
	tracesClient ptraceotlp.GRPCClient
	metricClient pmetricotlp.GRPCClient
	logger       *zap.Logger
}

// NewOTLP dials endpoint and returns an exporter that uploads traces and
// metrics over the resulting connection.
func NewOTLP(endpoint string, logger *zap.Logger) (*otlpExporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: failed to dial %s: %w", endpoint, err)
	}
	return &otlpExporter{
		conn:         conn,
		tracesClient: ptraceotlp.NewGRPCClient(conn),
		metricClient: pmetricotlp.NewGRPCClient(conn),
		logger:       logger,
	}, nil
}

func (e *otlpExporter) ExportTraces(ctx context.Context, traces ptrace.Traces, _ pcommon.Resource) (Result, error) {
	req := ptraceotlp.NewExportRequestFromTraces(traces)
	if _, err := e.tracesClient.Export(ctx, req); err != nil {
		if ctx.Err() != nil {
			return ResultFailedRetryable, err
		}
		e.logger.Error("otlp traces export failed", zap.Error(err))
		return ResultFailedRetryable, err
	}
	return ResultSuccess, nil
}

func (e *otlpExporter) ExportMetrics(ctx context.Context, records []MetricRecord, resource pcommon.Resource) (Result, error) {
	metrics := pmetric.NewMetrics()
	rm := metrics.ResourceMetrics().AppendEmpty()
	resource.CopyTo(rm.Resource())

	for _, rec := range records {
		sm := rm.ScopeMetrics().AppendEmpty()
		rec.Scope.CopyTo(sm.Scope())

		m := sm.Metrics().AppendEmpty()
		m.SetName(rec.Name)
		m.SetDescription(rec.Description)
		m.SetUnit(rec.Unit)
		appendDataPoints(m, rec)
	}

	req := pmetricotlp.NewExportRequestFromMetrics(metrics)
	if _, err := e.metricClient.Export(ctx, req); err != nil {
		e.logger.Error("otlp metrics export failed", zap.Error(err))
		return ResultFailedRetryable, err
	}
	return ResultSuccess, nil
}

func (e *otlpExporter) Shutdown(context.Context) error {
	return e.conn.Close()
}

// appendDataPoints fills m with rec's datapoints, choosing the pmetric
// datapoint shape by rec.Data's kind. Assumes a single MetricRecord
// carries datapoints of one kind, which metricreader's aggregation
// modules guarantee by construction.
func appendDataPoints(m pmetric.Metric, rec MetricRecord) {
	if len(rec.Data) == 0 {
		return
	}

	otlpTemporality := pmetric.AggregationTemporalityCumulative
	if rec.Temporality == Delta {
		otlpTemporality = pmetric.AggregationTemporalityDelta
	}

	switch rec.Data[0].Kind {
	case KindHistogram:
		hist := m.SetEmptyHistogram()
		hist.SetAggregationTemporality(otlpTemporality)
		for _, dp := range rec.Data {
			p := hist.DataPoints().AppendEmpty()
			fillDataPointBase(p, dp)
			p.SetCount(dp.Count)
			p.SetSum(dp.Sum)
			p.BucketCounts().FromRaw(dp.BucketCounts)
			p.ExplicitBounds().FromRaw(dp.ExplicitBounds)
		}
	case KindGauge:
		gauge := m.SetEmptyGauge()
		for _, dp := range rec.Data {
			p := gauge.DataPoints().AppendEmpty()
			fillDataPointBase(p, dp)
			p.SetDoubleValue(dp.Value)
		}
	default: // KindSum
		sum := m.SetEmptySum()
		sum.SetAggregationTemporality(otlpTemporality)
		sum.SetIsMonotonic(rec.Data[0].IsMonotonic)
		for _, dp := range rec.Data {
			p := sum.DataPoints().AppendEmpty()
			fillDataPointBase(p, dp)
			p.SetDoubleValue(dp.Value)
		}
	}
}

// numberDataPoint is satisfied by pmetric.NumberDataPoint and
// pmetric.HistogramDataPoint's shared base fields.
type numberDataPoint interface {
	SetStartTimestamp(pcommon.Timestamp)
	SetTimestamp(pcommon.Timestamp)
	Attributes() pcommon.Map
}

func fillDataPointBase(p numberDataPoint, dp DataPoint) {
	p.SetStartTimestamp(pcommon.NewTimestampFromTime(dp.StartTime))
	p.SetTimestamp(pcommon.NewTimestampFromTime(dp.Time))
	dp.Attributes.CopyTo(p.Attributes())
}
