// Package metricreader implements the Metric Reader subsystem: a set of
// shared concurrent tables (callbacks, view aggregations, metrics) that
// instruments write into, and a per-reader collection task that
// periodically or on-demand checkpoints, collects, and exports them
// (spec §4.2, §6).
package metricreader

import (
	"context"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// AddMetricReader registers a new reader against the shared tables and
// starts its control task, returning the started Reader. The tables are
// the method's receiver and the resource is supplied by the caller, so
// neither is returned.
func (t *Tables) AddMetricReader(ctx context.Context, cfg *Config, res pcommon.Resource, exp exporter.Metrics, logger *zap.Logger) (*Reader, error) {
	if cfg == nil {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AggregationMapping == nil {
		cfg.AggregationMapping = DefaultAggregationMapping
	}
	if cfg.TemporalityMapping == nil {
		cfg.TemporalityMapping = DefaultTemporalityMapping
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := newReaderID()
	t.registerReader(id, cfg)
	r := newReader(id, cfg, t, res, exp, logger)
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
