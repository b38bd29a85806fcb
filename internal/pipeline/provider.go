// Package pipeline wires the batch span processor and metric reader
// subsystems into one owning object whose lifetime governs both:
// shutdown is driven by closing the Provider, mirroring the "Lifetime
// of BSP and MR tasks is tied to an owning provider object" re-
// architecture guidance for the original's supervision tree.
package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
	metricreader "github.com/albertored/otel-pipeline-core/internal/metric/reader"
	"github.com/albertored/otel-pipeline-core/internal/resource"
	"github.com/albertored/otel-pipeline-core/internal/trace/bsp"
)

// Provider owns one trace pipeline and a set of metric readers, all
// sharing the same detected resource. It is the only long-lived handle
// an application needs: construct once, register readers, call
// Shutdown once at process exit.
type Provider struct {
	logger   *zap.Logger
	resource pcommon.Resource

	traces  *bsp.Processor
	tables  *metricreader.Tables
	readers []*metricreader.Reader
}

// Option configures a Provider at construction time.
type Option func(*providerConfig)

type providerConfig struct {
	logger   *zap.Logger
	detector resource.Detector
	bspCfg   *bsp.Config
	traceExp exporter.Traces
}

// WithLogger sets the logger threaded through both subsystems.
func WithLogger(logger *zap.Logger) Option {
	return func(c *providerConfig) { c.logger = logger }
}

// WithResourceDetector overrides the default process resource detector.
func WithResourceDetector(d resource.Detector) Option {
	return func(c *providerConfig) { c.detector = d }
}

// WithBSPConfig overrides the batch span processor's default Config.
func WithBSPConfig(cfg *bsp.Config) Option {
	return func(c *providerConfig) { c.bspCfg = cfg }
}

// WithTraceExporter sets the batch span processor's initial exporter.
func WithTraceExporter(exp exporter.Traces) Option {
	return func(c *providerConfig) { c.traceExp = exp }
}

// New constructs and starts a Provider: detects the process resource,
// starts the batch span processor, and initializes an empty metric
// reader table (readers are attached with AddMetricReader).
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &providerConfig{
		logger:   zap.NewNop(),
		detector: resource.Default(),
		traceExp: exporter.Noop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	res, err := cfg.detector.Detect()
	if err != nil {
		return nil, fmt.Errorf("pipeline: detecting resource: %w", err)
	}

	traceProc, err := bsp.NewProcessor(cfg.bspCfg, res, cfg.traceExp, nil, cfg.logger, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: constructing batch span processor: %w", err)
	}
	if err := traceProc.Start(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: starting batch span processor: %w", err)
	}

	return &Provider{
		logger:   cfg.logger,
		resource: res,
		traces:   traceProc,
		tables:   metricreader.NewTables(),
	}, nil
}

// Resource returns the process resource attached to everything this
// Provider exports.
func (p *Provider) Resource() pcommon.Resource { return p.resource }

// TraceProcessor returns the batch span processor, for OnEnd/ForceFlush
// calls from the owning trace pipeline.
func (p *Provider) TraceProcessor() *bsp.Processor { return p.traces }

// Tables returns the shared metric tables, for instrument registration
// through metricreader.NewMeter.
func (p *Provider) Tables() *metricreader.Tables { return p.tables }

// AddMetricReader registers and starts a new metric reader against the
// Provider's shared tables and resource.
func (p *Provider) AddMetricReader(ctx context.Context, cfg *metricreader.Config, exp exporter.Metrics) (*metricreader.Reader, error) {
	r, err := p.tables.AddMetricReader(ctx, cfg, p.resource, exp, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: adding metric reader: %w", err)
	}
	p.readers = append(p.readers, r)
	return r, nil
}

// Shutdown drains and stops the trace pipeline, then every registered
// metric reader, in that order. Shutdown is idempotent with respect to
// each subsystem's own idempotent Shutdown.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.traces.Shutdown(ctx); err != nil {
		return fmt.Errorf("pipeline: shutting down batch span processor: %w", err)
	}
	for _, r := range p.readers {
		if err := r.Shutdown(ctx); err != nil {
			return fmt.Errorf("pipeline: shutting down metric reader %d: %w", r.ID(), err)
		}
	}
	return nil
}
