// Package bsp implements the Batch Span Processor: a bounded in-memory
// buffer for finished trace spans with a dual-buffer hand-off, timed and
// size-triggered flushes, a finite state machine coordinating export
// against producer ingest, and bounded-latency export with
// timeout-based runner termination.
package bsp

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// Result is the outcome of OnEnd.
type Result int

const (
	// Accepted means the span was appended to the active buffer.
	Accepted Result = iota
	// Dropped means the span was rejected by policy (unsampled, disabled,
	// or backpressure) — not an error.
	Dropped
)

// ErrNoExportBuffer is returned when the active buffer does not exist,
// e.g. during a shutdown race.
var ErrNoExportBuffer = errors.New("bsp: no export buffer")

// ErrOther wraps unexpected failures from OnEnd.
var ErrOther = errors.New("bsp: unexpected error")

// Processor implements the Batch Span Processor public contract
// (spec §4.1). It is safe to call OnEnd from arbitrary producer
// goroutines at high frequency; it never blocks on export progress.
type Processor struct {
	cfg     *Config
	logger  *zap.Logger
	metrics *selfMetrics
	ctrl    *controller

	started bool
}

// NewProcessor constructs a Processor. exp may be nil if expFactory is
// supplied instead (deferred initialisation, spec §4.1 "exporter module +
// config, or none"); both may be nil, in which case the processor
// disables ingest once its buffer is first drained with no exporter.
func NewProcessor(
	cfg *Config,
	resource pcommon.Resource,
	exp exporter.Traces,
	expFactory func() (exporter.Traces, error),
	logger *zap.Logger,
	meter metric.Meter,
) (*Processor, error) {
	if cfg == nil {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Resource != (pcommon.Resource{}) {
		resource = cfg.Resource
	}

	metrics := newSelfMetrics()
	if err := metrics.register(meter, cfg.Name); err != nil {
		logger.Error("failed to register self-observability metrics", zap.Error(err))
	}

	ctrl := newController(cfg, resource, exp, expFactory, logger, metrics)

	p := &Processor{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		ctrl:    ctrl,
	}
	return p, nil
}

// Start launches the control task. Must be called exactly once before
// OnEnd is used.
func (p *Processor) Start(context.Context) error {
	if p.started {
		return nil
	}
	p.started = true
	go p.ctrl.run()
	return nil
}

// OnStart is a pass-through: no buffering happens at span start (§4.1).
func (p *Processor) OnStart(ctx context.Context, _ ptrace.Span) context.Context {
	return ctx
}

// OnEnd implements the producer-facing ingest path. Sampled=false spans
// are dropped without touching shared state; otherwise the span is
// appended to whichever buffer is currently active, re-reading the
// active pointer fresh on every call so a concurrent swap is always
// observed (§4.1 "Buffer swap ordering").
func (p *Processor) OnEnd(span ptrace.Span, resource pcommon.Resource, scope pcommon.InstrumentationScope) (result Result, err error) {
	// Any unexpected failure below (e.g. pdata misuse such as a detached
	// or zero-value span) is the one case spec §7 reserves error(other)
	// for, distinct from the policy-driven drops this method otherwise
	// returns.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in OnEnd", zap.Any("panic", r))
			p.metrics.droppedTotal.Inc()
			result, err = Dropped, fmt.Errorf("%w: %v", ErrOther, r)
		}
	}()

	if !isSampled(span) {
		p.metrics.droppedTotal.Inc()
		return Dropped, nil
	}
	if !p.ctrl.enabled.Load() {
		p.metrics.droppedTotal.Inc()
		return Dropped, nil
	}

	buf := p.ctrl.active.Load()
	if buf == nil {
		p.metrics.droppedTotal.Inc()
		return Dropped, ErrNoExportBuffer
	}

	buf.insert(span, resource, scope)
	return Accepted, nil
}

// spanFlagsTraceFlagsSampledBit is the W3C trace-flags sampled bit as
// carried in the low byte of ptrace.Span.Flags() (OTLP span_flags).
const spanFlagsTraceFlagsSampledBit = 0x01

// isSampled reports whether a span's trace flags carry the sampled bit.
// The sampling decision arrives attached to the span (spec §1 Non-goals:
// "it does not provide a sampling policy"); this only reads it.
func isSampled(span ptrace.Span) bool {
	return span.Flags()&spanFlagsTraceFlagsSampledBit != 0
}

// ForceFlush requests an immediate export. Non-blocking with respect to
// the caller beyond enqueueing the request (§4.1).
func (p *Processor) ForceFlush(context.Context) error {
	select {
	case p.ctrl.forceFlushCh <- struct{}{}:
	default:
		// already one pending; force_flush is idempotent while exporting
	}
	return nil
}

// SetExporter replaces the exporter at runtime. The previous exporter is
// shut down, ingest is re-enabled immediately, and the new exporter's
// initialisation is deferred to the control task (§4.1).
func (p *Processor) SetExporter(_ context.Context, factory func() (exporter.Traces, error)) error {
	done := make(chan struct{})
	req := setExporterRequest{factory: factory, done: done}
	select {
	case p.ctrl.setExporterCh <- req:
		<-done
		return nil
	case <-p.ctrl.ctx.Done():
		return errors.New("bsp: processor shut down")
	}
}

// Shutdown cancels pending timers and performs one final blocking export
// of the active buffer's contents (§5).
func (p *Processor) Shutdown(context.Context) error {
	if !p.started {
		return nil
	}
	reply := make(chan struct{})
	select {
	case p.ctrl.shutdownCh <- reply:
		<-reply
	case <-p.ctrl.ctx.Done():
		// already shut down
	}
	return nil
}
