package bsp

import (
	"context"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// fsmState is one of the two control states from spec §4.1.
type fsmState int

const (
	stateIdle fsmState = iota
	stateExporting
)

type setExporterRequest struct {
	factory func() (exporter.Traces, error)
	done    chan struct{}
}

// controller is the BSP's single control task. It owns the timers, the
// runner lifetime, and the exporter handle, and serialises every state
// transition onto one goroutine — "no global lock" (§5), only this task
// ever mutates state.
type controller struct {
	cfg     *Config
	logger  *zap.Logger
	res     pcommon.Resource
	metrics *selfMetrics

	bufA, bufB *spanBuffer
	active     *atomic.Pointer[spanBuffer]
	enabled    *atomic.Bool

	exp    exporter.Traces
	initFn func() (exporter.Traces, error)

	state                  fsmState
	pendingFlush           bool
	pendingScheduledExport bool
	nextRunnerID           uint64
	runnerID               uint64
	runnerCancel           context.CancelFunc
	runnerDone             chan runnerResult

	forceFlushCh  chan struct{}
	setExporterCh chan setExporterRequest
	shutdownCh    chan chan struct{}

	ctx       context.Context
	ctxCancel context.CancelFunc
}

func newController(cfg *Config, res pcommon.Resource, exp exporter.Traces, initFn func() (exporter.Traces, error), logger *zap.Logger, metrics *selfMetrics) *controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &controller{
		cfg:     cfg,
		logger:  logger,
		res:     res,
		metrics: metrics,

		bufA: newSpanBuffer(),
		bufB: newSpanBuffer(),

		active:  atomic.NewPointer[spanBuffer](nil),
		enabled: atomic.NewBool(true),

		exp:    exp,
		initFn: initFn,

		state:      stateIdle,
		runnerDone: make(chan runnerResult, 1),

		forceFlushCh:  make(chan struct{}, 1),
		setExporterCh: make(chan setExporterRequest),
		shutdownCh:    make(chan chan struct{}),

		ctx:       ctx,
		ctxCancel: cancel,
	}
	c.active.Store(c.bufA)
	return c
}

// run is the control task's event loop. It is started in its own
// goroutine by Processor and exits after servicing a shutdown request.
func (c *controller) run() {
	scheduledTimer := time.NewTimer(c.cfg.ScheduledDelay)
	defer scheduledTimer.Stop()

	sizeCheckTicker := time.NewTicker(c.cfg.CheckTableSize)
	defer sizeCheckTicker.Stop()

	var exportingTimeoutC <-chan time.Time

	for {
		select {
		case <-scheduledTimer.C:
			if c.state == stateIdle {
				if ch := c.onScheduledExport(); ch != nil {
					exportingTimeoutC = ch
				}
			} else {
				// exporting: postpone by coalescing into
				// pendingScheduledExport, served promptly once this
				// export completes (§4.1 "defer until idle"), the
				// same way force_flush is deferred below.
				c.pendingScheduledExport = true
			}
			scheduledTimer.Reset(c.cfg.ScheduledDelay)

		case <-sizeCheckTicker.C:
			c.onSizeCheck()

		case <-c.forceFlushCh:
			if c.state == stateIdle {
				exportingTimeoutC = c.enterExporting()
			} else {
				// exporting: postpone by coalescing into pendingFlush,
				// served when this export completes.
				c.pendingFlush = true
			}

		case req := <-c.setExporterCh:
			c.onSetExporter(req)

		case res := <-c.runnerDone:
			if res.id != c.runnerID {
				continue // stale event from a superseded runner
			}
			// A runner cancelled by its own deadline before the timeout
			// timer was served is handled as that exporting timeout.
			timedOut := res.cancelled && exportingTimeoutC != nil
			exportingTimeoutC = nil
			if timedOut {
				c.onExportingTimeout()
			} else {
				c.onRunnerFinished()
			}
			if c.pendingFlush || c.pendingScheduledExport {
				c.pendingFlush = false
				c.pendingScheduledExport = false
				exportingTimeoutC = c.enterExporting()
			}

		case <-exportingTimeoutC:
			c.onExportingTimeout()
			exportingTimeoutC = nil
			if c.pendingFlush || c.pendingScheduledExport {
				c.pendingFlush = false
				c.pendingScheduledExport = false
				exportingTimeoutC = c.enterExporting()
			}

		case reply := <-c.shutdownCh:
			c.onShutdown()
			close(reply)
			return
		}
	}
}

// onScheduledExport implements the idle-state "export_spans" transition:
// with no exporter configured, attempt deferred initialisation via the
// configured factory; if still absent, clear the active buffer and
// disable ingest. The next size check re-enables ingest while the
// active buffer is below MaxQueueSize.
func (c *controller) onScheduledExport() <-chan time.Time {
	if c.exp == nil && c.initFn != nil {
		exp, err := c.initFn()
		if err != nil {
			c.logger.Error("exporter initialisation failed", zap.Error(err))
		} else {
			c.exp = exp
		}
	}
	if c.exp == nil {
		c.enabled.Store(false)
		c.active.Store(newSpanBuffer())
		return nil
	}
	return c.enterExporting()
}

// enterExporting performs the idle->exporting transition: if the active
// buffer is empty it returns immediately to idle (no-op), otherwise it
// runs any deferred exporter initialisation, swaps the active pointer,
// spawns a runner that owns the old buffer, and arms the exporting
// timeout. Returns the channel to select the timeout on, or nil if no
// export was actually started.
func (c *controller) enterExporting() <-chan time.Time {
	old := c.active.Load()
	if old.isEmpty() {
		c.state = stateIdle
		return nil
	}

	if c.exp == nil && c.initFn != nil {
		exp, err := c.initFn()
		if err != nil {
			c.logger.Error("exporter initialisation failed", zap.Error(err))
		} else {
			c.exp = exp
		}
	}

	// Swap ordering is the critical invariant from §4.1: publish the new
	// pointer, THEN re-enable ingest, so any producer observing
	// enabled=true has also observed the post-swap buffer.
	fresh := c.otherBuffer(old)
	c.active.Store(fresh)
	c.enabled.Store(true)

	c.state = stateExporting
	c.nextRunnerID++
	c.runnerID = c.nextRunnerID

	traces := old.drain()
	runCtx, cancel := context.WithTimeout(c.ctx, c.cfg.ExportingTimeout)
	c.runnerCancel = cancel
	spawnRunner(runCtx, c.runnerID, c.exp, traces, c.res, c.logger, c.metrics, c.runnerDone)

	timer := time.NewTimer(c.cfg.ExportingTimeout)
	return timer.C
}

// otherBuffer returns whichever of bufA/bufB is not cur, recreating it
// fresh. A buffer handed to a runner is never reused; the FSM always
// swaps to a newly allocated sibling at swap time.
func (c *controller) otherBuffer(cur *spanBuffer) *spanBuffer {
	if cur == c.bufA {
		c.bufB = newSpanBuffer()
		return c.bufB
	}
	c.bufA = newSpanBuffer()
	return c.bufA
}

// onRunnerFinished implements "exporting on runner-completed": recreate
// nothing (the active buffer was already fresh since swap time) and go
// back to idle.
func (c *controller) onRunnerFinished() {
	c.runnerCancel = nil
	c.state = stateIdle
}

// onExportingTimeout implements "exporting on exporting_timeout": forcibly
// cancel the runner, treat its buffer as lost, and return to idle. A
// fresh buffer is already in place (the swap already happened on entry
// to exporting), so producers can keep writing.
func (c *controller) onExportingTimeout() {
	if c.runnerCancel != nil {
		c.runnerCancel()
		c.runnerCancel = nil
	}
	c.logger.Warn("export runner exceeded exporting_timeout; terminating",
		zap.Uint64("runner_id", c.runnerID),
		zap.Duration("timeout", c.cfg.ExportingTimeout))
	c.metrics.exportFailures.Inc()
	c.state = stateIdle
}

// onSizeCheck implements "any state on size-check timer".
func (c *controller) onSizeCheck() {
	n := c.active.Load().len()
	c.metrics.queueSize.Store(int64(n))
	c.enabled.Store(n < c.cfg.MaxQueueSize)
}

// onSetExporter implements "any state on set_exporter": shut down the
// current exporter, re-enable ingest immediately, and defer
// (re)initialisation of the new exporter to the next export attempt
// (scheduled or forced). Because initFn is only ever invoked from this single control
// goroutine (in onScheduledExport/enterExporting), the race the spec
// flags between a deferred init and a concurrent timer-driven export
// (§9 Open Questions) cannot occur here: the two are serialised by
// construction.
func (c *controller) onSetExporter(req setExporterRequest) {
	old := c.exp
	c.exp = nil
	c.enabled.Store(true)

	if old != nil {
		shutdownCtx, cancel := context.WithTimeout(c.ctx, c.cfg.ExportingTimeout)
		if err := old.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("exporter shutdown failed during replacement", zap.Error(err))
		}
		cancel()
	}

	c.initFn = req.factory
	close(req.done)
}

// onShutdown performs the termination sequence: cancel pending timers
// (handled by run()'s defers), then a final blocking export of whatever
// remains in the active buffer (§4.1 "On termination").
func (c *controller) onShutdown() {
	if c.runnerCancel != nil {
		c.runnerCancel()
	}

	buf := c.active.Load()
	c.enabled.Store(false)

	if c.exp != nil && !buf.isEmpty() {
		traces := buf.drain()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ExportingTimeout)
		if _, err := c.exp.ExportTraces(ctx, traces, c.res); err != nil {
			c.logger.Error("final export on shutdown failed", zap.Error(err))
		}
		cancel()
	}

	if c.exp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ExportingTimeout)
		if err := c.exp.Shutdown(ctx); err != nil {
			c.logger.Error("exporter shutdown failed", zap.Error(err))
		}
		cancel()
	}

	c.ctxCancel()
}
