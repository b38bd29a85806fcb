package metricreader

import (
	"context"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

// ReaderID identifies one registered MetricReader within the shared
// tables (spec §6 "add_metric_reader").
type ReaderID uint64

var nextReaderID atomic.Uint64

func newReaderID() ReaderID {
	return ReaderID(nextReaderID.Inc())
}

// collectRequest is a pull-collection event: Collect blocks on reply.
type collectRequest struct {
	reply chan error
}

// Reader implements the per-reader collection task (spec §4.2): it owns
// a periodic timer (when configured), runs registered callbacks, walks
// its bound view-aggregations, checkpoints and collects each one, and
// hands the resulting batch to its exporter.
type Reader struct {
	id     ReaderID
	cfg    *Config
	tables *Tables
	res    pcommon.Resource
	exp    exporter.Metrics
	logger *zap.Logger

	collectCh  chan collectRequest
	shutdownCh chan chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	started bool
}

// newReader constructs a Reader bound to tables under id. Use
// Tables.AddMetricReader rather than calling this directly.
func newReader(id ReaderID, cfg *Config, tables *Tables, res pcommon.Resource, exp exporter.Metrics, logger *zap.Logger) *Reader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reader{
		id:         id,
		cfg:        cfg,
		tables:     tables,
		res:        res,
		exp:        exp,
		logger:     logger,
		collectCh:  make(chan collectRequest),
		shutdownCh: make(chan chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the reader's identity within the shared tables.
func (r *Reader) ID() ReaderID { return r.id }

// Start launches the reader's control task. A reader with
// CollectInterval == 0 still launches the task (so Collect and Shutdown
// work uniformly) but never self-schedules.
func (r *Reader) Start(context.Context) error {
	if r.started {
		return nil
	}
	r.started = true
	go r.run()
	return nil
}

func (r *Reader) run() {
	var tickC <-chan time.Time
	if r.cfg.CollectInterval > 0 {
		ticker := time.NewTicker(r.cfg.CollectInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-tickC:
			if err := r.collect(r.ctx); err != nil {
				r.logger.Warn("scheduled collection failed", zap.String("reader", r.cfg.Name), zap.Error(err))
			}

		case req := <-r.collectCh:
			req.reply <- r.collect(r.ctx)

		case reply := <-r.shutdownCh:
			r.onShutdown()
			close(reply)
			return
		}
	}
}

// Collect triggers an on-demand collection and blocks until it
// completes or ctx is cancelled (spec §4.2 "periodic or on-demand").
func (r *Reader) Collect(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.collectCh <- collectRequest{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the reader's control task after a final collection.
func (r *Reader) Shutdown(context.Context) error {
	if !r.started {
		return nil
	}
	reply := make(chan struct{})
	select {
	case r.shutdownCh <- reply:
		<-reply
	case <-r.ctx.Done():
		// already shut down
	}
	return nil
}

// collect implements the collection algorithm (spec §4.2):
//  1. run every callback registered for this reader id, letting
//     observable instruments write fresh values into the shared tables;
//  2. walk every view-aggregation bound to this reader, skipping ones
//     bound to the drop aggregation;
//  3. checkpoint then collect each one, building one MetricRecord per
//     view-aggregation;
//  4. hand the batch to the reader's exporter, bounded by CollectTimeout.
func (r *Reader) collect(ctx context.Context) error {
	collectCtx, cancel := context.WithTimeout(ctx, r.cfg.CollectTimeout)
	defer cancel()

	for _, cb := range r.tables.callbacksFor(r.id) {
		cb(r.tables, r.id)
	}

	collectionStart := time.Now()
	vas := r.tables.forReader(r.id)

	var records []exporter.MetricRecord
	for _, va := range vas {
		if IsDrop(va.Aggregation) {
			continue
		}
		va.Aggregation.Checkpoint(r.tables, va, collectionStart)
		data := va.Aggregation.Collect(r.tables, va, collectionStart)
		if len(data) == 0 {
			continue
		}
		records = append(records, exporter.MetricRecord{
			Scope:       va.Scope,
			Name:        va.Name,
			Description: va.Description,
			Unit:        va.Unit,
			Temporality: va.Temporality,
			Data:        data,
		})
	}

	if r.exp == nil || len(records) == 0 {
		return nil
	}

	_, err := r.exp.ExportMetrics(collectCtx, records, r.res)
	return err
}

func (r *Reader) onShutdown() {
	if r.exp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CollectTimeout)
		if err := r.collect(ctx); err != nil {
			r.logger.Warn("final collection on shutdown failed", zap.String("reader", r.cfg.Name), zap.Error(err))
		}
		if err := r.exp.Shutdown(ctx); err != nil {
			r.logger.Warn("exporter shutdown failed", zap.String("reader", r.cfg.Name), zap.Error(err))
		}
		cancel()
	}
	r.cancel()
}
