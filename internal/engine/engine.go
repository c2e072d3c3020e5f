package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("tickagg/engine")

// Store is the persistence contract the engine depends on. Implementations
// must apply the merge rule on conflicting rows: high = max, low = min,
// close = incoming, volume = sum, open kept from the existing row.
type Store interface {
	FindBaseCandles(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error)
	FindAggregatedCandles(ctx context.Context, interval domain.Interval, symbol string, from, to time.Time) ([]domain.Candle, error)
	BatchUpsert(ctx context.Context, candles []domain.Candle) error
}

type Config struct {
	CloseDelay     time.Duration // how long a bucket stays open past its boundary
	SweepInterval  time.Duration
	FlushInterval  time.Duration
	RealtimeWindow time.Duration // trailing span served from base candles
	Workers        int
	QueueSize      int
}

func (c *Config) applyDefaults() {
	if c.CloseDelay <= 0 {
		c.CloseDelay = 100 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 50 * time.Millisecond
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 150 * time.Millisecond
	}
	if c.RealtimeWindow <= 0 {
		c.RealtimeWindow = 120 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
}

// Engine owns the open and closed candle buffers and the background tasks
// that move builders through the absent -> open -> closed -> flushed
// lifecycle.
type Engine struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu   sync.Mutex
	open map[bucketKey]*builder

	closedMu sync.Mutex
	closed   map[bucketKey]*builder

	submitMu sync.RWMutex
	stopped  atomic.Bool
	ticks    chan domain.Tick

	workerWG sync.WaitGroup
	loopWG   sync.WaitGroup
	cancel   context.CancelFunc
}

func New(store Store, cfg Config) *Engine {
	cfg.applyDefaults()
	registerMetrics(nil)

	e := &Engine{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		open:   make(map[bucketKey]*builder),
		closed: make(map[bucketKey]*builder),
		ticks:  make(chan domain.Tick, cfg.QueueSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for i := 0; i < cfg.Workers; i++ {
		e.workerWG.Add(1)
		go e.worker()
	}

	e.loopWG.Add(2)
	go e.sweepLoop(ctx)
	go e.flushLoop(ctx)

	return e
}

// SubmitTick enqueues a tick for asynchronous processing. It never blocks:
// ticks are dropped with a counter when the engine is stopped or the queue
// is saturated.
func (e *Engine) SubmitTick(t domain.Tick) {
	e.submitMu.RLock()
	defer e.submitMu.RUnlock()

	if e.stopped.Load() {
		ticksDropped.Inc()
		return
	}

	select {
	case e.ticks <- t:
	default:
		ticksDropped.Inc()
		slog.Warn("tick queue saturated, dropping tick", "symbol", t.Symbol)
	}
}

func (e *Engine) worker() {
	defer e.workerWG.Done()
	for t := range e.ticks {
		e.processTick(t)
	}
}

func (e *Engine) processTick(t domain.Tick) {
	// A fault in one tick must not take the worker down with it.
	defer func() {
		if r := recover(); r != nil {
			tickErrors.Inc()
			slog.Error("tick processing failed", "symbol", t.Symbol, "panic", r)
		}
	}()

	price := t.MidPrice()
	start := domain.BaseInterval.Align(time.UnixMilli(t.Timestamp).UTC())
	key := bucketKey{symbol: t.Symbol, start: start.Unix()}

	for {
		e.mu.Lock()
		b, ok := e.open[key]
		if !ok {
			b = newBuilder(t.Symbol, start, e.now())
			e.open[key] = b
		}
		e.mu.Unlock()

		if b.addTick(price, t.Timestamp) {
			ticksProcessed.Inc()
			return
		}
		// The builder was frozen between lookup and add; the next pass
		// creates a fresh open entry for the same key and the store's
		// merge upsert reconciles the two flushes.
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.loopWG.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweep(e.now(), false)
		case <-ctx.Done():
			return
		}
	}
}

// sweep moves matured builders from the open to the closed buffer. A bucket
// matures once it has been open for at least CloseDelay and the wall clock
// is at least one base interval past the bucket start, so the currently
// forming second is never closed early. force ignores both conditions.
func (e *Engine) sweep(now time.Time, force bool) {
	var matured []*builder
	var keys []bucketKey

	e.mu.Lock()
	for key, b := range e.open {
		if force ||
			(now.Sub(b.createdAt) >= e.cfg.CloseDelay &&
				now.Sub(b.start) >= domain.BaseInterval.Duration()) {
			delete(e.open, key)
			matured = append(matured, b)
			keys = append(keys, key)
		}
	}
	openBuckets.Set(float64(len(e.open)))
	e.mu.Unlock()

	if len(matured) == 0 {
		return
	}

	e.closedMu.Lock()
	for i, b := range matured {
		e.closed[keys[i]] = b
	}
	closedBuckets.Set(float64(len(e.closed)))
	e.closedMu.Unlock()
}

func (e *Engine) flushLoop(ctx context.Context) {
	defer e.loopWG.Done()
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.flush(ctx); err != nil {
				slog.Error("flush failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// flush snapshots the closed buffer, freezes every builder into a candle and
// issues one batch upsert. A failed batch is logged and dropped; the next
// cycle starts from a fresh snapshot.
func (e *Engine) flush(ctx context.Context) error {
	e.closedMu.Lock()
	if len(e.closed) == 0 {
		e.closedMu.Unlock()
		return nil
	}
	snapshot := e.closed
	e.closed = make(map[bucketKey]*builder, len(snapshot))
	closedBuckets.Set(0)
	e.closedMu.Unlock()

	ctx, span := tracer.Start(ctx, "Engine.flush",
		trace.WithAttributes(attribute.Int("candles", len(snapshot))))
	defer span.End()

	batch := make([]domain.Candle, 0, len(snapshot))
	for _, b := range snapshot {
		batch = append(batch, b.freeze())
	}

	started := time.Now()
	err := e.store.BatchUpsert(ctx, batch)
	flushLatency.Observe(time.Since(started).Seconds())
	flushBatches.Inc()

	if err != nil {
		flushErrors.Inc()
		span.RecordError(err)
		return fmt.Errorf("batch upsert of %d candles: %w", len(batch), err)
	}

	flushedCandles.Add(float64(len(batch)))
	slog.Debug("flushed candles", "count", len(batch), "took", time.Since(started))
	return nil
}

// Close stops tick intake, drains in-flight processing, then runs one final
// sweep and flush synchronously. Flush failures are logged and do not block
// resource release.
func (e *Engine) Close(ctx context.Context) error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	e.submitMu.Lock()
	close(e.ticks)
	e.submitMu.Unlock()
	e.workerWG.Wait()

	e.cancel()
	e.loopWG.Wait()

	e.sweep(e.now(), true)
	if err := e.flush(ctx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	return nil
}
