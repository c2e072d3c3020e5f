package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	ticksProcessed prometheus.Counter
	ticksDropped   prometheus.Counter
	tickErrors     prometheus.Counter
	flushBatches   prometheus.Counter
	flushErrors    prometheus.Counter
	flushedCandles prometheus.Counter
	flushLatency   prometheus.Histogram
	openBuckets    prometheus.Gauge
	closedBuckets  prometheus.Gauge
)

// registerMetrics initializes and registers all engine metrics exactly once.
// Duplicate registrations on the default registerer are ignored.
func registerMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}

		ticksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "ticks_processed_total",
			Help: "Total number of ticks folded into candle builders",
		})
		ticksDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "ticks_dropped_total",
			Help: "Total number of ticks dropped at submission",
		})
		tickErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "tick_errors_total",
			Help: "Total number of failures while processing a single tick",
		})
		flushBatches = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "flush_batches_total",
			Help: "Total number of batch upserts issued to the candle store",
		})
		flushErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "flush_errors_total",
			Help: "Total number of failed batch upserts (batches are dropped)",
		})
		flushedCandles = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "flushed_candles_total",
			Help: "Total number of candles handed to the candle store",
		})
		flushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "flush_latency_seconds",
			Help:    "Latency of candle store batch upserts",
			Buckets: prometheus.DefBuckets,
		})
		openBuckets = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "open_buckets",
			Help: "Candle builders currently accepting ticks",
		})
		closedBuckets = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tickagg", Subsystem: "engine", Name: "closed_buckets",
			Help: "Candle builders awaiting the next flush",
		})

		collectors := []prometheus.Collector{
			ticksProcessed, ticksDropped, tickErrors,
			flushBatches, flushErrors, flushedCandles, flushLatency,
			openBuckets, closedBuckets,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
