package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Query returns candles for [from, to] inclusive, ascending by time with no
// duplicate timestamps. The planner picks a data source per request:
//
//   - base interval: raw base candles straight from the store;
//   - range entirely before the realtime threshold: pre-aggregated rows;
//   - range entirely inside the realtime window: base candles aggregated
//     in memory, since pre-aggregated rows may not cover it yet;
//   - straddling range: both, with the realtime series winning on any
//     colliding bucket timestamp.
func (e *Engine) Query(ctx context.Context, symbol, intervalLabel string, from, to time.Time) ([]domain.Candle, error) {
	interval, err := domain.ParseInterval(intervalLabel)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Engine.Query",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("interval", intervalLabel),
		))
	defer span.End()

	if interval == domain.BaseInterval {
		return e.store.FindBaseCandles(ctx, symbol, from, to)
	}

	threshold := e.now().Add(-e.cfg.RealtimeWindow)

	if to.Before(threshold) {
		return e.store.FindAggregatedCandles(ctx, interval, symbol, from, to)
	}

	if !from.Before(threshold) {
		return e.aggregateFromBase(ctx, interval, symbol, from, to)
	}

	historical, err := e.store.FindAggregatedCandles(ctx, interval, symbol, from, threshold)
	if err != nil {
		return nil, err
	}
	realtime, err := e.aggregateFromBase(ctx, interval, symbol, threshold, to)
	if err != nil {
		return nil, err
	}

	return mergeSeries(historical, realtime), nil
}

func (e *Engine) aggregateFromBase(ctx context.Context, interval domain.Interval, symbol string, from, to time.Time) ([]domain.Candle, error) {
	base, err := e.store.FindBaseCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("base candles for in-memory aggregation: %w", err)
	}
	return domain.Aggregate(base, interval), nil
}

// mergeSeries combines two candle series keyed by bucket time. Realtime
// entries overwrite historical ones on collision; the result is ascending
// with duplicates removed.
func mergeSeries(historical, realtime []domain.Candle) []domain.Candle {
	merged := make(map[int64]domain.Candle, len(historical)+len(realtime))
	for _, c := range historical {
		merged[c.Time.Unix()] = c
	}
	for _, c := range realtime {
		merged[c.Time.Unix()] = c
	}

	keys := make([]int64, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]domain.Candle, 0, len(keys))
	for _, key := range keys {
		out = append(out, merged[key])
	}
	return out
}
