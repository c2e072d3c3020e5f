package engine

import (
	"context"
	"testing"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedCandle(symbol string, start int64, price float64, volume int64) domain.Candle {
	return domain.Candle{
		Symbol: symbol,
		Time:   time.Unix(start, 0).UTC(),
		Open:   price,
		High:   price + 1,
		Low:    price - 1,
		Close:  price,
		Volume: volume,
	}
}

func TestQueryUnknownInterval(t *testing.T) {
	e, _ := newTestEngine(t, &fakeStore{}, time.Unix(1620000000, 0).UTC())

	_, err := e.Query(context.Background(), "BTC-USD", "2h",
		time.Unix(1619990000, 0), time.Unix(1620000000, 0))
	require.ErrorIs(t, err, domain.ErrUnknownInterval)
}

func TestQueryBaseIntervalAlwaysHitsBasePath(t *testing.T) {
	now := time.Unix(1620000000, 0).UTC()
	store := &fakeStore{
		baseCandles: []domain.Candle{storedCandle("BTC-USD", now.Unix()-10, 100, 1)},
	}
	e, _ := newTestEngine(t, store, now)

	// Range far in the past: still the base-candle path for 1s.
	candles, err := e.Query(context.Background(), "BTC-USD", "1s",
		now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 1, store.baseCalls)
	assert.Zero(t, store.aggregatedCalls)
}

func TestQueryFullyHistoricalUsesOnlyAggregatedPath(t *testing.T) {
	now := time.Unix(1620000000, 0).UTC()
	store := &fakeStore{
		aggregatedCandles: []domain.Candle{
			storedCandle("BTC-USD", now.Unix()-3600, 100, 60),
			storedCandle("BTC-USD", now.Unix()-3540, 101, 60),
		},
	}
	e, _ := newTestEngine(t, store, now)

	candles, err := e.Query(context.Background(), "BTC-USD", "1m",
		now.Add(-time.Hour), now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 1, store.aggregatedCalls)
	assert.Zero(t, store.baseCalls, "historical query must never touch the base-candle path")
}

func TestQueryFullyRealtimeAggregatesBaseCandles(t *testing.T) {
	now := time.Unix(1620000000, 0).UTC()
	from := now.Add(-60 * time.Second)

	store := &fakeStore{}
	for i := int64(0); i < 10; i++ {
		store.baseCandles = append(store.baseCandles,
			storedCandle("BTC-USD", from.Unix()+i, 100+float64(i), 1))
	}
	e, _ := newTestEngine(t, store, now)

	candles, err := e.Query(context.Background(), "BTC-USD", "5s", from, now)
	require.NoError(t, err)

	assert.Equal(t, 1, store.baseCalls)
	assert.Zero(t, store.aggregatedCalls)

	require.Len(t, candles, 2)
	assert.Equal(t, int64(5), candles[0].Volume)
	assert.Equal(t, int64(5), candles[1].Volume)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 104.0, candles[0].Close)
	assert.Equal(t, 105.0, candles[1].Open)
	assert.Equal(t, 109.0, candles[1].Close)
}

func TestQueryStraddlingRangeMergesRealtimeOverHistorical(t *testing.T) {
	now := time.Unix(1620000000, 0).UTC()
	threshold := now.Add(-120 * time.Second)

	// Historical row and realtime base data share the bucket at the
	// threshold minute; the realtime aggregate must win.
	collidingBucket := threshold.Truncate(time.Minute)

	store := &fakeStore{
		aggregatedCandles: []domain.Candle{
			storedCandle("BTC-USD", collidingBucket.Unix()-60, 90, 60),
			storedCandle("BTC-USD", collidingBucket.Unix(), 100, 60),
		},
		baseCandles: []domain.Candle{
			storedCandle("BTC-USD", threshold.Unix(), 200, 1),
			storedCandle("BTC-USD", threshold.Unix()+1, 201, 1),
		},
	}
	e, _ := newTestEngine(t, store, now)

	candles, err := e.Query(context.Background(), "BTC-USD", "1m",
		now.Add(-10*time.Minute), now)
	require.NoError(t, err)

	assert.Equal(t, 1, store.aggregatedCalls)
	assert.Equal(t, 1, store.baseCalls)

	require.Len(t, candles, 2)
	assert.True(t, candles[0].Time.Before(candles[1].Time), "ascending order")

	assert.Equal(t, 90.0, candles[0].Open, "historical-only bucket kept")
	assert.Equal(t, collidingBucket, candles[1].Time)
	assert.Equal(t, 200.0, candles[1].Open, "realtime series wins the colliding bucket")
	assert.Equal(t, int64(2), candles[1].Volume)
}
