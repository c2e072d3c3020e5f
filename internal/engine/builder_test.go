package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSingleTick(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	b := newBuilder("BTC-USD", start, start)

	require.True(t, b.addTick(50005.0, 1620000000123))

	c := b.freeze()
	assert.Equal(t, "BTC-USD", c.Symbol)
	assert.Equal(t, start, c.Time)
	assert.Equal(t, 50005.0, c.Open)
	assert.Equal(t, 50005.0, c.High)
	assert.Equal(t, 50005.0, c.Low)
	assert.Equal(t, 50005.0, c.Close)
	assert.Equal(t, int64(1), c.Volume)
}

// Ticks with identical timestamps resolve open and close to the first
// arrival: later ticks with an equal timestamp never overwrite either.
func TestBuilderEqualTimestampsFirstArrivalWins(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	ts := int64(1620000000000)

	b := newBuilder("X", start, start)
	require.True(t, b.addTick(50100, ts))
	require.True(t, b.addTick(50000, ts))
	require.True(t, b.addTick(49900, ts))

	c := b.freeze()
	assert.Equal(t, 50100.0, c.Open)
	assert.Equal(t, 50100.0, c.High)
	assert.Equal(t, 49900.0, c.Low)
	assert.Equal(t, 50100.0, c.Close)
	assert.Equal(t, int64(3), c.Volume)
}

func TestBuilderOutOfOrderTimestamps(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	b := newBuilder("X", start, start)

	// Latest tick arrives first, earliest arrives last.
	require.True(t, b.addTick(103, 1620000000900))
	require.True(t, b.addTick(102, 1620000000500))
	require.True(t, b.addTick(101, 1620000000100))

	c := b.freeze()
	assert.Equal(t, 101.0, c.Open, "earliest timestamp becomes open")
	assert.Equal(t, 103.0, c.Close, "latest timestamp becomes close")
	assert.Equal(t, 103.0, c.High)
	assert.Equal(t, 101.0, c.Low)
}

func TestBuilderHighLowOrderIndependent(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	prices := []float64{104, 99.5, 101, 120.25, 80.75, 100}

	orders := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{3, 0, 5, 4, 1, 2},
	}

	for _, order := range orders {
		b := newBuilder("X", start, start)
		for _, i := range order {
			require.True(t, b.addTick(prices[i], 1620000000000+int64(i)))
		}
		c := b.freeze()
		assert.Equal(t, 120.25, c.High)
		assert.Equal(t, 80.75, c.Low)
		assert.Equal(t, int64(len(prices)), c.Volume)
	}
}

func TestBuilderConcurrentTicks(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	b := newBuilder("X", start, start)

	const goroutines = 16
	const ticksEach = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < ticksEach; i++ {
				price := 100.0 + float64((g*ticksEach+i)%50)
				b.addTick(price, 1620000000000+int64(i))
			}
		}(g)
	}
	wg.Wait()

	c := b.freeze()
	assert.Equal(t, int64(goroutines*ticksEach), c.Volume)
	assert.Equal(t, 149.0, c.High)
	assert.Equal(t, 100.0, c.Low)
}

func TestBuilderRejectsTicksAfterFreeze(t *testing.T) {
	start := time.Unix(1620000000, 0).UTC()
	b := newBuilder("X", start, start)

	require.True(t, b.addTick(100, 1620000000000))
	frozen := b.freeze()

	assert.False(t, b.addTick(200, 1620000000001))
	assert.Equal(t, int64(1), frozen.Volume)
}
