package engine

import (
	"math"
	"sync"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
)

// bucketKey identifies one candle under construction.
type bucketKey struct {
	symbol string
	start  int64 // aligned bucket start, epoch seconds
}

// builder accumulates ticks for a single (symbol, base bucket) pair. All
// field access goes through the mutex; addTick and freeze never interleave.
type builder struct {
	mu sync.Mutex

	symbol    string
	start     time.Time
	createdAt time.Time

	// Tick timestamps backing the open/close resolution. Strict
	// comparisons make the first arrival win on equal timestamps.
	openTS  int64
	closeTS int64

	open        float64
	high        float64
	low         float64
	close       float64
	volume      int64
	initialized bool
	frozen      bool
}

func newBuilder(symbol string, start, createdAt time.Time) *builder {
	return &builder{
		symbol:    symbol,
		start:     start,
		createdAt: createdAt,
		openTS:    math.MaxInt64,
		closeTS:   math.MinInt64,
	}
}

// addTick folds one tick into the builder. It reports false when the builder
// has already been frozen for flushing; the caller must then route the tick
// to a fresh builder for the same key.
func (b *builder) addTick(price float64, tsMillis int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return false
	}

	if !b.initialized {
		b.high = price
		b.low = price
		b.initialized = true
	} else {
		if price > b.high {
			b.high = price
		}
		if price < b.low {
			b.low = price
		}
	}
	b.volume++

	if tsMillis < b.openTS {
		b.openTS = tsMillis
		b.open = price
	}
	if tsMillis > b.closeTS {
		b.closeTS = tsMillis
		b.close = price
	}

	return true
}

// freeze converts the builder into an immutable candle and rejects any
// further ticks. Called exactly once, by the flusher.
func (b *builder) freeze() domain.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
	return domain.Candle{
		Symbol: b.symbol,
		Time:   b.start,
		Open:   b.open,
		High:   b.high,
		Low:    b.low,
		Close:  b.close,
		Volume: b.volume,
	}
}
