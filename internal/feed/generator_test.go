package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	ticks []domain.Tick
}

func (s *recordingSink) SubmitTick(t domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func TestNextTickQuotesSpreadAroundMid(t *testing.T) {
	g := NewGenerator(&recordingSink{}, map[string]float64{"BTC-USD": 50000}, 10)

	for i := 0; i < 100; i++ {
		tick := g.nextTick("BTC-USD")
		assert.Equal(t, "BTC-USD", tick.Symbol)
		assert.Less(t, tick.Bid, tick.Ask)

		mid := tick.MidPrice()
		assert.InDelta(t, mid*0.0005, tick.Ask-tick.Bid, mid*1e-9)
	}
}

func TestNextTickWalksWithinOnePercent(t *testing.T) {
	g := NewGenerator(&recordingSink{}, map[string]float64{"BTC-USD": 50000}, 10)

	prev := 50000.0
	for i := 0; i < 1000; i++ {
		tick := g.nextTick("BTC-USD")
		mid := tick.MidPrice()
		assert.InDelta(t, prev, mid, prev/100+1e-6)
		prev = mid
	}
}

func TestRunEmitsTicksUntilCancelled(t *testing.T) {
	sink := &recordingSink{}
	g := NewGenerator(sink, map[string]float64{"BTC-USD": 50000, "ETH-USD": 3100}, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Run(ctx))
	assert.Greater(t, sink.count(), 0)
}
