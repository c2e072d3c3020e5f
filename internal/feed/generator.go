package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"golang.org/x/sync/errgroup"
)

// tickSink is the part of the aggregation engine the generator needs.
type tickSink interface {
	SubmitTick(domain.Tick)
}

// DefaultSymbols seeds the simulation with plausible starting prices.
var DefaultSymbols = map[string]float64{
	"BTC-USD":  92300.0,
	"ETH-USD":  3100.0,
	"USDT-USD": 1.0,
	"XRP-USD":  2.1,
	"BNB-USD":  899.66,
	"USDC-USD": 0.997,
	"SOL-USD":  139.2,
	"TRX-USD":  0.285,
}

// Generator produces a random-walk bid/ask stream per symbol and submits it
// to the engine. Each step moves the mid price by up to ±1% and quotes a
// 0.05% spread around it.
type Generator struct {
	sink          tickSink
	eventsPerSec  int
	mu            sync.Mutex
	currentPrices map[string]float64
}

func NewGenerator(sink tickSink, symbols map[string]float64, eventsPerSec int) *Generator {
	if eventsPerSec <= 0 {
		eventsPerSec = 50
	}

	prices := make(map[string]float64, len(symbols))
	for symbol, price := range symbols {
		prices[symbol] = price
	}

	return &Generator{
		sink:          sink,
		eventsPerSec:  eventsPerSec,
		currentPrices: prices,
	}
}

// Run emits ticks until the context is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	delay := time.Second / time.Duration(g.eventsPerSec)

	slog.InfoContext(ctx, "starting market data simulation",
		"symbols", len(g.currentPrices), "events_per_sec_per_symbol", g.eventsPerSec)

	grp, ctx := errgroup.WithContext(ctx)
	for symbol := range g.currentPrices {
		symbol := symbol
		grp.Go(func() error {
			ticker := time.NewTicker(delay)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					g.sink.SubmitTick(g.nextTick(symbol))
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	return grp.Wait()
}

func (g *Generator) nextTick(symbol string) domain.Tick {
	g.mu.Lock()
	price := g.currentPrices[symbol]
	price += (rand.Float64()*2 - 1) * price / 100
	g.currentPrices[symbol] = price
	g.mu.Unlock()

	spread := price * 0.0005
	return domain.Tick{
		Symbol:    symbol,
		Bid:       price - spread/2,
		Ask:       price + spread/2,
		Timestamp: time.Now().UnixMilli(),
	}
}
