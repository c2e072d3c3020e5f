package domain

import "time"

// Candle is an immutable OHLCV summary of one time bucket. Time is the
// aligned bucket start.
type Candle struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Tick is a single bid/ask quote. Timestamp is epoch milliseconds.
type Tick struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp int64
}

func (t Tick) MidPrice() float64 {
	return (t.Bid + t.Ask) / 2
}
