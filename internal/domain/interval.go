package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownInterval = errors.New("unknown interval")

// Interval is one of the fixed set of supported candle widths. The base
// interval is one second; every larger interval is a whole multiple of it.
type Interval time.Duration

const BaseInterval = Interval(time.Second)

func (i Interval) String() string {
	return intervalToLabel[i]
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i)
}

// Align floors t to the start of its bucket.
func (i Interval) Align(t time.Time) time.Time {
	return t.Truncate(time.Duration(i))
}

// ParseInterval resolves a label like "1m" to an Interval. Unknown labels
// are a client input error.
func ParseInterval(s string) (Interval, error) {
	i, ok := labelToInterval[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, s)
	}
	return i, nil
}

var intervalToLabel = map[Interval]string{
	Interval(time.Second):      "1s",
	Interval(time.Second * 5):  "5s",
	Interval(time.Minute):      "1m",
	Interval(time.Minute * 15): "15m",
	Interval(time.Hour):        "1h",
}

var labelToInterval = map[string]Interval{
	"1s":  Interval(time.Second),
	"5s":  Interval(time.Second * 5),
	"1m":  Interval(time.Minute),
	"15m": Interval(time.Minute * 15),
	"1h":  Interval(time.Hour),
}
