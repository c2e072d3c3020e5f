package domain

// Aggregate folds base-interval candles into candles of the target interval.
// Input must be sorted ascending by time; the close of each output candle is
// the close of the last base candle folded into it, in input order. Output
// buckets appear in order of first appearance.
func Aggregate(base []Candle, interval Interval) []Candle {
	if len(base) == 0 {
		return nil
	}

	order := make([]int64, 0, len(base))
	groups := make(map[int64]*Candle)

	for _, c := range base {
		bucket := interval.Align(c.Time)
		key := bucket.Unix()

		agg, ok := groups[key]
		if !ok {
			agg = &Candle{
				Symbol: c.Symbol,
				Time:   bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
			}
			groups[key] = agg
			order = append(order, key)
		}

		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Close = c.Close
		agg.Volume += c.Volume
	}

	out := make([]Candle, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}
