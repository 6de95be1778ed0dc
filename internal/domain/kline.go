package domain

// Kline is one candle of a (symbol, timeframe) series. Timestamps are ms
// since epoch; prices and volume are floats. Sequences are ordered oldest
// to newest and never mutated once produced.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// Valid reports whether the candle respects the OHLC ordering invariant:
// low <= min(open,close) <= max(open,close) <= high, and openTime < closeTime.
func (k Kline) Valid() bool {
	if k.OpenTime >= k.CloseTime {
		return false
	}
	lo := k.Open
	if k.Close < lo {
		lo = k.Close
	}
	hi := k.Open
	if k.Close > hi {
		hi = k.Close
	}
	return k.Low <= lo && hi <= k.High
}

// KlineSeries is an ordered, read-only suffix of candles for one (symbol,
// timeframe) pair, shared by the Data Provider with every consumer in a tick.
type KlineSeries struct {
	Symbol    string
	Timeframe string
	Candles   []Kline
}

// Last returns the most recent candle and true, or the zero value and false
// when the series is empty.
func (s KlineSeries) Last() (Kline, bool) {
	if len(s.Candles) == 0 {
		return Kline{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Closes returns the closing prices of the series, oldest first.
func (s KlineSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}
