package domain

// MACDSnapshot carries the current and previous MACD line, signal line, and
// histogram needed by the macd_* rule family (golden/death cross, shrinking
// histogram).
type MACDSnapshot struct {
	MACD      float64
	Signal    float64
	Histogram float64
	PrevMACD  float64
	PrevHist  float64
}

// IndicatorSnapshot is the pure, immutable result of running the indicator
// engine over a K-line suffix. When the series is below the warmup
// requirement the engine's Compute reports ok=false alongside a zero
// snapshot; every consumer must skip the symbol for that tick rather than
// treat zero values as real.
type IndicatorSnapshot struct {
	Symbol      string
	Price       float64
	Volume      float64
	AvgVolume   float64
	MAShort     float64
	MALong      float64
	PrevMAShort float64
	PrevMALong  float64
	RSI         float64
	MACD        *MACDSnapshot
	ATR         float64
	HasATR      bool
	VWAP        float64
	HasVWAP     bool
	CVD         float64
	HasCVD      bool
}

// MACrossedUp reports a golden cross: short MA moved from at-or-below to
// strictly above long MA between the previous and current bar.
func (s IndicatorSnapshot) MACrossedUp() bool {
	return s.PrevMAShort <= s.PrevMALong && s.MAShort > s.MALong
}

// MACrossedDown reports a death cross, symmetric to MACrossedUp.
func (s IndicatorSnapshot) MACrossedDown() bool {
	return s.PrevMAShort >= s.PrevMALong && s.MAShort < s.MALong
}
