package domain

// Regime classifies the prevailing market state for a symbol. The signal
// pipeline uses it to override risk parameters (stop/TP percent, ROI table,
// position-ratio multiplier) before sizing.
type Regime string

const (
	RegimeTrendingBull    Regime = "trending_bull"
	RegimeTrendingBear    Regime = "trending_bear"
	RegimeRangingTight    Regime = "ranging_tight"
	RegimeBreakout        Regime = "breakout"
	RegimeContraction     Regime = "contraction"
)

// RegimeOverride is the subset of risk parameters a Regime scales for the
// current tick only; each *Mult field multiplies the scenario's configured
// value (1.0 or a zero/unset field means "no change"). ROITable, if set,
// replaces the configured table outright rather than scaling it.
type RegimeOverride struct {
	StopLossMult      float64
	TakeProfitMult    float64
	PositionRatioMult float64
	ROITable          map[int]float64 // holdMinutes -> minProfitRatio
}
