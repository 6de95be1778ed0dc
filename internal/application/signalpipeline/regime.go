package signalpipeline

import "github.com/tradeloop/enginecore/internal/domain"

// RegimeThresholds tunes the boundaries DetectRegime classifies against.
type RegimeThresholds struct {
	TrendSeparation float64 // |maShort-maLong|/maLong above this counts as trending
	TightRangeATR   float64 // atr/price below this counts as ranging_tight
	BreakoutVolume  float64 // volume/avgVolume above this, combined with trend, counts as breakout
}

// DetectRegime classifies the prevailing market state from the current
// snapshot (spec §4.4 stage 3). It is a coarse heuristic, not a statistical
// model: trending regimes come from sustained MA separation, ranging_tight
// from low ATR relative to price, breakout from trend plus a volume
// surge, and contraction is the fallback when nothing else fires.
func DetectRegime(snap domain.IndicatorSnapshot, th RegimeThresholds) domain.Regime {
	if snap.MALong == 0 {
		return domain.RegimeContraction
	}
	separation := (snap.MAShort - snap.MALong) / snap.MALong
	if separation < 0 {
		separation = -separation
	}

	trending := separation >= th.TrendSeparation
	bullish := snap.MAShort > snap.MALong

	if trending && snap.AvgVolume > 0 && snap.Volume >= snap.AvgVolume*th.BreakoutVolume {
		return domain.RegimeBreakout
	}
	if trending && bullish {
		return domain.RegimeTrendingBull
	}
	if trending && !bullish {
		return domain.RegimeTrendingBear
	}
	if snap.HasATR && snap.Price > 0 && snap.ATR/snap.Price <= th.TightRangeATR {
		return domain.RegimeRangingTight
	}
	return domain.RegimeContraction
}

// RegimeOverrides maps each regime to its risk-parameter override. A
// missing entry (or a zero-valued field within one) means "no override,
// keep the configured value".
type RegimeOverrides map[domain.Regime]domain.RegimeOverride

// Apply overlays the override for regime (if any) onto the base risk
// parameters, returning the effective stop-loss/take-profit percent,
// position-ratio multiplier, and ROI table for this tick.
func (overrides RegimeOverrides) Apply(regime domain.Regime, baseSL, baseTP, basePositionRatio float64, baseROI map[int]float64) (sl, tp, positionRatio float64, roi map[int]float64) {
	sl, tp, positionRatio, roi = baseSL, baseTP, basePositionRatio, baseROI
	o, ok := overrides[regime]
	if !ok {
		return
	}
	if o.StopLossMult > 0 {
		sl = baseSL * o.StopLossMult
	}
	if o.TakeProfitMult > 0 {
		tp = baseTP * o.TakeProfitMult
	}
	if o.PositionRatioMult > 0 {
		positionRatio = basePositionRatio * o.PositionRatioMult
	}
	if o.ROITable != nil {
		roi = o.ROITable
	}
	return
}

// DefaultOverrides is the built-in per-regime override table every scenario
// uses; there is no per-scenario override config (spec §6 names no
// regime-override schema, so these are fixed constants, mirroring the fixed
// RegimeThresholds a classifier-tuning config section would otherwise
// carry). Trending regimes ride the move with a wider take-profit and
// larger size; ranging_tight and contraction pull the stop in and trade
// smaller; breakout widens the take-profit further still.
func DefaultOverrides() RegimeOverrides {
	return RegimeOverrides{
		domain.RegimeTrendingBull: {StopLossMult: 1.1, TakeProfitMult: 1.3, PositionRatioMult: 1.15},
		domain.RegimeTrendingBear: {StopLossMult: 1.1, TakeProfitMult: 1.3, PositionRatioMult: 1.15},
		domain.RegimeBreakout:     {StopLossMult: 1.2, TakeProfitMult: 1.6, PositionRatioMult: 1.0},
		domain.RegimeRangingTight: {StopLossMult: 0.7, TakeProfitMult: 0.7, PositionRatioMult: 0.75},
		domain.RegimeContraction:  {StopLossMult: 0.85, TakeProfitMult: 0.85, PositionRatioMult: 0.5},
	}
}
