package signalpipeline

// SizingInput gathers everything the position-sizing stage needs.
type SizingInput struct {
	BaseRatio float64

	KellyEnabled   bool
	ClosedPnLPct   []float64 // most-recent-last
	KellyLookback  int
	KellyHalf      float64 // fractional-Kelly multiplier, e.g. 0.5
	KellyMinRatio  float64
	KellyMaxRatio  float64

	ATREnabled       bool
	ATR              float64
	ATRMultiplier    float64
	EntryPrice       float64
	Equity           float64
	RiskPerTrade     float64
	MaxPositionRatio float64

	CorrelationHeat float64 // in [0,1]; scales the final ratio down
}

// SizingResult is the ratio of equity to commit, plus the computed stop
// distance when ATR sizing was applied (0 otherwise, meaning the caller
// should fall back to the configured stop_loss_percent).
type SizingResult struct {
	PositionRatio float64
	StopDistance  float64
}

// Size runs spec §4.4 stage 6: Kelly sizing (falling back to the
// configured ratio on insufficient sample size), then optional ATR
// sizing, then the portfolio correlation-heat scaler.
func Size(in SizingInput) SizingResult {
	ratio := in.BaseRatio

	if in.KellyEnabled {
		if k, ok := KellyFraction(in.ClosedPnLPct, in.KellyLookback, in.KellyHalf, in.KellyMinRatio, in.KellyMaxRatio); ok {
			ratio = k
		}
	}

	var stopDistance float64
	if in.ATREnabled && in.ATR > 0 && in.Equity > 0 && in.EntryPrice > 0 {
		stopDistance = in.ATR * in.ATRMultiplier
		if stopDistance > 0 {
			// quantity = (equity * riskPerTrade) / stopDistance; expressed as
			// a ratio of equity, that's (quantity * entryPrice) / equity.
			qty := (in.Equity * in.RiskPerTrade) / stopDistance
			atrRatio := (qty * in.EntryPrice) / in.Equity
			if in.MaxPositionRatio > 0 && atrRatio > in.MaxPositionRatio {
				atrRatio = in.MaxPositionRatio
			}
			ratio = atrRatio
		}
	}

	if in.CorrelationHeat > 0 {
		ratio *= 1 - in.CorrelationHeat
	}
	if ratio < 0 {
		ratio = 0
	}

	return SizingResult{PositionRatio: ratio, StopDistance: stopDistance}
}

const minKellySampleSize = 10

// KellyFraction computes a half-Kelly (or other fractional multiplier)
// position ratio from the last lookback closed-trade P&L percentages,
// clamped to [minRatio, maxRatio]. Returns ok=false when the sample is too
// small to trust, signalling the caller to fall back to the config ratio.
func KellyFraction(pnlPct []float64, lookback int, half, minRatio, maxRatio float64) (float64, bool) {
	n := lookback
	if n <= 0 || n > len(pnlPct) {
		n = len(pnlPct)
	}
	if n < minKellySampleSize {
		return 0, false
	}
	sample := pnlPct[len(pnlPct)-n:]

	var wins, losses int
	var winSum, lossSum float64
	for _, p := range sample {
		if p > 0 {
			wins++
			winSum += p
		} else if p < 0 {
			losses++
			lossSum += -p
		}
	}
	if wins == 0 || losses == 0 {
		return 0, false
	}
	winRate := float64(wins) / float64(len(sample))
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	if avgLoss == 0 {
		return 0, false
	}
	payoffRatio := avgWin / avgLoss

	kelly := winRate - (1-winRate)/payoffRatio
	if kelly < 0 {
		kelly = 0
	}
	kelly *= half

	if minRatio > 0 && kelly < minRatio {
		kelly = minRatio
	}
	if maxRatio > 0 && kelly > maxRatio {
		kelly = maxRatio
	}
	return kelly, true
}
