// Package portfolio computes the portfolio-wide risk views the Signal
// Pipeline and Scenario Runtime consume: exposure summary, correlation-heat
// scaling for a prospective entry, and Kelly-fraction sizing from closed
// signal history — spec §4.9.
package portfolio

import (
	"math"

	"github.com/tradeloop/enginecore/internal/application/signalpipeline"
	"github.com/tradeloop/enginecore/internal/domain"
)

// Exposure builds the notional exposure summary for a set of held positions
// valued at current prices, falling back to entry price when a symbol has
// no current quote — the same fallback CalcTotalEquity uses.
func Exposure(positions map[string]domain.Position, prices map[string]float64, equity float64) domain.ExposureSummary {
	summary := domain.ExposureSummary{
		NotionalPerSymbol: make(map[string]float64, len(positions)),
		Equity:            equity,
	}
	for symbol, pos := range positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		notional := pos.Quantity * price
		summary.NotionalPerSymbol[symbol] = notional
		summary.TotalNotional += notional
	}
	return summary
}

// CorrelationConfig tunes the correlation-heat scaler.
type CorrelationConfig struct {
	Threshold float64 // |corr| above this counts toward heat
	Lookback  int
	Ceiling   float64 // heat above this blocks the entry outright
}

// CorrelationHeat computes the mean absolute correlation of a candidate
// symbol's log-return series against every held symbol's, and turns that
// into an approve/scale/block decision plus the ratio the sizing stage
// should use. Heat is the mean absolute correlation across held symbols,
// clamped to [0,1].
func CorrelationHeat(candidateReturns []float64, heldReturns map[string][]float64, baseRatio float64, cfg CorrelationConfig) domain.CorrelationVerdict {
	if len(heldReturns) == 0 {
		return domain.CorrelationVerdict{Heat: 0, Decision: domain.CorrelationApprove, AdjustedRatio: baseRatio}
	}

	var sum float64
	for _, series := range heldReturns {
		corr := signalpipeline.PearsonCorrelation(candidateReturns, series)
		sum += math.Abs(corr)
	}
	heat := sum / float64(len(heldReturns))
	if heat > 1 {
		heat = 1
	}
	if heat < 0 {
		heat = 0
	}

	if cfg.Ceiling > 0 && heat > cfg.Ceiling {
		return domain.CorrelationVerdict{Heat: heat, Decision: domain.CorrelationBlock, AdjustedRatio: 0}
	}
	if cfg.Threshold > 0 && heat > cfg.Threshold {
		scaled := baseRatio * (1 - heat)
		return domain.CorrelationVerdict{Heat: heat, Decision: domain.CorrelationScale, AdjustedRatio: scaled}
	}
	return domain.CorrelationVerdict{Heat: heat, Decision: domain.CorrelationApprove, AdjustedRatio: baseRatio}
}

// KellyFraction delegates to the signal pipeline's half-Kelly sizing helper
// so both the sizing stage and ad-hoc portfolio reporting share one
// implementation rather than drifting apart.
func KellyFraction(pnlPct []float64, lookback int, half, minRatio, maxRatio float64) (float64, bool) {
	return signalpipeline.KellyFraction(pnlPct, lookback, half, minRatio, maxRatio)
}
