package signalpipeline

import (
	"math"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// FilterInput is everything a filter stage needs: the candidate signal,
// the higher-timeframe trend reading, held-symbol return series for
// correlation, and the event/halt context.
type FilterInput struct {
	Signal          domain.Signal
	TrendEMABullish bool
	HasTrend        bool
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	MinRR           float64
	HeldReturns     map[string][]float64 // symbol -> log-return series, for correlation
	CandidateReturns []float64
	CorrelationThreshold float64
	CorrelationLookback  int
	EmergencyHalt   bool
	EventPhase      ports.EventPhase
}

// FilterResult reports a short-circuit rejection, or approval with any
// position-ratio scaling the filter applied (event pre/post windows scale
// down rather than reject outright).
type FilterResult struct {
	Rejected      bool
	Reason        string
	RatioMultiplier float64 // 1.0 when no scaling applied
}

// Run applies every filter stage in order, short-circuiting on the first
// rejection (spec §4.4 stage 4). Exits (sell/cover) never reject on these
// filters other than emergency halt, which never blocks exits either.
func Run(in FilterInput) FilterResult {
	if !in.Signal.Type.IsOpen() {
		return FilterResult{RatioMultiplier: 1.0}
	}

	if in.EmergencyHalt {
		return FilterResult{Rejected: true, Reason: "emergency_halt"}
	}

	if in.HasTrend {
		if in.Signal.Type == domain.SignalBuy && !in.TrendEMABullish {
			return FilterResult{Rejected: true, Reason: "mtf_trend_bearish"}
		}
		if in.Signal.Type == domain.SignalShort && in.TrendEMABullish {
			return FilterResult{Rejected: true, Reason: "mtf_trend_bullish"}
		}
	}

	if in.MinRR > 0 && in.StopLoss > 0 && in.TakeProfit > 0 {
		var risk, reward float64
		if in.Signal.Type == domain.SignalBuy {
			risk = in.EntryPrice - in.StopLoss
			reward = in.TakeProfit - in.EntryPrice
		} else {
			risk = in.StopLoss - in.EntryPrice
			reward = in.EntryPrice - in.TakeProfit
		}
		if risk <= 0 || reward/risk < in.MinRR {
			return FilterResult{Rejected: true, Reason: "risk_reward_below_minimum"}
		}
	}

	if in.CorrelationThreshold > 0 {
		for symbol, series := range in.HeldReturns {
			corr := PearsonCorrelation(in.CandidateReturns, series)
			if math.Abs(corr) > in.CorrelationThreshold {
				return FilterResult{Rejected: true, Reason: "correlation_with_" + symbol}
			}
		}
	}

	switch in.EventPhase {
	case ports.EventDuring:
		return FilterResult{Rejected: true, Reason: "event_window_during"}
	case ports.EventPre, ports.EventPost:
		return FilterResult{RatioMultiplier: 0.5}
	}

	return FilterResult{RatioMultiplier: 1.0}
}

// PearsonCorrelation computes the Pearson correlation coefficient of two
// equal-length series, truncating to the shorter length if they differ.
// Returns 0 for degenerate inputs (fewer than 2 points, or zero variance)
// rather than NaN, so callers never need to special-case it.
func PearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
