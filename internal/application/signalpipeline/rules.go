// Package signalpipeline composes an IndicatorSnapshot, account/portfolio
// context, and external gates into a single tradeable Signal (or none),
// following the staged pipeline: rule evaluation -> position-aware gating
// -> regime detection -> filters -> sentiment gate -> sizing.
package signalpipeline

import (
	"github.com/tradeloop/enginecore/internal/domain"
)

// RuleParams carries the thresholds a rule needs beyond the snapshot
// itself (RSI zone bounds, volume ratios, funding-rate extremes, ...).
type RuleParams struct {
	RSIOverbought     float64
	RSIOversold       float64
	RSIOverboughtExit float64
	VolumeSurgeRatio  float64
	VolumeLowRatio    float64
	FundingExtreme    float64
}

// RuleContext is everything a single rule evaluation may read. It is built
// fresh per (symbol, tick) and never mutated by a rule.
type RuleContext struct {
	Snapshot       domain.IndicatorSnapshot
	Params         RuleParams
	FundingRate    float64
	HasFunding     bool
	BTCDomDelta    float64
	HasBTCDom      bool
	PrevHistograms []float64 // most-recent-last, for macd_histogram_shrinking
}

// Rule is one named atomic predicate.
type Rule func(ctx RuleContext) bool

// Registry is the closed enum of named rules the pipeline understands.
// An id absent from this map evaluates to false — unknown rule
// identifiers never raise (spec §4.4 stage 1).
var Registry = map[string]Rule{
	// Trend family
	"ma_bullish": func(ctx RuleContext) bool { return ctx.Snapshot.MAShort > ctx.Snapshot.MALong },
	"ma_bearish": func(ctx RuleContext) bool { return ctx.Snapshot.MAShort < ctx.Snapshot.MALong },
	"ma_golden_cross": func(ctx RuleContext) bool { return ctx.Snapshot.MACrossedUp() },
	"ma_death_cross":  func(ctx RuleContext) bool { return ctx.Snapshot.MACrossedDown() },

	// Momentum family
	"rsi_oversold":     func(ctx RuleContext) bool { return ctx.Snapshot.RSI <= ctx.Params.RSIOversold },
	"rsi_overbought":   func(ctx RuleContext) bool { return ctx.Snapshot.RSI >= ctx.Params.RSIOverbought },
	"rsi_not_overbought": func(ctx RuleContext) bool { return ctx.Snapshot.RSI < ctx.Params.RSIOverbought },
	"rsi_not_oversold":   func(ctx RuleContext) bool { return ctx.Snapshot.RSI > ctx.Params.RSIOversold },
	"rsi_bullish_zone": func(ctx RuleContext) bool {
		return ctx.Snapshot.RSI >= 40 && ctx.Snapshot.RSI < ctx.Params.RSIOverbought
	},
	"rsi_overbought_exit": func(ctx RuleContext) bool {
		threshold := ctx.Params.RSIOverboughtExit
		if threshold == 0 {
			threshold = 75
		}
		return ctx.Snapshot.RSI > threshold
	},

	// MACD family
	"macd_bullish": func(ctx RuleContext) bool {
		return ctx.Snapshot.MACD != nil && ctx.Snapshot.MACD.MACD > ctx.Snapshot.MACD.Signal
	},
	"macd_bearish": func(ctx RuleContext) bool {
		return ctx.Snapshot.MACD != nil && ctx.Snapshot.MACD.MACD < ctx.Snapshot.MACD.Signal
	},
	// A cross is detected from the sign change of the histogram (MACD minus
	// signal): golden cross is prevHist <= 0 and current Histogram > 0.
	"macd_golden_cross": func(ctx RuleContext) bool {
		m := ctx.Snapshot.MACD
		return m != nil && m.PrevHist <= 0 && m.Histogram > 0
	},
	"macd_death_cross": func(ctx RuleContext) bool {
		m := ctx.Snapshot.MACD
		return m != nil && m.PrevHist >= 0 && m.Histogram < 0
	},
	"macd_histogram_shrinking": ruleMACDHistogramShrinking,

	// Volume/flow family
	"volume_surge": func(ctx RuleContext) bool {
		ratio := ctx.Params.VolumeSurgeRatio
		if ratio == 0 {
			ratio = 1.5
		}
		return ctx.Snapshot.AvgVolume > 0 && ctx.Snapshot.Volume >= ctx.Snapshot.AvgVolume*ratio
	},
	"volume_low": func(ctx RuleContext) bool {
		ratio := ctx.Params.VolumeLowRatio
		if ratio == 0 {
			ratio = 0.5
		}
		return ctx.Snapshot.AvgVolume > 0 && ctx.Snapshot.Volume <= ctx.Snapshot.AvgVolume*ratio
	},
	"cvd_bullish": func(ctx RuleContext) bool { return ctx.Snapshot.HasCVD && ctx.Snapshot.CVD > 0 },
	"cvd_bearish": func(ctx RuleContext) bool { return ctx.Snapshot.HasCVD && ctx.Snapshot.CVD < 0 },

	// Context family
	"vwap_above": func(ctx RuleContext) bool { return ctx.Snapshot.HasVWAP && ctx.Snapshot.Price > ctx.Snapshot.VWAP },
	"vwap_below": func(ctx RuleContext) bool { return ctx.Snapshot.HasVWAP && ctx.Snapshot.Price < ctx.Snapshot.VWAP },
	"funding_extreme_positive": func(ctx RuleContext) bool {
		extreme := ctx.Params.FundingExtreme
		if extreme == 0 {
			extreme = 0.001
		}
		return ctx.HasFunding && ctx.FundingRate >= extreme
	},
	"funding_extreme_negative": func(ctx RuleContext) bool {
		extreme := ctx.Params.FundingExtreme
		if extreme == 0 {
			extreme = 0.001
		}
		return ctx.HasFunding && ctx.FundingRate <= -extreme
	},
	"btc_dominance_rising":  func(ctx RuleContext) bool { return ctx.HasBTCDom && ctx.BTCDomDelta > 0 },
	"btc_dominance_falling": func(ctx RuleContext) bool { return ctx.HasBTCDom && ctx.BTCDomDelta < 0 },
}

// ruleMACDHistogramShrinking requires three consecutive decreasing
// absolute histogram values, falling back to two when only two samples
// are available.
func ruleMACDHistogramShrinking(ctx RuleContext) bool {
	hist := ctx.PrevHistograms
	if ctx.Snapshot.MACD != nil {
		hist = append(append([]float64{}, hist...), ctx.Snapshot.MACD.Histogram)
	}
	n := len(hist)
	if n >= 3 {
		a, b, c := abs(hist[n-3]), abs(hist[n-2]), abs(hist[n-1])
		return a > b && b > c
	}
	if n == 2 {
		return abs(hist[0]) > abs(hist[1])
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Evaluate ANDs every named rule in ids against ctx. An empty id list
// evaluates to false (nothing configured to fire), and an unknown id
// evaluates to false rather than raising.
func Evaluate(ids []string, ctx RuleContext) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		rule, ok := Registry[id]
		if !ok || !rule(ctx) {
			return false
		}
	}
	return true
}
