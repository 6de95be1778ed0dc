package signalpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeloop/enginecore/internal/domain"
)

func TestEvaluate_UnknownRuleIDNeverRaises(t *testing.T) {
	ctx := RuleContext{Snapshot: domain.IndicatorSnapshot{MAShort: 10, MALong: 5}}
	assert.False(t, Evaluate([]string{"totally_made_up_rule"}, ctx))
}

func TestEvaluate_EmptyListIsFalse(t *testing.T) {
	ctx := RuleContext{}
	assert.False(t, Evaluate(nil, ctx))
}

func TestEvaluate_ANDsAllRules(t *testing.T) {
	ctx := RuleContext{
		Snapshot: domain.IndicatorSnapshot{MAShort: 10, MALong: 5, RSI: 25},
		Params:   RuleParams{RSIOversold: 30, RSIOverbought: 70},
	}
	assert.True(t, Evaluate([]string{"ma_bullish", "rsi_not_overbought"}, ctx))
	assert.False(t, Evaluate([]string{"ma_bullish", "ma_bearish"}, ctx))
}

func TestRule_RSIOversoldAndOverbought(t *testing.T) {
	params := RuleParams{RSIOversold: 30, RSIOverbought: 70}
	assert.True(t, Registry["rsi_oversold"](RuleContext{Snapshot: domain.IndicatorSnapshot{RSI: 25}, Params: params}))
	assert.False(t, Registry["rsi_oversold"](RuleContext{Snapshot: domain.IndicatorSnapshot{RSI: 35}, Params: params}))
	assert.True(t, Registry["rsi_overbought"](RuleContext{Snapshot: domain.IndicatorSnapshot{RSI: 75}, Params: params}))
}

func TestRule_MACDCrosses(t *testing.T) {
	golden := domain.IndicatorSnapshot{MACD: &domain.MACDSnapshot{PrevHist: -0.1, Histogram: 0.2}}
	assert.True(t, Registry["macd_golden_cross"](RuleContext{Snapshot: golden}))
	assert.False(t, Registry["macd_death_cross"](RuleContext{Snapshot: golden}))

	death := domain.IndicatorSnapshot{MACD: &domain.MACDSnapshot{PrevHist: 0.1, Histogram: -0.2}}
	assert.True(t, Registry["macd_death_cross"](RuleContext{Snapshot: death}))
}

func TestRule_MACDHistogramShrinking(t *testing.T) {
	ctx := RuleContext{
		PrevHistograms: []float64{0.5, 0.3},
		Snapshot:       domain.IndicatorSnapshot{MACD: &domain.MACDSnapshot{Histogram: 0.1}},
	}
	assert.True(t, Registry["macd_histogram_shrinking"](ctx))

	notShrinking := RuleContext{
		PrevHistograms: []float64{0.1, 0.3},
		Snapshot:       domain.IndicatorSnapshot{MACD: &domain.MACDSnapshot{Histogram: 0.5}},
	}
	assert.False(t, Registry["macd_histogram_shrinking"](notShrinking))
}

func TestRule_VolumeSurgeAndLow(t *testing.T) {
	params := RuleParams{VolumeSurgeRatio: 1.5, VolumeLowRatio: 0.5}
	surge := domain.IndicatorSnapshot{Volume: 200, AvgVolume: 100}
	assert.True(t, Registry["volume_surge"](RuleContext{Snapshot: surge, Params: params}))

	low := domain.IndicatorSnapshot{Volume: 40, AvgVolume: 100}
	assert.True(t, Registry["volume_low"](RuleContext{Snapshot: low, Params: params}))
}

func TestRule_CVDBullishBearish(t *testing.T) {
	bull := domain.IndicatorSnapshot{HasCVD: true, CVD: 5}
	assert.True(t, Registry["cvd_bullish"](RuleContext{Snapshot: bull}))
	assert.False(t, Registry["cvd_bearish"](RuleContext{Snapshot: bull}))
}
