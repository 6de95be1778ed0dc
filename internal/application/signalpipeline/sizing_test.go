package signalpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize_ATRRatioDividesByStopDistanceNotJustRiskPerTrade(t *testing.T) {
	in := SizingInput{
		BaseRatio:        0.1,
		ATREnabled:       true,
		ATR:              50,
		ATRMultiplier:    2, // stopDistance = 100
		EntryPrice:       20_000,
		Equity:           10_000,
		RiskPerTrade:     0.01,
		MaxPositionRatio: 10,
	}
	got := Size(in)

	// qty = (10000*0.01)/100 = 1; ratio = 1*20000/10000 = 2
	assert.InDelta(t, 2.0, got.PositionRatio, 1e-9)
	assert.InDelta(t, 100.0, got.StopDistance, 1e-9)
}

func TestSize_ATRRatioVariesWithStopDistance(t *testing.T) {
	wide := Size(SizingInput{
		ATREnabled: true, ATR: 200, ATRMultiplier: 1,
		EntryPrice: 20_000, Equity: 10_000, RiskPerTrade: 0.01, MaxPositionRatio: 10,
	})
	tight := Size(SizingInput{
		ATREnabled: true, ATR: 20, ATRMultiplier: 1,
		EntryPrice: 20_000, Equity: 10_000, RiskPerTrade: 0.01, MaxPositionRatio: 10,
	})
	// A tighter stop (smaller distance) must commit a larger ratio for the
	// same risk_per_trade_percent; a bug that collapses both to
	// risk_per_trade regardless of ATR would make these equal.
	assert.Greater(t, tight.PositionRatio, wide.PositionRatio)
}

func TestSize_ATRRatioCapsAtMaxPositionRatio(t *testing.T) {
	got := Size(SizingInput{
		ATREnabled: true, ATR: 1, ATRMultiplier: 1, // stopDistance = 1, tiny
		EntryPrice: 20_000, Equity: 10_000, RiskPerTrade: 0.01, MaxPositionRatio: 0.5,
	})
	assert.InDelta(t, 0.5, got.PositionRatio, 1e-9)
}

func TestSize_CorrelationHeatScalesBaseRatio(t *testing.T) {
	got := Size(SizingInput{
		BaseRatio:        0.2,
		ATREnabled:       false,
		CorrelationHeat:  0.25,
	})
	assert.InDelta(t, 0.15, got.PositionRatio, 1e-9)
}
