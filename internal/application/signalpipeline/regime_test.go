package signalpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeloop/enginecore/internal/domain"
)

func TestRegimeOverrides_Apply_NoEntryReturnsBaseUnchanged(t *testing.T) {
	overrides := RegimeOverrides{}
	roi := map[int]float64{60: 0.01}
	sl, tp, ratio, gotROI := overrides.Apply(domain.RegimeContraction, 0.02, 0.04, 0.1, roi)

	assert.Equal(t, 0.02, sl)
	assert.Equal(t, 0.04, tp)
	assert.Equal(t, 0.1, ratio)
	assert.Equal(t, roi, gotROI)
}

func TestRegimeOverrides_Apply_ScalesByMultiplier(t *testing.T) {
	overrides := RegimeOverrides{
		domain.RegimeBreakout: {StopLossMult: 1.2, TakeProfitMult: 1.6, PositionRatioMult: 1.5},
	}
	sl, tp, ratio, _ := overrides.Apply(domain.RegimeBreakout, 0.02, 0.04, 0.1, nil)

	assert.InDelta(t, 0.024, sl, 1e-9)
	assert.InDelta(t, 0.064, tp, 1e-9)
	assert.InDelta(t, 0.15, ratio, 1e-9)
}

func TestRegimeOverrides_Apply_ZeroMultFieldMeansNoChange(t *testing.T) {
	overrides := RegimeOverrides{
		domain.RegimeRangingTight: {PositionRatioMult: 0.5}, // SL/TP left zero-valued
	}
	sl, tp, ratio, _ := overrides.Apply(domain.RegimeRangingTight, 0.02, 0.04, 0.1, nil)

	assert.Equal(t, 0.02, sl)
	assert.Equal(t, 0.04, tp)
	assert.InDelta(t, 0.05, ratio, 1e-9)
}

func TestRegimeOverrides_Apply_ROITableReplacesOutright(t *testing.T) {
	custom := map[int]float64{30: 0.02}
	overrides := RegimeOverrides{
		domain.RegimeTrendingBull: {ROITable: custom},
	}
	_, _, _, roi := overrides.Apply(domain.RegimeTrendingBull, 0.02, 0.04, 0.1, map[int]float64{60: 0.01})

	assert.Equal(t, custom, roi)
}

func TestDefaultOverrides_CoversEveryRegime(t *testing.T) {
	overrides := DefaultOverrides()
	for _, regime := range []domain.Regime{
		domain.RegimeTrendingBull,
		domain.RegimeTrendingBear,
		domain.RegimeBreakout,
		domain.RegimeRangingTight,
		domain.RegimeContraction,
	} {
		o, ok := overrides[regime]
		assert.Truef(t, ok, "missing default override for regime %q", regime)
		assert.Greater(t, o.StopLossMult, 0.0)
		assert.Greater(t, o.TakeProfitMult, 0.0)
		assert.Greater(t, o.PositionRatioMult, 0.0)
	}
}

func TestDefaultOverrides_TrendingWidensTakeProfitAndSize(t *testing.T) {
	overrides := DefaultOverrides()
	bull := overrides[domain.RegimeTrendingBull]
	tight := overrides[domain.RegimeRangingTight]

	assert.Greater(t, bull.TakeProfitMult, tight.TakeProfitMult)
	assert.Greater(t, bull.PositionRatioMult, tight.PositionRatioMult)
}
