package signalpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeloop/enginecore/internal/domain"
)

func TestGate_NoPositionShortNotSell(t *testing.T) {
	sets := SignalSets{Short: []string{"ma_bearish"}, Sell: []string{"ma_bearish"}}
	ctx := RuleContext{Snapshot: domain.IndicatorSnapshot{MAShort: 5, MALong: 10}}

	got := Gate(sets, nil, ctx)
	assert.Equal(t, domain.SignalShort, got)
}

func TestGate_LongPositionEmitsSellNotBuy(t *testing.T) {
	sets := SignalSets{Short: []string{"ma_bearish"}, Sell: []string{"ma_bearish"}}
	ctx := RuleContext{Snapshot: domain.IndicatorSnapshot{MAShort: 5, MALong: 10}}
	side := domain.SideLong

	got := Gate(sets, &side, ctx)
	assert.Equal(t, domain.SignalSell, got)
}

func TestGate_ShortPositionEmitsCoverNotBuy(t *testing.T) {
	sets := SignalSets{Cover: []string{"ma_bullish"}, Buy: []string{"ma_bullish"}}
	ctx := RuleContext{Snapshot: domain.IndicatorSnapshot{MAShort: 10, MALong: 5}}
	side := domain.SideShort

	got := Gate(sets, &side, ctx)
	assert.Equal(t, domain.SignalCover, got)
}

func TestGate_BuyWinsTieOverShort(t *testing.T) {
	// Degenerate config where both buy and short rule sets are
	// simultaneously satisfiable; buy must win.
	sets := SignalSets{Buy: []string{"ma_bullish"}, Short: []string{"rsi_oversold"}}
	ctx := RuleContext{Snapshot: domain.IndicatorSnapshot{MAShort: 10, MALong: 5, RSI: 10}, Params: RuleParams{RSIOversold: 30}}

	got := Gate(sets, nil, ctx)
	assert.Equal(t, domain.SignalBuy, got)
}
