package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/application/exitengine"
	"github.com/tradeloop/enginecore/internal/domain"
)

func TestPaperExecutor_CheckExitConditions_StopLossFires(t *testing.T) {
	account := fixtureAccount()
	p := NewPaper(fixtureConfig())
	sig := domain.Signal{Symbol: "BTCUSDT", Price: 100}
	open, err := p.OpenLong(context.Background(), &account, sig, 10000, 0.1, 95, 0, time.Unix(1, 0))
	require.NoError(t, err)
	require.False(t, open.Skipped)

	cfg := exitengine.Config{StopLossPercent: 0.05, Intracandle: true}
	prices := map[string]float64{"BTCUSDT": 90}
	klines := map[string]domain.Kline{"BTCUSDT": {High: 101, Low: 90, Close: 90}}

	trades, err := p.CheckExitConditions(context.Background(), &account, cfg, prices, klines, nil, time.Unix(2, 0))
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, string(exitengine.ReasonStopLoss), trades[0].Reason)
	assert.Empty(t, account.Positions)
}

func TestPaperExecutor_CheckExitConditions_NoExitLeavesPositionOpen(t *testing.T) {
	account := fixtureAccount()
	p := NewPaper(fixtureConfig())
	sig := domain.Signal{Symbol: "BTCUSDT", Price: 100}
	open, err := p.OpenLong(context.Background(), &account, sig, 10000, 0.1, 50, 200, time.Unix(1, 0))
	require.NoError(t, err)
	require.False(t, open.Skipped)

	cfg := exitengine.Config{StopLossPercent: 0.5, Intracandle: true}
	prices := map[string]float64{"BTCUSDT": 101}
	klines := map[string]domain.Kline{"BTCUSDT": {High: 102, Low: 100, Close: 101}}

	trades, err := p.CheckExitConditions(context.Background(), &account, cfg, prices, klines, nil, time.Unix(2, 0))
	require.NoError(t, err)

	assert.Empty(t, trades)
	assert.Len(t, account.Positions, 1)
}

func TestPaperExecutor_CheckExitConditions_SkipsPositionWithoutPrice(t *testing.T) {
	account := fixtureAccount()
	p := NewPaper(fixtureConfig())
	open, err := p.OpenLong(context.Background(), &account, domain.Signal{Symbol: "BTCUSDT", Price: 100}, 10000, 0.1, 95, 0, time.Unix(1, 0))
	require.NoError(t, err)
	require.False(t, open.Skipped)

	cfg := exitengine.Config{StopLossPercent: 0.05, Intracandle: true}
	trades, err := p.CheckExitConditions(context.Background(), &account, cfg, map[string]float64{}, map[string]domain.Kline{}, nil, time.Unix(2, 0))
	require.NoError(t, err)

	assert.Empty(t, trades)
	assert.Len(t, account.Positions, 1)
}
