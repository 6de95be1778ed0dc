package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/config"
	"github.com/tradeloop/enginecore/internal/application/dataprovider"
	"github.com/tradeloop/enginecore/internal/application/execution"
	"github.com/tradeloop/enginecore/internal/application/indicator"
	"github.com/tradeloop/enginecore/internal/application/orderstate"
	"github.com/tradeloop/enginecore/internal/domain"
)

func newStagedTPScenario(t *testing.T, stages []config.TakeProfitStage) *Scenario {
	t.Helper()
	client := &fakeExchange{}
	return New(Deps{
		Cfg: config.RuntimeConfig{
			ScenarioID:  "staged",
			InitialUSDT: 1000,
			Symbols:     []string{"BTCUSDT"},
			Timeframe:   "1h",
			Risk: config.RiskConfig{
				StopLossPercent:   0.5,
				TakeProfitPercent: 0.5,
				PositionRatio:     0.1,
				MaxPositions:      3,
				TakeProfitStages:  stages,
			},
		},
		DataProvider:  dataprovider.New(client, dataprovider.Config{Timeframe: "1h", KlineLimit: 50, StaleAfter: time.Minute}),
		Indicator:     indicator.New(indicator.Config{MAShortPeriod: 3, MALongPeriod: 5, RSIPeriod: 5}),
		Executor:      execution.NewPaper(execution.Config{FeeRate: 0, SlippagePercent: 0, MinOrderUSDT: 1, MaxPositions: 3}),
		Orders:        orderstate.New(client, nil),
		AccountStore:  newFakeAccountStore(),
		StateStore:    newFakeStateStore(),
		HistoryStore:  fakeHistoryStore{},
		EquityHistory: &fakeEquityHistory{},
		Heartbeat:     newFakeHeartbeatStore(),
	})
}

func TestRunTakeProfitStages_FiresFirstUnfiredRungCrossed(t *testing.T) {
	s := newStagedTPScenario(t, []config.TakeProfitStage{
		{AtPercent: 0.05, CloseRatio: 0.5},
		{AtPercent: 0.10, CloseRatio: 0.5},
	})
	account := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	account.Positions["BTCUSDT"] = domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 10, EntryPrice: 100, EntryTime: time.Unix(0, 0),
	}
	prices := map[string]float64{"BTCUSDT": 106} // +6% profit: crosses stage 1, not stage 2

	s.runTakeProfitStages(context.Background(), &account, prices, time.Unix(1, 0))

	pos, ok := account.Positions["BTCUSDT"]
	require.True(t, ok)
	assert.InDelta(t, 5.0, pos.Quantity, 1e-9)
	require.Len(t, pos.TakeProfitStagesFired, 2)
	assert.True(t, pos.TakeProfitStagesFired[0])
	assert.False(t, pos.TakeProfitStagesFired[1])
	assert.NotEmpty(t, account.Trades)
}

func TestRunTakeProfitStages_DoesNotRefireAnAlreadyFiredRung(t *testing.T) {
	s := newStagedTPScenario(t, []config.TakeProfitStage{
		{AtPercent: 0.05, CloseRatio: 0.5},
	})
	account := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	account.Positions["BTCUSDT"] = domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 10, EntryPrice: 100, EntryTime: time.Unix(0, 0),
	}
	prices := map[string]float64{"BTCUSDT": 110}

	s.runTakeProfitStages(context.Background(), &account, prices, time.Unix(1, 0))
	afterFirstTick := account.Positions["BTCUSDT"].Quantity
	tradesAfterFirst := len(account.Trades)

	s.runTakeProfitStages(context.Background(), &account, prices, time.Unix(2, 0))

	assert.Equal(t, afterFirstTick, account.Positions["BTCUSDT"].Quantity)
	assert.Equal(t, tradesAfterFirst, len(account.Trades))
}

func TestRunTakeProfitStages_NoStagesConfiguredIsNoop(t *testing.T) {
	s := newStagedTPScenario(t, nil)
	account := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	account.Positions["BTCUSDT"] = domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 10, EntryPrice: 100, EntryTime: time.Unix(0, 0),
	}
	prices := map[string]float64{"BTCUSDT": 200}

	s.runTakeProfitStages(context.Background(), &account, prices, time.Unix(1, 0))

	assert.InDelta(t, 10.0, account.Positions["BTCUSDT"].Quantity, 1e-9)
	assert.Empty(t, account.Trades)
}
