package exitengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/domain"
)

func bar(high, low, close float64) domain.Kline {
	return domain.Kline{OpenTime: 1, CloseTime: 2, Open: close, High: high, Low: low, Close: close, Volume: 100}
}

func TestEvaluate_ExitPrecedenceScenarios(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name       string
		pos        domain.Position
		intracandle bool
		bar        domain.Kline
		wantExit   bool
		wantReason ExitReason
		wantPrice  float64
	}{
		{
			name:        "1_long_intracandle_stop_loss",
			pos:         domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 101, StopLoss: 95.95, TakeProfit: 111.1, EntryTime: now},
			intracandle: true,
			bar:         bar(100, 94, 98),
			wantExit:    true,
			wantReason:  ReasonStopLoss,
			wantPrice:   95.95,
		},
		{
			name:        "2_long_intracandle_take_profit",
			pos:         domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 101, StopLoss: 95.95, TakeProfit: 111.1, EntryTime: now},
			intracandle: true,
			bar:         bar(115, 96, 97),
			wantExit:    true,
			wantReason:  ReasonTakeProfit,
			wantPrice:   111.1,
		},
		{
			name:        "3_long_sl_wins_tie",
			pos:         domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 101, StopLoss: 95.95, TakeProfit: 111.1, EntryTime: now},
			intracandle: true,
			bar:         bar(115, 94, 105),
			wantExit:    true,
			wantReason:  ReasonStopLoss,
			wantPrice:   95.95,
		},
		{
			name:        "4_close_mode_no_exit",
			pos:         domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 101, StopLoss: 95.95, TakeProfit: 111.1, EntryTime: now},
			intracandle: false,
			bar:         bar(100, 94, 98),
			wantExit:    false,
		},
		{
			name:        "6_short_intracandle_stop_loss",
			pos:         domain.Position{Symbol: "X", Side: domain.SideShort, EntryPrice: 99, StopLoss: 103.95, TakeProfit: 89.1, EntryTime: now},
			intracandle: true,
			bar:         bar(105, 98, 101),
			wantExit:    true,
			wantReason:  ReasonStopLoss,
			wantPrice:   103.95,
		},
		{
			name:        "7_short_sl_wins_tie",
			pos:         domain.Position{Symbol: "X", Side: domain.SideShort, EntryPrice: 99, StopLoss: 103.95, TakeProfit: 89.1, EntryTime: now},
			intracandle: true,
			bar:         bar(106, 87, 105),
			wantExit:    true,
			wantReason:  ReasonStopLoss,
			wantPrice:   103.95,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Intracandle: tc.intracandle, StopLossPercent: 0.05}
			pos := tc.pos
			d := Evaluate(context.Background(), cfg, &pos, tc.bar, tc.bar.Close, now, nil)
			assert.Equal(t, tc.wantExit, d.Exit)
			if tc.wantExit {
				assert.Equal(t, tc.wantReason, d.Reason)
				assert.Equal(t, tc.wantPrice, d.ExitPrice)
			}
		})
	}
}

func TestEvaluate_TrailingStopScenario5(t *testing.T) {
	now := time.Now()
	pos := domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 101, StopLoss: 95.95, EntryTime: now}
	cfg := Config{
		Intracandle:     true,
		StopLossPercent: 0.05,
		Trailing:        TrailingConfig{Enabled: true, ActivationPercent: 0.05, CallbackPercent: 0.03},
	}
	bar1 := bar(108, 103, 97)

	d := Evaluate(context.Background(), cfg, &pos, bar1, 97, now, nil)
	require.NotNil(t, pos.Trailing)
	assert.True(t, pos.Trailing.Active)
	assert.InDelta(t, 108*0.97, pos.StopLoss, 1e-9)
	assert.True(t, d.Exit)
	assert.Equal(t, ReasonTrailingStop, d.Reason)
	assert.InDelta(t, 104.76, d.ExitPrice, 1e-9)
}

func TestCalcBreakEvenStop_NeverLoosens(t *testing.T) {
	// long: currentSL already past break-even target -> no move
	got := CalcBreakEvenStop(domain.SideLong, 1000, 1001, 0.05, 0.03, 0.001)
	assert.Nil(t, got)

	// long: currentSL below target -> moves to entry*(1+bump)
	got = CalcBreakEvenStop(domain.SideLong, 1000, 950, 0.05, 0.03, 0.001)
	require.NotNil(t, got)
	assert.InDelta(t, 1001, *got, 1e-9)

	// short: currentSL already past break-even target -> no move
	got = CalcBreakEvenStop(domain.SideShort, 1000, 999, 0.05, 0.03, 0.001)
	assert.Nil(t, got)

	// short: currentSL above target -> moves to entry*(1-bump)
	got = CalcBreakEvenStop(domain.SideShort, 1000, 1050, 0.05, 0.03, 0.001)
	require.NotNil(t, got)
	assert.InDelta(t, 999, *got, 1e-9)
}

func TestEvaluate_ROITable(t *testing.T) {
	now := time.Now()
	entryTime := now.Add(-90 * time.Minute)
	pos := domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 100, StopLoss: 90, EntryTime: entryTime}
	cfg := Config{
		Intracandle: true,
		MinimalROI:  map[int]float64{0: 0.10, 60: 0.05, 120: 0.02},
	}
	d := Evaluate(context.Background(), cfg, &pos, bar(106, 105, 106), 106, now, nil)
	assert.True(t, d.Exit)
	assert.Equal(t, ReasonROI, d.Reason)
}

func TestEvaluate_TimeStop(t *testing.T) {
	now := time.Now()
	entryTime := now.Add(-10 * time.Hour)
	pos := domain.Position{Symbol: "X", Side: domain.SideLong, EntryPrice: 100, StopLoss: 90, EntryTime: entryTime}
	cfg := Config{Intracandle: true, TimeStopHours: 6}

	d := Evaluate(context.Background(), cfg, &pos, bar(99, 98, 99), 99, now, nil)
	assert.True(t, d.Exit)
	assert.Equal(t, ReasonTimeStop, d.Reason)
}
