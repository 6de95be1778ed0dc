package orderstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

type fakeExchange struct {
	ports.ExchangeClient
	orders    map[string]ports.ExchangeOrder
	cancelled []string
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, orderID string) (ports.ExchangeOrder, error) {
	return f.orders[orderID], nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeNotifier struct {
	alerts []ports.Alert
}

func (n *fakeNotifier) Send(ctx context.Context, a ports.Alert) {
	n.alerts = append(n.alerts, a)
}

func TestConfirm_PartialFillWarning(t *testing.T) {
	m := New(&fakeExchange{}, nil)
	account := domain.NewAccount(1000, time.Now())
	account.OpenOrders["o1"] = domain.PendingOrder{OrderID: "o1", Symbol: "BTCUSDT", RequestedQty: 10}

	res := m.Confirm(&account, "o1", 9, 10)
	assert.True(t, res.PartialFillWarning)
	assert.InDelta(t, 0.9, res.FillRatio, 1e-9)
	_, stillOpen := account.OpenOrders["o1"]
	assert.False(t, stillOpen)
}

func TestConfirm_FullFillNoWarning(t *testing.T) {
	m := New(&fakeExchange{}, nil)
	account := domain.NewAccount(1000, time.Now())
	res := m.Confirm(&account, "o1", 10, 10)
	assert.False(t, res.PartialFillWarning)
}

func TestCheckTimeouts_NewOrderCancelledAndExitEscalates(t *testing.T) {
	exch := &fakeExchange{orders: map[string]ports.ExchangeOrder{
		"o1": {OrderID: "o1", Status: domain.OrderNew},
	}}
	notifier := &fakeNotifier{}
	m := New(exch, notifier)

	now := time.Now()
	account := domain.NewAccount(1000, now)
	account.Positions["BTCUSDT"] = domain.Position{Symbol: "BTCUSDT", Side: domain.SideLong, ExitTimeoutCount: 2}
	account.OpenOrders["o1"] = domain.PendingOrder{
		OrderID: "o1", Symbol: "BTCUSDT", Purpose: domain.PurposeExit,
		PlacedAt: now.Add(-time.Hour), TimeoutMs: 1000,
	}

	err := m.CheckTimeouts(context.Background(), &account, now)
	require.NoError(t, err)

	assert.Contains(t, exch.cancelled, "o1")
	_, hasPosition := account.Positions["BTCUSDT"]
	assert.False(t, hasPosition, "third consecutive exit timeout must force-close the position")
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, ports.AlertForcedExit, notifier.alerts[0].Kind)
}

func TestCheckTimeouts_NewOrderExitBelowThresholdJustIncrements(t *testing.T) {
	exch := &fakeExchange{orders: map[string]ports.ExchangeOrder{
		"o1": {OrderID: "o1", Status: domain.OrderNew},
	}}
	m := New(exch, nil)

	now := time.Now()
	account := domain.NewAccount(1000, now)
	account.Positions["BTCUSDT"] = domain.Position{Symbol: "BTCUSDT", Side: domain.SideLong, ExitTimeoutCount: 0}
	account.OpenOrders["o1"] = domain.PendingOrder{
		OrderID: "o1", Symbol: "BTCUSDT", Purpose: domain.PurposeExit,
		PlacedAt: now.Add(-time.Hour), TimeoutMs: 1000,
	}

	require.NoError(t, m.CheckTimeouts(context.Background(), &account, now))
	pos := account.Positions["BTCUSDT"]
	assert.Equal(t, 1, pos.ExitTimeoutCount)
}

func TestCheckTimeouts_FilledOrderConfirmsLocally(t *testing.T) {
	exch := &fakeExchange{orders: map[string]ports.ExchangeOrder{
		"o1": {OrderID: "o1", Status: domain.OrderFilled, ExecutedQty: 10},
	}}
	m := New(exch, nil)

	now := time.Now()
	account := domain.NewAccount(1000, now)
	account.OpenOrders["o1"] = domain.PendingOrder{
		OrderID: "o1", Symbol: "BTCUSDT", RequestedQty: 10,
		PlacedAt: now.Add(-time.Hour), TimeoutMs: 1000,
	}

	require.NoError(t, m.CheckTimeouts(context.Background(), &account, now))
	_, stillOpen := account.OpenOrders["o1"]
	assert.False(t, stillOpen)
}

func TestCheckTimeouts_SkipsOrdersBeforeDeadline(t *testing.T) {
	exch := &fakeExchange{orders: map[string]ports.ExchangeOrder{}}
	m := New(exch, nil)

	now := time.Now()
	account := domain.NewAccount(1000, now)
	account.OpenOrders["o1"] = domain.PendingOrder{
		OrderID: "o1", Symbol: "BTCUSDT", PlacedAt: now, TimeoutMs: 60_000,
	}

	require.NoError(t, m.CheckTimeouts(context.Background(), &account, now))
	_, stillOpen := account.OpenOrders["o1"]
	assert.True(t, stillOpen)
}

func TestSyncExchangeStopLosses_FilledClosesPositionAndRecordsLoss(t *testing.T) {
	exch := &fakeExchange{orders: map[string]ports.ExchangeOrder{
		"sl1": {OrderID: "sl1", Status: domain.OrderFilled, Price: 95,
			Fills: []ports.Fill{{Price: 95, Qty: 1}}},
	}}
	m := New(exch, nil)

	now := time.Now()
	account := domain.NewAccount(1000, now)
	account.USDT = 900 // entry already debited usdtToSpend+fee elsewhere
	account.Positions["BTCUSDT"] = domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1,
		EntryPrice: 100, ExchangeSLOrderID: "sl1",
	}

	require.NoError(t, m.SyncExchangeStopLosses(context.Background(), &account, now))
	_, hasPosition := account.Positions["BTCUSDT"]
	assert.False(t, hasPosition)
	require.Len(t, account.Trades, 1)
	assert.Less(t, account.Trades[0].PnL, 0.0)
	assert.Equal(t, account.Trades[0].PnL*-1, account.DailyLoss.Loss)
	// Filled stop must return the close proceeds to cash, not just drop the
	// position — the loss is ~5%, not the whole position notional.
	assert.InDelta(t, 900+account.Trades[0].USDTAmount-account.Trades[0].Fee, account.USDT, 1e-9)
}
