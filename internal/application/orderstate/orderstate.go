// Package orderstate tracks every order the engine submits from placement
// through a terminal exchange state, escalating to a forced market exit
// when exit orders repeatedly time out.
package orderstate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// ForcedExitThreshold is the number of consecutive exit-order timeouts that
// escalates a position to a market-out forced close.
const ForcedExitThreshold = 3

// PartialFillWarningRatio is the fill ratio below which confirm emits a
// partial-fill warning.
const PartialFillWarningRatio = 0.95

// ForceExitFunc closes a position unconditionally — cancelling any resting
// orders, submitting a market-out order, and recording the exit trade — the
// same contract as the Execution Adapter's ForceExit. It is set by whichever
// Adapter owns this Machine; kept as a func type rather than an interface on
// execution.Adapter to avoid an import cycle (execution already imports
// orderstate).
type ForceExitFunc func(ctx context.Context, account *domain.Account, symbol string, price float64, now time.Time) error

// Machine tracks pending orders for one scenario's account and reconciles
// them against the exchange.
type Machine struct {
	client    ports.ExchangeClient
	notifier  ports.Notifier
	forceExit ForceExitFunc
}

// New builds an order state Machine.
func New(client ports.ExchangeClient, notifier ports.Notifier) *Machine {
	return &Machine{client: client, notifier: notifier}
}

// SetForceExit wires the Machine to the owning Adapter's ForceExit so
// repeated exit-order timeouts escalate through the same cancel-everything/
// market-out/notify path a manual forced exit takes, instead of the Machine
// dropping the position locally on its own.
func (m *Machine) SetForceExit(fn ForceExitFunc) {
	m.forceExit = fn
}

// Register adds a PendingOrder to the account's open-order table with an
// absolute timeout deadline.
func (m *Machine) Register(account *domain.Account, order domain.PendingOrder) {
	if account.OpenOrders == nil {
		account.OpenOrders = make(map[string]domain.PendingOrder)
	}
	account.OpenOrders[order.OrderID] = order
}

// ConfirmResult is the outcome of Confirm.
type ConfirmResult struct {
	PartialFillWarning bool
	FillRatio          float64
}

// Confirm records a fill against a previously registered order and removes
// it from the open-order table (terminal states are not retained locally).
func (m *Machine) Confirm(account *domain.Account, orderID string, filledQty, requestedQty float64) ConfirmResult {
	delete(account.OpenOrders, orderID)
	ratio := 0.0
	if requestedQty > 0 {
		ratio = filledQty / requestedQty
	}
	res := ConfirmResult{FillRatio: ratio, PartialFillWarning: ratio < PartialFillWarningRatio}
	if res.PartialFillWarning {
		slog.Warn("partial fill", "order_id", orderID, "fill_ratio", ratio)
	}
	return res
}

// CheckTimeouts queries the exchange state of every order past its
// deadline and applies the terminal-state transition table from spec §4.6.
// now is the evaluation instant (so tests can pass a fixed clock).
func (m *Machine) CheckTimeouts(ctx context.Context, account *domain.Account, now time.Time) error {
	return m.scan(ctx, account, now, false)
}

// ScanOpenOrders mirrors CheckTimeouts, run once at process startup to
// detect orphaned orders from a previous run.
func (m *Machine) ScanOpenOrders(ctx context.Context, account *domain.Account, now time.Time) error {
	return m.scan(ctx, account, now, true)
}

func (m *Machine) scan(ctx context.Context, account *domain.Account, now time.Time, startup bool) error {
	for orderID, pending := range account.OpenOrders {
		if now.Before(pending.Deadline()) {
			continue
		}
		exOrder, err := m.client.GetOrder(ctx, pending.Symbol, orderID)
		if err != nil {
			slog.Warn("check timeout: get order failed", "order_id", orderID, "err", err)
			continue
		}
		if err := m.applyOrderState(ctx, account, pending, exOrder, now); err != nil {
			return fmt.Errorf("orderstate.scan: apply %s: %w", orderID, err)
		}
	}
	return nil
}

func (m *Machine) applyOrderState(ctx context.Context, account *domain.Account, pending domain.PendingOrder, exOrder ports.ExchangeOrder, now time.Time) error {
	switch exOrder.Status {
	case domain.OrderFilled, domain.OrderPartiallyFilled:
		m.Confirm(account, pending.OrderID, exOrder.ExecutedQty, pending.RequestedQty)
	case domain.OrderNew:
		if err := m.client.CancelOrder(ctx, pending.Symbol, pending.OrderID); err != nil {
			slog.Warn("cancel timed-out order failed", "order_id", pending.OrderID, "err", err)
		}
		delete(account.OpenOrders, pending.OrderID)
		if pending.Purpose == domain.PurposeExit {
			m.onExitTimeout(ctx, account, pending, now)
		}
	default: // CANCELED, EXPIRED, REJECTED
		delete(account.OpenOrders, pending.OrderID)
	}
	return nil
}

// onExitTimeout increments the position's exit-timeout counter and
// escalates to a forced market exit once it reaches ForcedExitThreshold.
func (m *Machine) onExitTimeout(ctx context.Context, account *domain.Account, pending domain.PendingOrder, now time.Time) {
	pos, ok := account.Positions[pending.Symbol]
	if !ok {
		return
	}
	pos.ExitTimeoutCount++
	account.Positions[pending.Symbol] = pos

	if pos.ExitTimeoutCount < ForcedExitThreshold {
		return
	}

	if m.forceExit != nil {
		if err := m.forceExit(ctx, account, pending.Symbol, pos.EntryPrice, now); err != nil {
			slog.Warn("forced exit failed", "symbol", pending.Symbol, "err", err)
		}
		return
	}

	// No Adapter wired (e.g. the Machine exercised on its own in tests):
	// fall back to cancelling the native stop and dropping the position
	// locally so it never lingers as a phantom position forever.
	if pos.ExchangeSLOrderID != "" {
		if err := m.client.CancelOrder(ctx, pending.Symbol, pos.ExchangeSLOrderID); err != nil {
			slog.Warn("cancel native stop failed during forced exit", "symbol", pending.Symbol, "err", err)
		}
	}
	delete(account.Positions, pending.Symbol)
	if m.notifier != nil {
		m.notifier.Send(ctx, ports.Alert{
			Kind:    ports.AlertForcedExit,
			Scope:   pending.Symbol,
			Message: fmt.Sprintf("forced exit after %d consecutive exit-order timeouts", pos.ExitTimeoutCount),
			At:      now,
		})
	}
}

// SyncExchangeStopLosses queries each position's exchange-native stop order
// and, if filled, closes the local position at the reported fill price
// (falling back to the order's limit price) and rolls the loss into the
// account's daily-loss ledger.
func (m *Machine) SyncExchangeStopLosses(ctx context.Context, account *domain.Account, now time.Time) error {
	for symbol, pos := range account.Positions {
		if pos.ExchangeSLOrderID == "" {
			continue
		}
		exOrder, err := m.client.GetOrder(ctx, symbol, pos.ExchangeSLOrderID)
		if err != nil {
			slog.Warn("sync stop loss: get order failed", "symbol", symbol, "err", err)
			continue
		}
		if exOrder.Status != domain.OrderFilled {
			continue
		}
		fillPrice := exOrder.Price
		fee := feeFromFills(exOrder.Fills)
		if len(exOrder.Fills) > 0 {
			fillPrice = averageFillPrice(exOrder.Fills)
		}
		trade := closeTrade(pos, fillPrice, fee, now)
		if domain.NormalizeSide(pos.Side) == domain.SideShort {
			account.USDT += pos.MarginUSDT + trade.PnL
		} else {
			account.USDT += trade.USDTAmount - fee
		}
		account.ClampCash()
		account.AppendTrade(trade)
		delete(account.Positions, symbol)
	}
	return nil
}

func feeFromFills(fills []ports.Fill) float64 {
	var fee float64
	for _, f := range fills {
		fee += f.Commission
	}
	return fee
}

func averageFillPrice(fills []ports.Fill) float64 {
	var notional, qty float64
	for _, f := range fills {
		notional += f.Price * f.Qty
		qty += f.Qty
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

func closeTrade(pos domain.Position, price, fee float64, now time.Time) domain.Trade {
	pnlPercent := pos.ProfitRatio(price)
	usdtAmount := pos.Quantity * price
	pnl := pnlPercent*pos.Quantity*pos.EntryPrice - fee
	return domain.Trade{
		ID:         uuid.New().String(),
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		Price:      price,
		USDTAmount: usdtAmount,
		Fee:        fee,
		Timestamp:  now,
		Reason:     "exchange_stop_loss_fill",
		IsExit:     true,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
}
