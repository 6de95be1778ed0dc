package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tradeloop/enginecore/internal/application/exitengine"
	"github.com/tradeloop/enginecore/internal/application/orderstate"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
	"github.com/tradeloop/enginecore/internal/ports"
)

// LiveExecutor places real orders against an exchange, mirroring the
// teacher's internal/application/engine/live/orders.go: market entry,
// a native exchange-side stop-loss attached immediately after fill, and
// cancel-before-close ordering on exit.
type LiveExecutor struct {
	cfg      Config
	client   ports.ExchangeClient
	orders   *orderstate.Machine
	notifier ports.Notifier
}

// NewLive builds a LiveExecutor and wires the order state Machine's
// forced-exit escalation back through this executor's ForceExit, so a
// position whose exit order times out three times in a row gets the same
// cancel-everything/market-out/notify treatment as a manually triggered
// forced exit.
func NewLive(cfg Config, client ports.ExchangeClient, orders *orderstate.Machine, notifier ports.Notifier) *LiveExecutor {
	l := &LiveExecutor{cfg: cfg, client: client, orders: orders, notifier: notifier}
	orders.SetForceExit(func(ctx context.Context, account *domain.Account, symbol string, price float64, now time.Time) error {
		_, err := l.ForceExit(ctx, account, symbol, price, now)
		return err
	})
	return l
}

// defaultOrderTimeoutMs is used when a scenario leaves order_timeout_seconds
// unset; config.Load itself defaults this to 30, so this only guards
// executors built outside that loader (e.g. in tests).
const defaultOrderTimeoutMs = 30_000

func (l *LiveExecutor) orderTimeoutMs() int64 {
	if l.cfg.OrderTimeoutSeconds <= 0 {
		return defaultOrderTimeoutMs
	}
	return int64(l.cfg.OrderTimeoutSeconds) * 1000
}

// OpenLong submits a market buy and attaches a native stop-loss order.
func (l *LiveExecutor) OpenLong(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error) {
	return l.open(ctx, account, signal, domain.SideLong, equity, positionRatio, stopLoss, takeProfit, now)
}

// OpenShort submits a market sell to open a short and attaches a native
// stop-loss order on the buy side.
func (l *LiveExecutor) OpenShort(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error) {
	return l.open(ctx, account, signal, domain.SideShort, equity, positionRatio, stopLoss, takeProfit, now)
}

func (l *LiveExecutor) open(ctx context.Context, account *domain.Account, sig domain.Signal, side domain.Side, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error) {
	if !validPrice(sig.Price) {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}, nil
	}
	usdtToSpend, reason, ok := preTradeCheck(*account, sig.Symbol, equity, positionRatio, l.cfg)
	if !ok {
		return Result{Skipped: true, Reason: reason}, nil
	}
	if l.cfg.MaxEntrySlippage > 0 {
		current, err := l.client.GetPrice(ctx, sig.Symbol)
		if err != nil {
			return Result{}, fmt.Errorf("execution.open: get price: %w", err)
		}
		if !validPrice(current) {
			return Result{Skipped: true, Reason: ReasonInvalidPrice}, nil
		}
		if math.Abs(current-sig.Price)/sig.Price > l.cfg.MaxEntrySlippage {
			return Result{Skipped: true, Reason: ReasonEntrySlippage}, nil
		}
	}

	var exOrder ports.ExchangeOrder
	var err error
	if side == domain.SideShort {
		qty := usdtToSpend / sig.Price
		exOrder, err = l.client.MarketSell(ctx, sig.Symbol, qty)
	} else {
		exOrder, err = l.client.MarketBuy(ctx, sig.Symbol, usdtToSpend)
	}
	if err != nil {
		return Result{}, fmt.Errorf("execution.open: market order: %w", err)
	}

	fillPrice := exOrder.Price
	if len(exOrder.Fills) > 0 {
		fillPrice = averageFillPrice(exOrder.Fills)
	}
	if !validPrice(fillPrice) {
		fillPrice = sig.Price
	}
	qty := exOrder.ExecutedQty
	fee := feeFromFills(exOrder.Fills)
	if fee == 0 {
		fee = usdtToSpend * l.cfg.FeeRate
	}

	account.USDT -= usdtToSpend + fee
	account.ClampCash()

	l.orders.Register(account, domain.PendingOrder{
		OrderID:      exOrder.OrderID,
		Symbol:       sig.Symbol,
		Side:         side,
		Purpose:      domain.PurposeEntry,
		PlacedAt:     now,
		RequestedQty: qty,
		TimeoutMs:    l.orderTimeoutMs(),
	})
	l.orders.Confirm(account, exOrder.OrderID, qty, qty)

	pos := domain.Position{
		Symbol:       sig.Symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   fillPrice,
		EntryTime:    now,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		EntryOrderID: exOrder.OrderID,
	}
	if side == domain.SideShort {
		pos.MarginUSDT = usdtToSpend
	}

	slOrder, err := l.client.PlaceStopLossOrder(ctx, sig.Symbol, side, qty, stopLoss)
	if err != nil {
		notify(l.notifier, ctx, ports.AlertError, sig.Symbol, fmt.Sprintf("place stop-loss failed: %v", err), now)
	} else {
		pos.ExchangeSLOrderID = slOrder.OrderID
		pos.ExchangeSLPrice = stopLoss
		l.orders.Register(account, domain.PendingOrder{
			OrderID:      slOrder.OrderID,
			Symbol:       sig.Symbol,
			Side:         side,
			Purpose:      domain.PurposeExit,
			PlacedAt:     now,
			RequestedQty: qty,
			TimeoutMs:    l.orderTimeoutMs(),
		})
	}

	if account.Positions == nil {
		account.Positions = make(map[string]domain.Position)
	}
	account.Positions[sig.Symbol] = pos

	trade := domain.Trade{
		ID:         tradeID(sig.Symbol, "open", now),
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   qty,
		Price:      fillPrice,
		USDTAmount: usdtToSpend,
		Fee:        fee,
		Timestamp:  now,
		Reason:     "entry",
	}
	account.AppendTrade(trade)
	notify(l.notifier, ctx, ports.AlertEntry, sig.Symbol, fmt.Sprintf("opened %s %s at %.6f", side, sig.Symbol, fillPrice), now)
	return Result{Trade: &trade}, nil
}

// CloseLong cancels the position's exchange-native stop before selling out.
func (l *LiveExecutor) CloseLong(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error) {
	return l.close(ctx, account, symbol, domain.SideLong, price, reason, now)
}

// CloseShort cancels the position's exchange-native stop before buying back.
func (l *LiveExecutor) CloseShort(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error) {
	return l.close(ctx, account, symbol, domain.SideShort, price, reason, now)
}

func (l *LiveExecutor) close(ctx context.Context, account *domain.Account, symbol string, side domain.Side, price float64, reason string, now time.Time) (Result, error) {
	pos, ok := account.Positions[symbol]
	if !ok || domain.NormalizeSide(pos.Side) != side {
		return Result{Skipped: true, Reason: ReasonNotHeld}, nil
	}
	if !validPrice(price) {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}, nil
	}

	if pos.ExchangeSLOrderID != "" {
		if err := l.client.CancelOrder(ctx, symbol, pos.ExchangeSLOrderID); err != nil {
			notify(l.notifier, ctx, ports.AlertError, symbol, fmt.Sprintf("cancel stop-loss failed: %v", err), now)
		}
		delete(account.OpenOrders, pos.ExchangeSLOrderID)
	}

	var exOrder ports.ExchangeOrder
	var err error
	if side == domain.SideShort {
		exOrder, err = l.client.MarketBuyByQty(ctx, symbol, pos.Quantity)
	} else {
		exOrder, err = l.client.MarketSell(ctx, symbol, pos.Quantity)
	}
	if err != nil {
		return Result{}, fmt.Errorf("execution.close: market order: %w", err)
	}

	l.orders.Register(account, domain.PendingOrder{
		OrderID:      exOrder.OrderID,
		Symbol:       symbol,
		Side:         side,
		Purpose:      domain.PurposeExit,
		PlacedAt:     now,
		RequestedQty: pos.Quantity,
		TimeoutMs:    l.orderTimeoutMs(),
	})
	l.orders.Confirm(account, exOrder.OrderID, exOrder.ExecutedQty, pos.Quantity)

	fillPrice := exOrder.Price
	if len(exOrder.Fills) > 0 {
		fillPrice = averageFillPrice(exOrder.Fills)
	}
	if !validPrice(fillPrice) {
		fillPrice = price
	}
	usdtAmount := pos.Quantity * fillPrice
	fee := feeFromFills(exOrder.Fills)
	if fee == 0 {
		fee = usdtAmount * l.cfg.FeeRate
	}
	pnlPercent := pos.ProfitRatio(fillPrice)
	pnl := pnlPercent*pos.Quantity*pos.EntryPrice - fee

	if side == domain.SideShort {
		account.USDT += pos.MarginUSDT + pnl
	} else {
		account.USDT += usdtAmount - fee
	}
	account.ClampCash()
	delete(account.Positions, symbol)

	trade := domain.Trade{
		ID:         tradeID(symbol, "close", now),
		Symbol:     symbol,
		Side:       side,
		Quantity:   pos.Quantity,
		Price:      fillPrice,
		USDTAmount: usdtAmount,
		Fee:        fee,
		Timestamp:  now,
		Reason:     reason,
		IsExit:     true,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	account.AppendTrade(trade)
	notify(l.notifier, ctx, ports.AlertExit, symbol, fmt.Sprintf("closed %s %s at %.6f (%s)", side, symbol, fillPrice, reason), now)
	return Result{Trade: &trade}, nil
}

// PartialClose market-sells (or buys back) ratio of an open position's
// quantity without touching its resting native stop-loss order, which stays
// attached to the position's requested quantity rather than its live
// remaining quantity — SyncExchangeStopLosses reconciles any mismatch the
// next time the stop itself fills or is replaced.
func (l *LiveExecutor) PartialClose(ctx context.Context, account *domain.Account, symbol string, ratio, price float64, reason string, now time.Time) (Result, error) {
	pos, ok := account.Positions[symbol]
	if !ok {
		return Result{Skipped: true, Reason: ReasonNotHeld}, nil
	}
	if !validPrice(price) || ratio <= 0 || ratio >= 1 {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}, nil
	}
	side := domain.NormalizeSide(pos.Side)
	closeQty := pos.Quantity * ratio

	var exOrder ports.ExchangeOrder
	var err error
	if side == domain.SideShort {
		exOrder, err = l.client.MarketBuyByQty(ctx, symbol, closeQty)
	} else {
		exOrder, err = l.client.MarketSell(ctx, symbol, closeQty)
	}
	if err != nil {
		return Result{}, fmt.Errorf("execution.partialClose: market order: %w", err)
	}

	l.orders.Register(account, domain.PendingOrder{
		OrderID:      exOrder.OrderID,
		Symbol:       symbol,
		Side:         side,
		Purpose:      domain.PurposeExit,
		PlacedAt:     now,
		RequestedQty: closeQty,
		TimeoutMs:    l.orderTimeoutMs(),
	})
	l.orders.Confirm(account, exOrder.OrderID, exOrder.ExecutedQty, closeQty)

	fillPrice := exOrder.Price
	if len(exOrder.Fills) > 0 {
		fillPrice = averageFillPrice(exOrder.Fills)
	}
	if !validPrice(fillPrice) {
		fillPrice = price
	}
	usdtAmount := closeQty * fillPrice
	fee := feeFromFills(exOrder.Fills)
	if fee == 0 {
		fee = usdtAmount * l.cfg.FeeRate
	}
	pnlPercent := pos.ProfitRatio(fillPrice)
	pnl := pnlPercent*closeQty*pos.EntryPrice - fee

	if side == domain.SideShort {
		releasedMargin := pos.MarginUSDT * ratio
		account.USDT += releasedMargin + pnl
		pos.MarginUSDT -= releasedMargin
	} else {
		account.USDT += usdtAmount - fee
	}
	account.ClampCash()
	pos.Quantity -= closeQty
	account.Positions[symbol] = pos

	trade := domain.Trade{
		ID:         tradeID(symbol, "partial_close", now),
		Symbol:     symbol,
		Side:       side,
		Quantity:   closeQty,
		Price:      fillPrice,
		USDTAmount: usdtAmount,
		Fee:        fee,
		Timestamp:  now,
		Reason:     reason,
		IsExit:     true,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	account.AppendTrade(trade)
	notify(l.notifier, ctx, ports.AlertExit, symbol, fmt.Sprintf("partial close %s %s at %.6f (%s)", side, symbol, fillPrice, reason), now)
	return Result{Trade: &trade}, nil
}

// ForceExit cancels every resting order on the symbol and market-closes the
// position unconditionally, for use after repeated exit-order timeouts or an
// emergency halt.
func (l *LiveExecutor) ForceExit(ctx context.Context, account *domain.Account, symbol string, price float64, now time.Time) (Result, error) {
	pos, ok := account.Positions[symbol]
	if !ok {
		return Result{Skipped: true, Reason: ReasonNotHeld}, nil
	}
	if pos.ExchangeSLOrderID != "" {
		_ = l.client.CancelOrder(ctx, symbol, pos.ExchangeSLOrderID)
	}
	if pos.TakeProfitOrderID != "" {
		_ = l.client.CancelOrder(ctx, symbol, pos.TakeProfitOrderID)
	}
	side := domain.NormalizeSide(pos.Side)
	res, err := l.close(ctx, account, symbol, side, price, "forced_exit", now)
	if err == nil && !res.Skipped {
		notify(l.notifier, ctx, ports.AlertForcedExit, symbol, "forced exit executed", now)
	}
	return res, err
}

// CheckExitConditions runs the exit engine per open position, reconciles
// exchange-native stop fills, checks order timeouts, and market-closes any
// position the exit engine flags that the exchange hasn't already closed.
func (l *LiveExecutor) CheckExitConditions(ctx context.Context, account *domain.Account, cfg exitengine.Config, prices map[string]float64, klines map[string]domain.Kline, st *strategy.Strategy, now time.Time) ([]domain.Trade, error) {
	if err := l.orders.SyncExchangeStopLosses(ctx, account, now); err != nil {
		return nil, fmt.Errorf("execution.checkExitConditions: sync stops: %w", err)
	}
	if err := l.orders.CheckTimeouts(ctx, account, now); err != nil {
		return nil, fmt.Errorf("execution.checkExitConditions: check timeouts: %w", err)
	}

	var trades []domain.Trade
	for symbol, pos := range account.Positions {
		price, ok := prices[symbol]
		if !ok || !validPrice(price) {
			continue
		}
		k := klines[symbol]
		posCopy := pos
		decision := exitengine.Evaluate(ctx, cfg, &posCopy, k, price, now, st)
		account.Positions[symbol] = posCopy
		if !decision.Exit {
			continue
		}
		var res Result
		var err error
		if domain.NormalizeSide(posCopy.Side) == domain.SideShort {
			res, err = l.CloseShort(ctx, account, symbol, decision.ExitPrice, string(decision.Reason), now)
		} else {
			res, err = l.CloseLong(ctx, account, symbol, decision.ExitPrice, string(decision.Reason), now)
		}
		if err != nil {
			return trades, err
		}
		if !res.Skipped && res.Trade != nil {
			trades = append(trades, *res.Trade)
			if st != nil && st.OnTradeClosed != nil {
				st.OnTradeClosed(ctx, *res.Trade)
			}
		}
	}
	return trades, nil
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

func notify(notifier ports.Notifier, ctx context.Context, kind ports.AlertKind, scope, message string, now time.Time) {
	if notifier == nil {
		return
	}
	notifier.Send(ctx, ports.Alert{Kind: kind, Scope: scope, Message: message, At: now})
}
