package execution

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/application/exitengine"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
)

// PaperExecutor simulates fills at signal price adjusted by a fixed
// slippage percent and deducts a flat fee, mirroring the teacher's
// paper engine (internal/application/engine/paper/simulation.go)
// without its order-book queue modeling, which spec §4.7 does not ask
// for: a scenario's paper account only needs a fill price and a fee.
// It never returns an error; ctx is accepted only so it satisfies Adapter
// alongside LiveExecutor.
type PaperExecutor struct {
	cfg Config
}

// NewPaper builds a PaperExecutor.
func NewPaper(cfg Config) *PaperExecutor {
	return &PaperExecutor{cfg: cfg}
}

// OpenLong simulates entering a long position sized at equity*positionRatio.
func (p *PaperExecutor) OpenLong(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error) {
	return p.open(account, signal, domain.SideLong, equity, positionRatio, stopLoss, takeProfit, now), nil
}

// OpenShort simulates entering a short position, locking the spent USDT as
// margin on the position rather than releasing it to the exchange.
func (p *PaperExecutor) OpenShort(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error) {
	return p.open(account, signal, domain.SideShort, equity, positionRatio, stopLoss, takeProfit, now), nil
}

func (p *PaperExecutor) open(account *domain.Account, sig domain.Signal, side domain.Side, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) Result {
	if !validPrice(sig.Price) {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}
	}
	usdtToSpend, reason, ok := preTradeCheck(*account, sig.Symbol, equity, positionRatio, p.cfg)
	if !ok {
		return Result{Skipped: true, Reason: reason}
	}

	slip := p.cfg.SlippagePercent
	fillPrice := sig.Price * (1 + slip)
	if side == domain.SideShort {
		fillPrice = sig.Price * (1 - slip)
	}
	qty := usdtToSpend / fillPrice
	fee := usdtToSpend * p.cfg.FeeRate

	account.USDT -= usdtToSpend + fee
	account.ClampCash()

	pos := domain.Position{
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: fillPrice,
		EntryTime:  now,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	if side == domain.SideShort {
		pos.MarginUSDT = usdtToSpend
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
		Slippage:   slip,
		Timestamp:  now,
		Reason:     "entry",
	}
	account.AppendTrade(trade)
	return Result{Trade: &trade}
}

// CloseLong simulates exiting a long position at price adjusted by slippage.
func (p *PaperExecutor) CloseLong(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error) {
	return p.close(account, symbol, domain.SideLong, price, reason, now), nil
}

// CloseShort simulates exiting a short position, releasing its locked margin.
func (p *PaperExecutor) CloseShort(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error) {
	return p.close(account, symbol, domain.SideShort, price, reason, now), nil
}

func (p *PaperExecutor) close(account *domain.Account, symbol string, side domain.Side, price float64, reason string, now time.Time) Result {
	pos, ok := account.Positions[symbol]
	if !ok || domain.NormalizeSide(pos.Side) != side {
		return Result{Skipped: true, Reason: ReasonNotHeld}
	}
	if !validPrice(price) {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}
	}

	slip := p.cfg.SlippagePercent
	fillPrice := price * (1 - slip)
	if side == domain.SideShort {
		fillPrice = price * (1 + slip)
	}
	usdtAmount := pos.Quantity * fillPrice
	fee := usdtAmount * p.cfg.FeeRate
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
		Slippage:   slip,
		Timestamp:  now,
		Reason:     reason,
		IsExit:     true,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	account.AppendTrade(trade)
	return Result{Trade: &trade}
}

// PartialClose simulates closing ratio (0,1) of an open position's quantity
// at price adjusted by slippage, crediting the proportional share of a
// short's locked margin and leaving the remainder of the position open —
// the fill mechanics mirror close, scaled by ratio.
func (p *PaperExecutor) PartialClose(ctx context.Context, account *domain.Account, symbol string, ratio, price float64, reason string, now time.Time) (Result, error) {
	return p.partialClose(account, symbol, ratio, price, reason, now), nil
}

func (p *PaperExecutor) partialClose(account *domain.Account, symbol string, ratio, price float64, reason string, now time.Time) Result {
	pos, ok := account.Positions[symbol]
	if !ok {
		return Result{Skipped: true, Reason: ReasonNotHeld}
	}
	if !validPrice(price) || ratio <= 0 || ratio >= 1 {
		return Result{Skipped: true, Reason: ReasonInvalidPrice}
	}
	side := domain.NormalizeSide(pos.Side)

	slip := p.cfg.SlippagePercent
	fillPrice := price * (1 - slip)
	if side == domain.SideShort {
		fillPrice = price * (1 + slip)
	}
	closedQty := pos.Quantity * ratio
	usdtAmount := closedQty * fillPrice
	fee := usdtAmount * p.cfg.FeeRate
	pnlPercent := pos.ProfitRatio(fillPrice)
	pnl := pnlPercent*closedQty*pos.EntryPrice - fee

	if side == domain.SideShort {
		releasedMargin := pos.MarginUSDT * ratio
		account.USDT += releasedMargin + pnl
		pos.MarginUSDT -= releasedMargin
	} else {
		account.USDT += usdtAmount - fee
	}
	account.ClampCash()
	pos.Quantity -= closedQty
	account.Positions[symbol] = pos

	trade := domain.Trade{
		ID:         tradeID(symbol, "partial_close", now),
		Symbol:     symbol,
		Side:       side,
		Quantity:   closedQty,
		Price:      fillPrice,
		USDTAmount: usdtAmount,
		Fee:        fee,
		Slippage:   slip,
		Timestamp:  now,
		Reason:     reason,
		IsExit:     true,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	account.AppendTrade(trade)
	return Result{Trade: &trade}
}

// ForceExit is a no-op in paper mode: there are no live orders to cancel,
// so the runtime should fall back to CloseLong/CloseShort directly.
func (p *PaperExecutor) ForceExit(ctx context.Context, account *domain.Account, symbol string, price float64, now time.Time) (Result, error) {
	return Result{Skipped: true, Reason: ReasonPaperUnsupported}, nil
}

// CheckExitConditions runs the exit engine against every open position and
// closes any that fire, returning the resulting trades. Positions are
// visited in map order, so the order of the returned trades is not defined.
func (p *PaperExecutor) CheckExitConditions(ctx context.Context, account *domain.Account, cfg exitengine.Config, prices map[string]float64, klines map[string]domain.Kline, st *strategy.Strategy, now time.Time) ([]domain.Trade, error) {
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
		if domain.NormalizeSide(posCopy.Side) == domain.SideShort {
			res = p.close(account, symbol, domain.SideShort, decision.ExitPrice, string(decision.Reason), now)
		} else {
			res = p.close(account, symbol, domain.SideLong, decision.ExitPrice, string(decision.Reason), now)
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
