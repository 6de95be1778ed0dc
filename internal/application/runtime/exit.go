package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeloop/enginecore/internal/application/exitengine"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
	"github.com/tradeloop/enginecore/internal/ports"
)

// runExitEngine drives the Execution Adapter's CheckExitConditions for
// every open position (spec §4.1 phase (c), exit half; §4.5). It builds the
// shared exitengine.Config once per tick from the scenario's risk
// parameters — regime overrides are baked into a position's stop/take
// at entry time (pipeline.go), not re-derived here, so every open
// position is evaluated against the same base thresholds regardless of
// which regime was active when it opened.
func (s *Scenario) runExitEngine(ctx context.Context, account *domain.Account, prices map[string]float64, now time.Time) {
	if len(account.Positions) == 0 {
		return
	}
	cfg := s.exitConfig()
	klines := s.lastKlines(account)

	trades, err := s.exec.CheckExitConditions(ctx, account, cfg, prices, klines, s.strategy, now)
	if err != nil {
		slog.Warn("runtime: exit engine check failed", "scenario", s.cfg.ScenarioID, "err", err)
	}
	for _, t := range trades {
		s.closeHistory(ctx, t.Symbol, t, now)
		if s.cfg.Notify.OnExit {
			s.notify(ctx, ports.AlertExit, t.Symbol, "closed at "+formatPrice(t.Price)+" reason="+t.Reason, now)
		}
	}
}

// runAdjustPosition lets a strategy's optional AdjustPosition hook resize
// every still-open position once per tick, before the exit engine runs.
// The hook returns the signed USDT notional to add to (positive) or remove
// from (negative) the position; quantity scales proportionally and the
// account is debited/credited the same amount, same accounting a manual
// scale-in/scale-out trade would use.
func (s *Scenario) runAdjustPosition(ctx context.Context, account *domain.Account, prices map[string]float64, now time.Time) {
	if s.strategy == nil || s.strategy.AdjustPosition == nil || len(account.Positions) == 0 {
		return
	}
	klines := s.lastKlines(account)
	for symbol, pos := range account.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		ec := strategy.ExitContext{Symbol: symbol, CurrentPrice: price, Kline: klines[symbol], Now: now}
		delta := s.strategy.AdjustPosition(ctx, pos, ec)
		if delta == 0 {
			continue
		}
		if delta > 0 && delta > account.USDT {
			delta = account.USDT
		}
		pos.Quantity += delta / price
		if pos.Quantity < 0 {
			pos.Quantity = 0
		}
		account.Positions[symbol] = pos
		account.USDT -= delta
		account.ClampCash()
	}
}

// runTakeProfitStages fires any configured partial-close rung a position's
// profit has newly crossed, before the full exit engine runs — a stage that
// fires still leaves the remainder of the position subject to the normal
// stop/TP/trailing/ROI/time-stop precedence. Stages are evaluated in the
// order configured and each fires at most once per position, tracked by
// index in Position.TakeProfitStagesFired.
func (s *Scenario) runTakeProfitStages(ctx context.Context, account *domain.Account, prices map[string]float64, now time.Time) {
	stages := s.cfg.Risk.TakeProfitStages
	if len(stages) == 0 || len(account.Positions) == 0 {
		return
	}
	for symbol, pos := range account.Positions {
		price, ok := prices[symbol]
		if !ok || !validExitPrice(price) {
			continue
		}
		if len(pos.TakeProfitStagesFired) < len(stages) {
			fired := make([]bool, len(stages))
			copy(fired, pos.TakeProfitStagesFired)
			pos.TakeProfitStagesFired = fired
			account.Positions[symbol] = pos
		}
		profit := pos.ProfitRatio(price)
		for i, stage := range stages {
			if pos.TakeProfitStagesFired[i] || stage.CloseRatio <= 0 || stage.CloseRatio >= 1 {
				continue
			}
			if profit < stage.AtPercent {
				continue
			}
			if pos.Quantity <= 0 {
				break
			}
			res, err := s.exec.PartialClose(ctx, account, symbol, stage.CloseRatio, price, "take_profit_stage", now)
			if err != nil {
				slog.Warn("runtime: take-profit stage partial close failed", "scenario", s.cfg.ScenarioID, "symbol", symbol, "err", err)
				continue
			}
			if res.Skipped {
				continue
			}
			pos = account.Positions[symbol]
			pos.TakeProfitStagesFired[i] = true
			account.Positions[symbol] = pos
			if res.Trade != nil {
				s.closeHistory(ctx, symbol, *res.Trade, now)
				if s.cfg.Notify.OnExit {
					s.notify(ctx, ports.AlertExit, symbol, fmt.Sprintf("take-profit stage %d closed %.4f at %s", i+1, stage.CloseRatio, formatPrice(price)), now)
				}
			}
		}
	}
}

func validExitPrice(p float64) bool {
	return p > 0
}

// exitConfig resolves the exit engine's static per-tick config from the
// scenario's risk settings.
func (s *Scenario) exitConfig() exitengine.Config {
	return exitengine.Config{
		StopLossPercent:   s.cfg.Risk.StopLossPercent,
		TakeProfitPercent: s.cfg.Risk.TakeProfitPercent,
		Trailing: exitengine.TrailingConfig{
			Enabled:           s.cfg.Risk.TrailingStop.Enabled,
			ActivationPercent: s.cfg.Risk.TrailingStop.ActivationPercent,
			CallbackPercent:   s.cfg.Risk.TrailingStop.CallbackPercent,
		},
		BreakEvenProfit: s.cfg.Risk.BreakEvenProfit,
		BreakEvenStop:   s.cfg.Risk.BreakEvenStop,
		MinimalROI:      s.minimalROI,
		TimeStopHours:   s.cfg.Risk.TimeStopHours,
		Intracandle:     true,
	}
}

// lastKlines gathers the latest cached candle for each held symbol, for
// the exit engine's intracandle evaluation.
func (s *Scenario) lastKlines(account *domain.Account) map[string]domain.Kline {
	out := make(map[string]domain.Kline, len(account.Positions))
	for symbol := range account.Positions {
		series, ok := s.data.Get(symbol)
		if !ok {
			continue
		}
		last, ok := series.Last()
		if !ok {
			continue
		}
		out[symbol] = last
	}
	return out
}
