// Package exitengine evaluates one open position against the current bar
// and decides whether (and why) it should close, following a fixed
// precedence: intracandle stop-loss, intracandle take-profit, trailing
// stop, break-even tightening, ROI table, time stop.
package exitengine

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
)

// ExitReason names why a position closed.
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTakeProfit   ExitReason = "take_profit"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonROI          ExitReason = "roi"
	ReasonTimeStop     ExitReason = "time_stop"
	ReasonStrategy     ExitReason = "strategy_should_exit"
)

// Decision is the outcome of one Evaluate call.
type Decision struct {
	Exit      bool
	Reason    ExitReason
	ExitPrice float64
}

// Config carries the risk parameters the exit engine needs. These are
// resolved per-position from the scenario's risk config, already adjusted
// for any regime override.
type Config struct {
	StopLossPercent   float64
	TakeProfitPercent float64
	Trailing          TrailingConfig
	BreakEvenProfit   float64 // profit ratio that arms break-even
	BreakEvenStop     float64 // stop distance from entry once armed
	MinimalROI        map[int]float64 // holdMinutes -> minProfitRatio, largest key <= hold wins
	TimeStopHours     float64
	Intracandle       bool
}

// TrailingConfig configures the trailing-stop sub-rule.
type TrailingConfig struct {
	Enabled           bool
	ActivationPercent float64
	CallbackPercent   float64
}

// Evaluate runs the full precedence chain for one position against the
// current bar. kline is the bar under evaluation; price is the latest
// traded price (used as the close-mode extreme when intracandle is false,
// and the reference that position.ProfitRatio is computed from for ROI and
// time-stop checks). It may mutate pos.Trailing / pos.StopLoss in place to
// record trailing/break-even state that must survive into later ticks.
func Evaluate(ctx context.Context, cfg Config, pos *domain.Position, k domain.Kline, price float64, now time.Time, st *strategy.Strategy) Decision {
	high, low, closeP := k.High, k.Low, k.Close
	if !cfg.Intracandle {
		high, low = closeP, closeP
	}

	if pos.Side == domain.SideLong {
		if d, ok := evalLong(cfg, pos, high, low, closeP); ok {
			return finalize(ctx, st, pos, d)
		}
	} else {
		if d, ok := evalShort(cfg, pos, high, low, closeP); ok {
			return finalize(ctx, st, pos, d)
		}
	}

	applyTrailing(cfg, pos, high, low)
	if d, ok := evalTrailingHit(pos, high, low); ok {
		return finalize(ctx, st, pos, d)
	}
	applyBreakEven(cfg, pos, price, now, st)

	if d, ok := evalROI(cfg, pos, price, now); ok {
		return finalize(ctx, st, pos, d)
	}
	if d, ok := evalTimeStop(cfg, pos, price, now); ok {
		return finalize(ctx, st, pos, d)
	}
	if st != nil && st.ShouldExit != nil {
		ec := strategy.ExitContext{Symbol: pos.Symbol, CurrentPrice: price, Kline: k, Now: now}
		if reason, exit := st.ShouldExit(ctx, *pos, ec); exit {
			return finalize(ctx, st, pos, Decision{Exit: true, Reason: ExitReason(reason), ExitPrice: price})
		}
	}
	return Decision{}
}

// evalLong checks intracandle SL then TP for a long position. Stop-loss
// wins ties with take-profit in the same bar.
func evalLong(cfg Config, pos *domain.Position, high, low, closeP float64) (Decision, bool) {
	if cfg.Intracandle && low <= pos.StopLoss {
		return Decision{Exit: true, Reason: ReasonStopLoss, ExitPrice: pos.StopLoss}, true
	}
	if !cfg.Intracandle && closeP <= pos.StopLoss {
		return Decision{Exit: true, Reason: ReasonStopLoss, ExitPrice: closeP}, true
	}
	if pos.TakeProfit > 0 {
		if cfg.Intracandle && high >= pos.TakeProfit {
			return Decision{Exit: true, Reason: ReasonTakeProfit, ExitPrice: pos.TakeProfit}, true
		}
		if !cfg.Intracandle && closeP >= pos.TakeProfit {
			return Decision{Exit: true, Reason: ReasonTakeProfit, ExitPrice: closeP}, true
		}
	}
	return Decision{}, false
}

func evalShort(cfg Config, pos *domain.Position, high, low, closeP float64) (Decision, bool) {
	if cfg.Intracandle && high >= pos.StopLoss {
		return Decision{Exit: true, Reason: ReasonStopLoss, ExitPrice: pos.StopLoss}, true
	}
	if !cfg.Intracandle && closeP >= pos.StopLoss {
		return Decision{Exit: true, Reason: ReasonStopLoss, ExitPrice: closeP}, true
	}
	if pos.TakeProfit > 0 {
		if cfg.Intracandle && low <= pos.TakeProfit {
			return Decision{Exit: true, Reason: ReasonTakeProfit, ExitPrice: pos.TakeProfit}, true
		}
		if !cfg.Intracandle && closeP <= pos.TakeProfit {
			return Decision{Exit: true, Reason: ReasonTakeProfit, ExitPrice: closeP}, true
		}
	}
	return Decision{}, false
}

// applyTrailing updates the position's trailing-stop state in place: it
// tracks the running peak/trough from the bar extremes and, once armed,
// tightens pos.StopLoss when the computed trailing stop is closer to price
// than the current stop.
func applyTrailing(cfg Config, pos *domain.Position, high, low float64) {
	if !cfg.Trailing.Enabled {
		return
	}
	if pos.Trailing == nil {
		pos.Trailing = &domain.Trailing{}
	}
	tr := pos.Trailing

	if pos.Side == domain.SideLong {
		if high > tr.Peak {
			tr.Peak = high
		}
		if tr.Peak == 0 {
			tr.Peak = pos.EntryPrice
		}
		activation := (tr.Peak - pos.EntryPrice) / pos.EntryPrice
		if !tr.Active && activation >= cfg.Trailing.ActivationPercent {
			tr.Active = true
		}
		if tr.Active {
			stop := tr.Peak * (1 - cfg.Trailing.CallbackPercent)
			if stop > pos.StopLoss {
				pos.StopLoss = stop
				tr.StopPrice = stop
			}
		}
	} else {
		if tr.Peak == 0 || low < tr.Peak {
			tr.Peak = low // trough, reusing Peak field for the short-side extreme
		}
		if tr.Peak == 0 {
			tr.Peak = pos.EntryPrice
		}
		activation := (pos.EntryPrice - tr.Peak) / pos.EntryPrice
		if !tr.Active && activation >= cfg.Trailing.ActivationPercent {
			tr.Active = true
		}
		if tr.Active {
			stop := tr.Peak * (1 + cfg.Trailing.CallbackPercent)
			if stop < pos.StopLoss {
				pos.StopLoss = stop
				tr.StopPrice = stop
			}
		}
	}
}

// evalTrailingHit checks whether the just-updated trailing stop was
// crossed within the same bar's extreme, firing a trailing-stop exit.
func evalTrailingHit(pos *domain.Position, high, low float64) (Decision, bool) {
	if pos.Trailing == nil || !pos.Trailing.Active {
		return Decision{}, false
	}
	if pos.Side == domain.SideLong {
		if low <= pos.StopLoss {
			return Decision{Exit: true, Reason: ReasonTrailingStop, ExitPrice: pos.StopLoss}, true
		}
	} else {
		if high >= pos.StopLoss {
			return Decision{Exit: true, Reason: ReasonTrailingStop, ExitPrice: pos.StopLoss}, true
		}
	}
	return Decision{}, false
}

// applyBreakEven moves pos.StopLoss to the break-even level once armed,
// never loosening it, and clamps any strategy customStoploss override to
// the hard floor.
func applyBreakEven(cfg Config, pos *domain.Position, price float64, now time.Time, st *strategy.Strategy) {
	profit := pos.ProfitRatio(price)
	if cfg.BreakEvenProfit > 0 && profit >= cfg.BreakEvenProfit {
		candidate := CalcBreakEvenStop(pos.Side, pos.EntryPrice, pos.StopLoss, profit, cfg.BreakEvenProfit, cfg.BreakEvenStop)
		if candidate != nil {
			pos.StopLoss = *candidate
		}
	}
	if st != nil && st.CustomStoploss != nil {
		ec := strategy.ExitContext{Symbol: pos.Symbol, CurrentPrice: price, Now: now}
		if newStop, ok := st.CustomStoploss(context.Background(), *pos, ec); ok {
			floor := hardFloor(pos, cfg.StopLossPercent)
			clamped := clampToFloor(pos.Side, newStop, floor)
			if tightens(pos.Side, pos.StopLoss, clamped) {
				pos.StopLoss = clamped
			}
		}
	}
}

// CalcBreakEvenStop returns the new stop price once profit crosses
// threshold, or nil when the computed break-even level would not tighten
// the existing stop (monotone tightening, spec §4.5 point 4).
func CalcBreakEvenStop(side domain.Side, entry, currentStop, profit, threshold, bump float64) *float64 {
	if profit < threshold {
		return nil
	}
	var candidate float64
	if side == domain.SideLong {
		candidate = entry * (1 + bump)
		if candidate <= currentStop {
			return nil
		}
	} else {
		candidate = entry * (1 - bump)
		if candidate >= currentStop {
			return nil
		}
	}
	return &candidate
}

func hardFloor(pos *domain.Position, stopLossPercent float64) float64 {
	if pos.Side == domain.SideLong {
		return pos.EntryPrice * (1 - stopLossPercent)
	}
	return pos.EntryPrice * (1 + stopLossPercent)
}

// clampToFloor ensures a strategy-proposed stop never exceeds the hard
// stop-loss floor distance from entry.
func clampToFloor(side domain.Side, proposed, floor float64) float64 {
	if side == domain.SideLong {
		if proposed < floor {
			return floor
		}
		return proposed
	}
	if proposed > floor {
		return floor
	}
	return proposed
}

// tightens reports whether newStop is strictly closer to price than
// currentStop (never loosens the stop).
func tightens(side domain.Side, currentStop, newStop float64) bool {
	if side == domain.SideLong {
		return newStop > currentStop
	}
	return newStop < currentStop
}

// evalROI looks up the ROI table row with the largest holdMinutes key <=
// the position's current hold time, and fires a take-profit exit if
// current profit ratio has reached that row's threshold.
func evalROI(cfg Config, pos *domain.Position, price float64, now time.Time) (Decision, bool) {
	if len(cfg.MinimalROI) == 0 {
		return Decision{}, false
	}
	heldMinutes := int(pos.HoldDuration(now).Minutes())
	bestKey := -1
	for k := range cfg.MinimalROI {
		if k <= heldMinutes && k > bestKey {
			bestKey = k
		}
	}
	if bestKey < 0 {
		return Decision{}, false
	}
	threshold := cfg.MinimalROI[bestKey]
	if pos.ProfitRatio(price) >= threshold {
		return Decision{Exit: true, Reason: ReasonROI, ExitPrice: price}, true
	}
	return Decision{}, false
}

// evalTimeStop fires when the position has been held past time_stop_hours
// and is not profitable.
func evalTimeStop(cfg Config, pos *domain.Position, price float64, now time.Time) (Decision, bool) {
	if cfg.TimeStopHours <= 0 {
		return Decision{}, false
	}
	if pos.HoldDuration(now).Hours() >= cfg.TimeStopHours && pos.ProfitRatio(price) <= 0 {
		return Decision{Exit: true, Reason: ReasonTimeStop, ExitPrice: price}, true
	}
	return Decision{}, false
}

// finalize runs ConfirmExit as a final veto before returning an exit
// decision; a false veto cancels the exit entirely.
func finalize(ctx context.Context, st *strategy.Strategy, pos *domain.Position, d Decision) Decision {
	if !d.Exit || st == nil || st.ConfirmExit == nil {
		return d
	}
	if !st.ConfirmExit(ctx, *pos, string(d.Reason)) {
		return Decision{}
	}
	return d
}
