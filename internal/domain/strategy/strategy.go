// Package strategy defines the plugin-hook contract a trading strategy
// bundle implements. This is a callback protocol, not inheritance: the core
// (signal pipeline, exit engine, execution adapter) calls these hooks at
// fixed points and never subclasses a Strategy.
package strategy

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
)

// ExitContext is the read-only state a CustomStoploss/ShouldExit hook can
// inspect: current price, the latest K-line, and how long the position has
// been held.
type ExitContext struct {
	Symbol       string
	CurrentPrice float64
	Kline        domain.Kline
	Now          time.Time
}

// Strategy is the bundle of hooks the core calls at defined points. Every
// hook after ID is optional: a bundle that leaves a func field nil simply
// gets no override at that point (core defaults apply).
type Strategy struct {
	ID string

	// PopulateSignal evaluates a symbol and returns a Signal (possibly
	// SignalNone). Required for any Strategy bundle that overrides the
	// core's built-in rule-table pipeline (signalpipeline.Gate); a
	// Scenario with no Strategy attached at all runs on the rule table
	// alone and never reaches this hook.
	PopulateSignal func(ctx context.Context, snap domain.IndicatorSnapshot, positionSide *domain.Side) domain.Signal

	// CustomStoploss optionally overrides the stop price for an open
	// position. A nil return (ok=false) means "no override"; the exit
	// engine still clamps any returned value to the hard floor.
	CustomStoploss func(ctx context.Context, pos domain.Position, ec ExitContext) (price float64, ok bool)

	// ConfirmExit gives the strategy final veto power over an exit the
	// exit engine is about to execute. Returning false cancels the exit.
	ConfirmExit func(ctx context.Context, pos domain.Position, reason string) bool

	// ShouldExit lets a strategy request an exit outside the standard
	// stop/TP/trailing/ROI/time-stop evaluation.
	ShouldExit func(ctx context.Context, pos domain.Position, ec ExitContext) (reason string, exit bool)

	// AdjustPosition lets a strategy resize an already-open position
	// (e.g. scale-in/scale-out); returns the signed USDT delta to apply.
	AdjustPosition func(ctx context.Context, pos domain.Position, ec ExitContext) float64

	// OnTradeClosed is a notification hook called after a position's
	// closing trade has been recorded.
	OnTradeClosed func(ctx context.Context, trade domain.Trade)
}
