package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// RunTick runs one control-loop iteration for this scenario (spec §4.1):
// refresh data, abort early if paused or kill-switched, run the signal
// pipeline per symbol and the exit engine per position, reconcile order
// timeouts, evaluate the drawdown halt condition, persist the account, and
// record a heartbeat. It is safe to call at most once at a time per
// scenario; the caller (the top-level scheduler) is responsible for that
// serialization, same as a single HTTP handler instance in the teacher's
// engines is never re-entered concurrently for one account.
func (s *Scenario) RunTick(ctx context.Context, now time.Time) error {
	start := now

	if s.killSwitch != nil && s.killSwitch.Active(ctx) {
		return nil
	}

	state, err := s.states.LoadState(ctx, s.cfg.ScenarioID)
	if err != nil {
		return fmt.Errorf("runtime.RunTick: load state: %w", err)
	}
	if state.Paused {
		return nil
	}

	account, err := s.accounts.LoadAccount(ctx, s.cfg.ScenarioID, s.cfg.InitialUSDT)
	if err != nil {
		return fmt.Errorf("runtime.RunTick: load account: %w", err)
	}
	account.ResetDailyLossIfNeeded(now)

	symbols := unionSymbols(s.cfg.Symbols, account.Positions)
	if failed := s.data.RefreshAll(ctx, symbols); len(failed) > 0 {
		slog.Warn("runtime: kline refresh failed for some symbols", "scenario", s.cfg.ScenarioID, "symbols", failed)
	}
	if s.trendData != nil {
		s.trendData.RefreshAll(ctx, symbols)
	}

	emergencyHalt := s.readEmergencyHalt(ctx)
	sentiment := s.readSentiment(ctx)

	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		s.processSymbol(ctx, &account, &state, symbol, now, prices, sentiment, emergencyHalt)
	}

	s.runAdjustPosition(ctx, &account, prices, now)
	s.runTakeProfitStages(ctx, &account, prices, now)
	s.runExitEngine(ctx, &account, prices, now)

	if s.orders != nil {
		if err := s.orders.SyncExchangeStopLosses(ctx, &account, now); err != nil {
			slog.Warn("runtime: sync exchange stop losses failed", "scenario", s.cfg.ScenarioID, "err", err)
		}
		if err := s.orders.CheckTimeouts(ctx, &account, now); err != nil {
			slog.Warn("runtime: order timeout reconciliation failed", "scenario", s.cfg.ScenarioID, "err", err)
		}
	}

	equity := account.CalcTotalEquity(prices)
	s.recordEquitySnapshot(ctx, &state, account, equity, now)

	if s.drawdown.Evaluate(now, equity) {
		state.Paused = true
		state.PauseReason = "max_total_loss_breach"
		s.notify(ctx, ports.AlertDrawdownBreach, s.cfg.ScenarioID,
			fmt.Sprintf("scenario paused: equity %.2f breached max_total_loss_percent against initial %.2f", equity, s.cfg.InitialUSDT), now)
	}

	account.UpdatedAt = now
	if err := s.accounts.SaveAccount(ctx, s.cfg.ScenarioID, account); err != nil {
		return fmt.Errorf("runtime.RunTick: save account: %w", err)
	}
	if err := s.states.SaveState(ctx, s.cfg.ScenarioID, state); err != nil {
		return fmt.Errorf("runtime.RunTick: save state: %w", err)
	}
	if s.heartbeat != nil {
		if err := s.heartbeat.Record(ctx, "scenario-"+s.cfg.ScenarioID, now, time.Since(start).Milliseconds()); err != nil {
			slog.Warn("runtime: heartbeat record failed", "scenario", s.cfg.ScenarioID, "err", err)
		}
	}
	return nil
}

// Pause marks the scenario paused and persists the reason immediately,
// independent of the next tick, so a manual halt takes effect without
// waiting on the 60s scheduler.
func (s *Scenario) Pause(ctx context.Context, reason string) error {
	state, err := s.states.LoadState(ctx, s.cfg.ScenarioID)
	if err != nil {
		return fmt.Errorf("runtime.Pause: load state: %w", err)
	}
	state.Paused = true
	state.PauseReason = reason
	return s.states.SaveState(ctx, s.cfg.ScenarioID, state)
}

// Resume clears the paused flag and resets the drawdown guard so a manual
// resume starts a fresh drawdown window rather than immediately re-tripping
// on the same breach.
func (s *Scenario) Resume(ctx context.Context) error {
	state, err := s.states.LoadState(ctx, s.cfg.ScenarioID)
	if err != nil {
		return fmt.Errorf("runtime.Resume: load state: %w", err)
	}
	state.Paused = false
	state.PauseReason = ""
	s.drawdown.Reset()
	return s.states.SaveState(ctx, s.cfg.ScenarioID, state)
}

// notificationCooldown reports whether (symbol, sigType) is still within
// its cooldown window and, if not, consumes the window immediately — the
// timestamp updates here, before any downstream filter runs, so a signal
// that is later rejected still occupies the cooldown slot (spec §4.1).
func (s *Scenario) notificationCooldown(state *ports.ScenarioState, symbol string, sigType domain.SignalType, now time.Time) bool {
	windowMinutes := s.cfg.Notify.MinIntervalMinutes
	if windowMinutes <= 0 {
		return false
	}
	if state.LastSignals == nil {
		state.LastSignals = make(map[string]ports.LastSignal)
	}
	key := symbol + "|" + string(sigType)
	last, ok := state.LastSignals[key]
	blocked := ok && now.Sub(last.Timestamp) < time.Duration(windowMinutes)*time.Minute
	if !blocked {
		state.LastSignals[key] = ports.LastSignal{Type: sigType, Timestamp: now}
	}
	return blocked
}

// recordEquitySnapshot appends one equity-history line at most once per UTC
// hour (spec §6: "hourly equity snapshots"), gated on the scenario state's
// LastReportAt so a 60s tick cadence doesn't write twelve lines an hour.
func (s *Scenario) recordEquitySnapshot(ctx context.Context, state *ports.ScenarioState, account domain.Account, equity float64, now time.Time) {
	if s.equity == nil {
		return
	}
	if !state.LastReportAt.IsZero() && now.Sub(state.LastReportAt) < time.Hour {
		return
	}
	snap := ports.EquitySnapshot{At: now, Equity: equity, USDT: account.USDT}
	if err := s.equity.Append(ctx, s.cfg.ScenarioID, snap); err != nil {
		slog.Warn("runtime: equity history append failed", "scenario", s.cfg.ScenarioID, "err", err)
		return
	}
	state.LastReportAt = now
}

func (s *Scenario) readEmergencyHalt(ctx context.Context) bool {
	if s.emergencyHalt == nil {
		return false
	}
	active, st := s.emergencyHalt.Read(ctx, s.haltTTL)
	return st == ports.Fresh && active
}

func (s *Scenario) readSentiment(ctx context.Context) ports.SentimentSnapshot {
	if s.sentiment == nil {
		return ports.SentimentSnapshot{}
	}
	snap, st := s.sentiment.Read(ctx, s.sentimentTTL)
	if st != ports.Fresh {
		return ports.SentimentSnapshot{}
	}
	return snap
}

func unionSymbols(configured []string, positions map[string]domain.Position) []string {
	seen := make(map[string]bool, len(configured)+len(positions))
	out := make([]string, 0, len(configured)+len(positions))
	for _, s := range configured {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for symbol := range positions {
		if !seen[symbol] {
			seen[symbol] = true
			out = append(out, symbol)
		}
	}
	return out
}
