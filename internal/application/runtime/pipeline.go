package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tradeloop/enginecore/internal/application/execution"
	"github.com/tradeloop/enginecore/internal/application/portfolio"
	"github.com/tradeloop/enginecore/internal/application/signalpipeline"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// processSymbol runs the full signal pipeline (spec §4.4) for one symbol
// and, if it clears every stage, drives the Execution Adapter. prices is
// populated with this symbol's latest close as a side effect so the caller
// can compute equity and feed the exit engine without a second data pass.
func (s *Scenario) processSymbol(ctx context.Context, account *domain.Account, state *ports.ScenarioState, symbol string, now time.Time, prices map[string]float64, sentiment ports.SentimentSnapshot, emergencyHalt bool) {
	series, ok := s.data.Get(symbol)
	if !ok {
		return
	}
	last, ok := series.Last()
	if !ok {
		return
	}
	prices[symbol] = last.Close

	var cvd *domain.CvdEntry
	if s.cvd != nil {
		entry, st := s.cvd.Read(ctx, symbol, s.cvdTTL)
		if st == ports.Fresh {
			cvd = &entry
		}
	}
	snap, ok := s.ind.Compute(series, cvd)
	if !ok {
		return
	}

	ruleCtx := signalpipeline.RuleContext{
		Snapshot:       snap,
		Params:         s.ruleParams,
		PrevHistograms: s.macdHistory[symbol],
	}
	if snap.MACD != nil {
		hist := append(s.macdHistory[symbol], snap.MACD.Histogram)
		if len(hist) > macdHistoryLimit {
			hist = hist[len(hist)-macdHistoryLimit:]
		}
		s.macdHistory[symbol] = hist
	}
	if s.funding != nil {
		if rate, st := s.funding.FundingRate(ctx, symbol); st == ports.Fresh {
			ruleCtx.FundingRate, ruleCtx.HasFunding = rate, true
		}
		if _, delta, st := s.funding.BTCDominance(ctx); st == ports.Fresh {
			ruleCtx.BTCDomDelta, ruleCtx.HasBTCDom = delta, true
		}
	}

	var positionSide *domain.Side
	if pos, held := account.Positions[symbol]; held {
		side := domain.NormalizeSide(pos.Side)
		positionSide = &side
	}

	sigType := signalpipeline.Gate(s.signalSets, positionSide, ruleCtx)
	if s.strategy != nil && s.strategy.PopulateSignal != nil {
		// A strategy's own PopulateSignal is authoritative over the built-in
		// rule-table pipeline when the bundle supplies one.
		sigType = s.strategy.PopulateSignal(ctx, snap, positionSide).Type
		if sigType == "" {
			sigType = domain.SignalNone
		}
	}
	if sigType == domain.SignalNone {
		return
	}

	if s.notificationCooldown(state, symbol, sigType, now) {
		return
	}

	regime := signalpipeline.DetectRegime(snap, s.regimeThresholds)
	sl, tp, positionRatio, roi := s.regimeOverrides.Apply(regime, s.cfg.Risk.StopLossPercent, s.cfg.Risk.TakeProfitPercent, s.cfg.Risk.PositionRatio, s.minimalROI)
	_ = roi // the ROI table applied to exits is resolved once in exitConfig, not per-regime

	entryPrice := snap.Price
	var stopLoss, takeProfit float64
	switch sigType {
	case domain.SignalBuy:
		stopLoss, takeProfit = entryPrice*(1-sl), entryPrice*(1+tp)
	case domain.SignalShort:
		stopLoss, takeProfit = entryPrice*(1+sl), entryPrice*(1-tp)
	}

	trendBullish, hasTrend := s.trendReading(ctx, symbol)
	heldReturns := s.heldReturns(account, symbol)
	candidateReturns := logReturns(series.Candles, s.cfg.Risk.CorrelationFilter.Lookback)

	eventPhase := ports.EventNone
	if s.events != nil {
		eventPhase = s.events.Phase(ctx, symbol, now)
	}

	correlationThreshold := 0.0
	if s.cfg.Risk.CorrelationFilter.Enabled {
		correlationThreshold = s.cfg.Risk.CorrelationFilter.Threshold
	}

	filterResult := signalpipeline.Run(signalpipeline.FilterInput{
		Signal:               domain.Signal{Symbol: symbol, Type: sigType, Price: entryPrice, Timestamp: now},
		TrendEMABullish:      trendBullish,
		HasTrend:             hasTrend,
		EntryPrice:           entryPrice,
		StopLoss:             stopLoss,
		TakeProfit:           takeProfit,
		MinRR:                s.cfg.Risk.MinRR,
		HeldReturns:          heldReturns,
		CandidateReturns:     candidateReturns,
		CorrelationThreshold: correlationThreshold,
		CorrelationLookback:  s.cfg.Risk.CorrelationFilter.Lookback,
		EmergencyHalt:        emergencyHalt,
		EventPhase:           eventPhase,
	})
	if filterResult.Rejected {
		slog.Debug("runtime: signal rejected", "scenario", s.cfg.ScenarioID, "symbol", symbol, "type", sigType, "reason", filterResult.Reason)
		return
	}
	ratio := positionRatio * filterResult.RatioMultiplier

	if sigType.IsOpen() {
		verdict := signalpipeline.EvaluateSentiment(sigType, sentiment, ratio)
		if verdict.Outcome == signalpipeline.SentimentSkip {
			return
		}
		ratio = verdict.AdjustedRatio
	}

	equity := account.CalcTotalEquity(prices)

	if sigType.IsOpen() {
		corrCfg := portfolio.CorrelationConfig{
			Threshold: s.cfg.Risk.CorrelationFilter.Threshold,
			Lookback:  s.cfg.Risk.CorrelationFilter.Lookback,
			Ceiling:   s.correlationCeiling,
		}
		heat := portfolio.CorrelationHeat(candidateReturns, heldReturns, ratio, corrCfg)
		if heat.Decision == domain.CorrelationBlock {
			return
		}
		ratio = heat.AdjustedRatio

		// ratio already carries heat.AdjustedRatio's correlation discount
		// (applied just above); Size must not scale it by heat a second
		// time, so CorrelationHeat is deliberately left unset here.
		sizing := signalpipeline.Size(signalpipeline.SizingInput{
			BaseRatio:        ratio,
			KellyEnabled:     s.cfg.Risk.PositionSizing == "kelly",
			ClosedPnLPct:     s.closedPnLPercents(account),
			KellyLookback:    s.cfg.Risk.KellyLookback,
			KellyHalf:        0.5,
			KellyMinRatio:    s.cfg.Risk.KellyMinRatio,
			KellyMaxRatio:    s.cfg.Risk.KellyMaxRatio,
			ATREnabled:       s.cfg.Risk.ATRPosition.Enabled,
			ATR:              snap.ATR,
			ATRMultiplier:    s.cfg.Risk.ATRPosition.ATRMultiplier,
			EntryPrice:       entryPrice,
			Equity:           equity,
			RiskPerTrade:     s.cfg.Risk.ATRPosition.RiskPerTradePercent,
			MaxPositionRatio: s.cfg.Risk.ATRPosition.MaxPositionRatio,
		})
		ratio = sizing.PositionRatio
		if sizing.StopDistance > 0 {
			if sigType == domain.SignalBuy {
				stopLoss = entryPrice - sizing.StopDistance
			} else {
				stopLoss = entryPrice + sizing.StopDistance
			}
		}
	}

	signal := domain.Signal{Symbol: symbol, Type: sigType, Price: entryPrice, Timestamp: now, Indicators: &snap}
	s.dispatch(ctx, account, signal, equity, ratio, stopLoss, takeProfit, now)
}

// dispatch drives the Execution Adapter for a signal that cleared every
// gate/filter stage, and records the resulting open in the signal history.
func (s *Scenario) dispatch(ctx context.Context, account *domain.Account, signal domain.Signal, equity, ratio, stopLoss, takeProfit float64, now time.Time) {
	switch signal.Type {
	case domain.SignalBuy:
		res, err := s.exec.OpenLong(ctx, account, signal, equity, ratio, stopLoss, takeProfit, now)
		s.afterOpen(ctx, signal, res, err, now)
	case domain.SignalShort:
		res, err := s.exec.OpenShort(ctx, account, signal, equity, ratio, stopLoss, takeProfit, now)
		s.afterOpen(ctx, signal, res, err, now)
	case domain.SignalSell:
		res, err := s.exec.CloseLong(ctx, account, signal.Symbol, signal.Price, "sell_signal", now)
		s.afterClose(ctx, signal.Symbol, res, err, now)
	case domain.SignalCover:
		res, err := s.exec.CloseShort(ctx, account, signal.Symbol, signal.Price, "cover_signal", now)
		s.afterClose(ctx, signal.Symbol, res, err, now)
	}
}

func (s *Scenario) afterOpen(ctx context.Context, signal domain.Signal, res execution.Result, err error, now time.Time) {
	if err != nil {
		slog.Warn("runtime: open failed", "scenario", s.cfg.ScenarioID, "symbol", signal.Symbol, "err", err)
		return
	}
	if res.Skipped || res.Trade == nil {
		slog.Debug("runtime: open skipped", "scenario", s.cfg.ScenarioID, "symbol", signal.Symbol, "reason", res.Reason)
		return
	}
	if s.history != nil {
		id := res.Trade.ID
		s.historyIDs[signal.Symbol] = id
		rec := domain.SignalHistoryRecord{
			ID:         id,
			Symbol:     signal.Symbol,
			Type:       signal.Type,
			EntryPrice: res.Trade.Price,
			EntryTime:  now,
			Status:     domain.HistoryOpen,
		}
		if err := s.history.Append(ctx, rec); err != nil {
			slog.Warn("runtime: signal history append failed", "scenario", s.cfg.ScenarioID, "symbol", signal.Symbol, "err", err)
		}
	}
	if s.cfg.Notify.OnEntry {
		s.notify(ctx, ports.AlertEntry, signal.Symbol, "opened "+string(signal.Type)+" at "+formatPrice(res.Trade.Price), now)
	}
}

func (s *Scenario) afterClose(ctx context.Context, symbol string, res execution.Result, err error, now time.Time) {
	if err != nil {
		slog.Warn("runtime: close failed", "scenario", s.cfg.ScenarioID, "symbol", symbol, "err", err)
		return
	}
	if res.Skipped || res.Trade == nil {
		return
	}
	s.closeHistory(ctx, symbol, *res.Trade, now)
	if s.cfg.Notify.OnExit {
		s.notify(ctx, ports.AlertExit, symbol, "closed at "+formatPrice(res.Trade.Price)+" reason="+res.Trade.Reason, now)
	}
}

func (s *Scenario) closeHistory(ctx context.Context, symbol string, trade domain.Trade, now time.Time) {
	if s.history == nil {
		return
	}
	id, ok := s.historyIDs[symbol]
	if !ok {
		return
	}
	delete(s.historyIDs, symbol)
	if err := s.history.CloseSignal(ctx, id, trade.Price, now, trade.Reason, trade.PnL, trade.PnLPercent); err != nil {
		slog.Warn("runtime: signal history close failed", "scenario", s.cfg.ScenarioID, "symbol", symbol, "err", err)
	}
}

// trendReading reports the higher-timeframe trend direction used by the
// MTF filter. Absent a configured trend provider/indicator, HasTrend is
// false and the filter never fires.
func (s *Scenario) trendReading(ctx context.Context, symbol string) (bullish, has bool) {
	if s.trendData == nil || s.trendInd == nil {
		return false, false
	}
	series, ok := s.trendData.Get(symbol)
	if !ok {
		return false, false
	}
	snap, ok := s.trendInd.Compute(series, nil)
	if !ok {
		return false, false
	}
	return snap.MAShort > snap.MALong, true
}

// heldReturns builds the log-return series for every currently held symbol
// other than the candidate itself, for the correlation filter/scaler.
func (s *Scenario) heldReturns(account *domain.Account, candidate string) map[string][]float64 {
	if len(account.Positions) == 0 {
		return nil
	}
	out := make(map[string][]float64, len(account.Positions))
	for symbol := range account.Positions {
		if symbol == candidate {
			continue
		}
		series, ok := s.data.Get(symbol)
		if !ok {
			continue
		}
		if returns := logReturns(series.Candles, s.cfg.Risk.CorrelationFilter.Lookback); len(returns) > 0 {
			out[symbol] = returns
		}
	}
	return out
}

// closedPnLPercents extracts the PnLPercent of every exit trade, oldest
// first, for the Kelly-sizing sample.
func (s *Scenario) closedPnLPercents(account *domain.Account) []float64 {
	var out []float64
	for _, t := range account.Trades {
		if t.IsExit {
			out = append(out, t.PnLPercent)
		}
	}
	return out
}

// logReturns computes log(close[i]/close[i-1]) over the last lookback
// candles (or all available candles when lookback is non-positive).
func logReturns(candles []domain.Kline, lookback int) []float64 {
	if len(candles) < 2 {
		return nil
	}
	n := lookback
	if n <= 0 || n >= len(candles) {
		n = len(candles) - 1
	}
	start := len(candles) - n
	if start < 1 {
		start = 1
	}
	out := make([]float64, 0, len(candles)-start)
	for i := start; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, math.Log(candles[i].Close/prev))
	}
	return out
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.4f", p)
}
