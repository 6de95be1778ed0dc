// Package runtime implements the Scenario Runtime (spec §4.1): the
// per-scenario orchestrator that drives one isolated trading context
// through data refresh, the signal pipeline, the exit engine, order-timeout
// reconciliation, and drawdown-driven pause/resume, on a fixed tick.
// Structurally this mirrors the teacher's live.Engine.RunOnce — one method
// that threads a handful of collaborators through a fixed phase order and
// returns a per-cycle summary — generalized from a single live-trading cycle
// to the runTick contract spec §4.1 names phase by phase.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeloop/enginecore/config"
	"github.com/tradeloop/enginecore/internal/application/dataprovider"
	"github.com/tradeloop/enginecore/internal/application/execution"
	"github.com/tradeloop/enginecore/internal/application/indicator"
	"github.com/tradeloop/enginecore/internal/application/orderstate"
	"github.com/tradeloop/enginecore/internal/application/signalpipeline"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
	"github.com/tradeloop/enginecore/internal/ports"
)

// Deps bundles every collaborator a Scenario needs. Sources are optional:
// a nil source is treated as permanently Unavailable and the rule families
// or filters that depend on it simply don't fire, per spec §9.
type Deps struct {
	Cfg        config.RuntimeConfig
	DataProvider *dataprovider.Provider
	Indicator    *indicator.Engine
	Executor     execution.Adapter
	Orders       *orderstate.Machine

	// TrendProvider/TrendIndicator back the multi-timeframe trend filter.
	// Both nil means the filter never fires (HasTrend stays false).
	TrendProvider *dataprovider.Provider
	TrendIndicator *indicator.Engine

	AccountStore  ports.AccountStore
	StateStore    ports.ScenarioStateStore
	HistoryStore  ports.SignalHistoryStore
	EquityHistory ports.EquityHistory
	Heartbeat     ports.HeartbeatStore
	KillSwitch    ports.KillSwitch
	Notifier      ports.Notifier

	Sentiment     ports.SentimentSource
	Cvd           ports.CvdSource
	Funding       ports.FundingSource
	EmergencyHalt ports.EmergencyHaltSource
	Events        ports.EventCalendar

	Strategy *strategy.Strategy

	// TTLs for the read-through sources above; zero falls back to a minute.
	SentimentTTL time.Duration
	CvdTTL       time.Duration
	HaltTTL      time.Duration
}

// Scenario drives one isolated trading context end to end.
type Scenario struct {
	cfg    config.RuntimeConfig
	data   *dataprovider.Provider
	ind    *indicator.Engine
	exec   execution.Adapter
	orders *orderstate.Machine

	trendData *dataprovider.Provider
	trendInd  *indicator.Engine

	accounts  ports.AccountStore
	states    ports.ScenarioStateStore
	history   ports.SignalHistoryStore
	equity    ports.EquityHistory
	heartbeat ports.HeartbeatStore
	killSwitch ports.KillSwitch
	notifier  *ports.CooldownGate

	sentiment     ports.SentimentSource
	cvd           ports.CvdSource
	funding       ports.FundingSource
	emergencyHalt ports.EmergencyHaltSource
	events        ports.EventCalendar

	strategy *strategy.Strategy

	sentimentTTL time.Duration
	cvdTTL       time.Duration
	haltTTL      time.Duration

	drawdown domain.DrawdownGuard

	ruleParams      signalpipeline.RuleParams
	signalSets      signalpipeline.SignalSets
	regimeThresholds signalpipeline.RegimeThresholds
	regimeOverrides signalpipeline.RegimeOverrides
	minimalROI      map[int]float64
	correlationCeiling float64

	// historyIDs associates a held position with its open signal-history
	// record so the close can be written back to the same entry. It is
	// rebuilt from scratch on process restart, so a crash between open and
	// close loses that back-reference; the JSONL record is simply left
	// "open" forever in that case, which is the same failure mode the
	// teacher's append-only trade log has for an ungraceful shutdown.
	historyIDs map[string]string

	// macdHistory keeps the last few bars' MACD histogram values per symbol
	// (most-recent-last), feeding macd_histogram_shrinking's 3-bar lookback.
	// Rebuilt from scratch on restart, same as historyIDs — a cold start
	// just needs a couple of ticks to refill it before that rule can fire.
	macdHistory map[string][]float64
}

// macdHistoryLimit bounds macdHistory per symbol; macd_histogram_shrinking
// only ever looks back 3 bars.
const macdHistoryLimit = 4

// New builds a Scenario from its dependencies, applying RuntimeConfig to
// derive the pipeline's static per-tick inputs (rule thresholds, signal
// sets, ROI table) once rather than on every tick.
func New(d Deps) *Scenario {
	sentimentTTL := d.SentimentTTL
	if sentimentTTL <= 0 {
		sentimentTTL = time.Minute
	}
	cvdTTL := d.CvdTTL
	if cvdTTL <= 0 {
		cvdTTL = time.Minute
	}
	haltTTL := d.HaltTTL
	if haltTTL <= 0 {
		haltTTL = time.Minute
	}

	ceiling := 0.0
	if d.Cfg.Risk.CorrelationFilter.Enabled && d.Cfg.Risk.CorrelationFilter.Threshold > 0 {
		// No separate config knob distinguishes "scale" from "block"; the
		// block ceiling is twice the scale threshold, clamped under 1.
		ceiling = d.Cfg.Risk.CorrelationFilter.Threshold * 2
		if ceiling > 0.99 {
			ceiling = 0.99
		}
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	window := time.Duration(d.Cfg.Notify.MinIntervalMinutes) * time.Minute
	if window <= 0 {
		window = 15 * time.Minute
	}

	return &Scenario{
		cfg:        d.Cfg,
		data:       d.DataProvider,
		ind:        d.Indicator,
		exec:       d.Executor,
		orders:     d.Orders,
		trendData:  d.TrendProvider,
		trendInd:   d.TrendIndicator,
		accounts:   d.AccountStore,
		states:     d.StateStore,
		history:    d.HistoryStore,
		equity:     d.EquityHistory,
		heartbeat:  d.Heartbeat,
		killSwitch: d.KillSwitch,
		notifier:   ports.NewCooldownGate(notifier, window),
		sentiment:     d.Sentiment,
		cvd:           d.Cvd,
		funding:       d.Funding,
		emergencyHalt: d.EmergencyHalt,
		events:        d.Events,
		strategy:      d.Strategy,
		sentimentTTL:  sentimentTTL,
		cvdTTL:        cvdTTL,
		haltTTL:       haltTTL,
		drawdown: domain.DrawdownGuard{
			InitialUSDT:    d.Cfg.InitialUSDT,
			MaxLossPercent: d.Cfg.Risk.MaxTotalLossPercent,
		},
		ruleParams:       ruleParamsFromConfig(d.Cfg),
		signalSets:       signalpipeline.SignalSets(d.Cfg.Signals),
		regimeThresholds: defaultRegimeThresholds(),
		regimeOverrides:  signalpipeline.DefaultOverrides(),
		minimalROI:       parseMinimalROI(d.Cfg.Risk.MinimalROI),
		correlationCeiling: ceiling,
		historyIDs: make(map[string]string),
		macdHistory: make(map[string][]float64),
	}
}

func ruleParamsFromConfig(cfg config.RuntimeConfig) signalpipeline.RuleParams {
	return signalpipeline.RuleParams{
		RSIOverbought:     cfg.Strategy.RSI.Overbought,
		RSIOversold:       cfg.Strategy.RSI.Oversold,
		RSIOverboughtExit: cfg.Strategy.RSI.OverboughtExit,
		VolumeSurgeRatio:  cfg.Strategy.Volume.SurgeRatio,
		VolumeLowRatio:    cfg.Strategy.Volume.LowRatio,
	}
}

// defaultRegimeThresholds mirrors the thresholds setStrategyDefaults would
// apply if regime classification were exposed as a tunable config section;
// spec §6 does not enumerate one, so these are fixed constants.
func defaultRegimeThresholds() signalpipeline.RegimeThresholds {
	return signalpipeline.RegimeThresholds{
		TrendSeparation: 0.01,
		TightRangeATR:   0.01,
		BreakoutVolume:  1.5,
	}
}

func parseMinimalROI(raw map[string]float64) map[int]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[int]float64, len(raw))
	for k, v := range raw {
		minutes, err := parseHoldMinutes(k)
		if err != nil {
			slog.Warn("runtime: skipping malformed minimal_roi key", "key", k, "err", err)
			continue
		}
		out[minutes] = v
	}
	return out
}

func parseHoldMinutes(key string) (int, error) {
	var minutes int
	if _, err := fmt.Sscanf(key, "%d", &minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

// ScenarioID returns the id this Scenario was configured for.
func (s *Scenario) ScenarioID() string {
	return s.cfg.ScenarioID
}

// noopNotifier discards every alert; used when a Deps.Notifier is absent so
// the cooldown gate always has a valid next hop.
type noopNotifier struct{}

func (noopNotifier) Send(context.Context, ports.Alert) {}

func (s *Scenario) notify(ctx context.Context, kind ports.AlertKind, scope, message string, now time.Time) {
	s.notifier.Send(ctx, ports.Alert{Kind: kind, Scope: scope, Message: message, At: now})
}
