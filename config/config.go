// Package config loads the two-layer YAML configuration (a global strategy
// file plus per-scenario overrides) that composes one RuntimeConfig per
// scenario, following the teacher's godotenv + yaml.v3 loading convention.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LogConfig controls the process-wide structured-logging setup (spec §10):
// level/format read from the strategy file's top-level log section, each
// overridable by LOG_LEVEL/LOG_FORMAT so an operator never edits YAML to
// bump verbosity for one run.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// LoadLog reads only the top-level log section of the global strategy file
// and applies LOG_LEVEL/LOG_FORMAT env overrides, exactly as the teacher's
// applyEnvOverrides does for its own Config.Log. It is split from Load so
// main can configure slog before parsing the full scenario set.
func LoadLog(strategyPath string) (LogConfig, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(strategyPath)
	if err != nil {
		return LogConfig{}, fmt.Errorf("config.LoadLog: read %q: %w", strategyPath, err)
	}
	var wrapper struct {
		Log LogConfig `yaml:"log"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return LogConfig{}, fmt.Errorf("config.LoadLog: parse %q: %w", strategyPath, err)
	}
	applyLogEnvOverrides(&wrapper.Log)
	setLogDefaults(&wrapper.Log)
	return wrapper.Log, nil
}

func applyLogEnvOverrides(l *LogConfig) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		l.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		l.Format = v
	}
}

func setLogDefaults(l *LogConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

// MAConfig holds the short/long moving-average periods.
type MAConfig struct {
	Short int `yaml:"short"`
	Long  int `yaml:"long"`
}

// RSIConfig holds RSI thresholds.
type RSIConfig struct {
	Period         int     `yaml:"period"`
	Oversold       float64 `yaml:"oversold"`
	Overbought     float64 `yaml:"overbought"`
	OverboughtExit float64 `yaml:"overbought_exit"`
}

// MACDConfig holds MACD periods and an enable flag.
type MACDConfig struct {
	Enabled bool `yaml:"enabled"`
	Fast    int  `yaml:"fast"`
	Slow    int  `yaml:"slow"`
	Signal  int  `yaml:"signal"`
}

// VolumeConfig holds the volume/flow rule thresholds.
type VolumeConfig struct {
	SurgeRatio float64 `yaml:"surge_ratio"`
	LowRatio   float64 `yaml:"low_ratio"`
}

// StrategyParams groups the indicator parameters a strategy profile tunes.
type StrategyParams struct {
	MA     MAConfig     `yaml:"ma"`
	RSI    RSIConfig    `yaml:"rsi"`
	MACD   MACDConfig   `yaml:"macd"`
	Volume VolumeConfig `yaml:"volume"`
}

// SignalsConfig lists the rule ids gating each signal type.
type SignalsConfig struct {
	Buy   []string `yaml:"buy"`
	Sell  []string `yaml:"sell"`
	Short []string `yaml:"short"`
	Cover []string `yaml:"cover"`
}

// TrailingStopConfig configures trailing-stop activation/callback.
type TrailingStopConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ActivationPercent float64 `yaml:"activation_percent"`
	CallbackPercent   float64 `yaml:"callback_percent"`
}

// TakeProfitStage is one partial-close rung of a staged take-profit ladder.
type TakeProfitStage struct {
	AtPercent  float64 `yaml:"at_percent"`
	CloseRatio float64 `yaml:"close_ratio"`
}

// ATRPositionConfig configures ATR-based position sizing.
type ATRPositionConfig struct {
	Enabled          bool    `yaml:"enabled"`
	RiskPerTradePercent float64 `yaml:"risk_per_trade_percent"`
	ATRMultiplier    float64 `yaml:"atr_multiplier"`
	MaxPositionRatio float64 `yaml:"max_position_ratio"`
}

// CorrelationFilterConfig configures the portfolio correlation filter.
type CorrelationFilterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	Lookback  int     `yaml:"lookback"`
}

// RiskConfig groups every risk-management knob a scenario can tune.
type RiskConfig struct {
	StopLossPercent         float64             `yaml:"stop_loss_percent"`
	TakeProfitPercent       float64             `yaml:"take_profit_percent"`
	TrailingStop            TrailingStopConfig  `yaml:"trailing_stop"`
	PositionRatio           float64             `yaml:"position_ratio"`
	MaxPositions            int                 `yaml:"max_positions"`
	MaxPositionPerSymbol    float64             `yaml:"max_position_per_symbol"`
	MaxTotalLossPercent     float64             `yaml:"max_total_loss_percent"`
	DailyLossLimitPercent   float64             `yaml:"daily_loss_limit_percent"`
	BreakEvenProfit         float64             `yaml:"break_even_profit"`
	BreakEvenStop           float64             `yaml:"break_even_stop"`
	MinimalROI              map[string]float64  `yaml:"minimal_roi"`
	TimeStopHours           float64             `yaml:"time_stop_hours"`
	TakeProfitStages        []TakeProfitStage   `yaml:"take_profit_stages"`
	ATRPosition             ATRPositionConfig   `yaml:"atr_position"`
	CorrelationFilter       CorrelationFilterConfig `yaml:"correlation_filter"`
	PositionSizing          string              `yaml:"position_sizing"` // fixed|kelly
	KellyMinRatio           float64             `yaml:"kelly_min_ratio"`
	KellyMaxRatio           float64             `yaml:"kelly_max_ratio"`
	KellyLookback           int                 `yaml:"kelly_lookback"`
	MinRR                   float64             `yaml:"min_rr"`
}

// ExecutionConfig groups order-placement knobs.
type ExecutionConfig struct {
	OrderType          string  `yaml:"order_type"`
	MinOrderUSDT       float64 `yaml:"min_order_usdt"`
	OrderTimeoutSeconds int    `yaml:"order_timeout_seconds"`
	MaxEntrySlippage   float64 `yaml:"max_entry_slippage"`
}

// NotifyConfig groups alert-on-what toggles and the cooldown window.
type NotifyConfig struct {
	OnEntry           bool `yaml:"on_entry"`
	OnExit            bool `yaml:"on_exit"`
	OnError           bool `yaml:"on_error"`
	OnHalt            bool `yaml:"on_halt"`
	MinIntervalMinutes int `yaml:"min_interval_minutes"`
}

// Mode is the scenario's execution mode.
type Mode string

const (
	ModeNotifyOnly Mode = "notify_only"
	ModePaper      Mode = "paper"
	ModeAuto       Mode = "auto"
)

// StrategyFile is the global strategy profile layer (base of precedence).
type StrategyFile struct {
	Symbols        []string       `yaml:"symbols"`
	Timeframe      string         `yaml:"timeframe"`
	TrendTimeframe string         `yaml:"trend_timeframe"`
	Strategy       StrategyParams `yaml:"strategy"`
	Signals        SignalsConfig  `yaml:"signals"`
	Risk           RiskConfig     `yaml:"risk"`
	Execution      ExecutionConfig `yaml:"execution"`
	Notify         NotifyConfig   `yaml:"notify"`
	Mode           Mode           `yaml:"mode"`
}

// ExchangeMarket is the trading account type a scenario operates against.
type ExchangeMarket string

const (
	MarketSpot    ExchangeMarket = "spot"
	MarketFutures ExchangeMarket = "futures"
	MarketMargin  ExchangeMarket = "margin"
)

// ExchangeConfig identifies which account a scenario trades through.
type ExchangeConfig struct {
	Market            ExchangeMarket `yaml:"market"`
	Testnet           bool           `yaml:"testnet"`
	CredentialsPath   string         `yaml:"credentials_path"`
}

// ScenarioFile is one scenario's override layer (top of precedence).
type ScenarioFile struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	Enabled         bool            `yaml:"enabled"`
	InitialUSDT     float64         `yaml:"initial_usdt"`
	FeeRate         float64         `yaml:"fee_rate"`
	SlippagePercent float64         `yaml:"slippage_percent"`
	Exchange        ExchangeConfig  `yaml:"exchange"`
	Symbols         []string        `yaml:"symbols"`
	Risk            *RiskConfig     `yaml:"risk"`
}

// RuntimeConfig is the fully composed, per-scenario configuration the
// runtime consumes. It is produced by Compose, never unmarshaled directly.
type RuntimeConfig struct {
	ScenarioID      string
	ScenarioName    string
	Enabled         bool
	InitialUSDT     float64
	FeeRate         float64
	SlippagePercent float64
	Exchange        ExchangeConfig
	Symbols         []string
	Timeframe       string
	TrendTimeframe  string
	Strategy        StrategyParams
	Signals         SignalsConfig
	Risk            RiskConfig
	Execution       ExecutionConfig
	Notify          NotifyConfig
	Mode            Mode
}

// Load reads a global strategy YAML file and one YAML file per scenario and
// returns every scenario's composed RuntimeConfig, in scenarioPaths order.
// A .env file in the working directory, if present, is loaded into the
// process environment first; Load itself applies no env overrides to the
// composed configs (LoadLog does that for the log section).
func Load(strategyPath string, scenarioPaths []string) ([]RuntimeConfig, error) {
	_ = godotenv.Load()

	base, err := readStrategyFile(strategyPath)
	if err != nil {
		return nil, err
	}

	var out []RuntimeConfig
	for _, path := range scenarioPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read scenario %q: %w", path, err)
		}
		var sc ScenarioFile
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("config.Load: parse scenario %q: %w", path, err)
		}
		out = append(out, Compose(base, sc))
	}
	return out, nil
}

func readStrategyFile(path string) (StrategyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyFile{}, fmt.Errorf("config.Load: read strategy %q: %w", path, err)
	}
	var s StrategyFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return StrategyFile{}, fmt.Errorf("config.Load: parse strategy %q: %w", path, err)
	}
	setStrategyDefaults(&s)
	return s, nil
}

// Compose layers a scenario override on top of its base strategy profile:
// scenario override > strategy profile > global strategy file (spec §6).
func Compose(strat StrategyFile, sc ScenarioFile) RuntimeConfig {
	symbols := strat.Symbols
	if len(sc.Symbols) > 0 {
		symbols = sc.Symbols
	}
	risk := strat.Risk
	if sc.Risk != nil {
		risk = mergeRisk(risk, *sc.Risk)
	}
	return RuntimeConfig{
		ScenarioID:      sc.ID,
		ScenarioName:    sc.Name,
		Enabled:         sc.Enabled,
		InitialUSDT:     sc.InitialUSDT,
		FeeRate:         sc.FeeRate,
		SlippagePercent: sc.SlippagePercent,
		Exchange:        sc.Exchange,
		Symbols:         symbols,
		Timeframe:       strat.Timeframe,
		TrendTimeframe:  strat.TrendTimeframe,
		Strategy:        strat.Strategy,
		Signals:         strat.Signals,
		Risk:            risk,
		Execution:       strat.Execution,
		Notify:          strat.Notify,
		Mode:            strat.Mode,
	}
}

// mergeRisk overlays any non-zero field of override onto base. Zero values
// in override mean "inherit from the strategy profile" — a scenario cannot
// express "explicitly set this field back to zero" through this layer.
func mergeRisk(base, override RiskConfig) RiskConfig {
	out := base
	if override.StopLossPercent != 0 {
		out.StopLossPercent = override.StopLossPercent
	}
	if override.TakeProfitPercent != 0 {
		out.TakeProfitPercent = override.TakeProfitPercent
	}
	if override.PositionRatio != 0 {
		out.PositionRatio = override.PositionRatio
	}
	if override.MaxPositions != 0 {
		out.MaxPositions = override.MaxPositions
	}
	if override.MaxTotalLossPercent != 0 {
		out.MaxTotalLossPercent = override.MaxTotalLossPercent
	}
	if override.DailyLossLimitPercent != 0 {
		out.DailyLossLimitPercent = override.DailyLossLimitPercent
	}
	if override.MinimalROI != nil {
		out.MinimalROI = override.MinimalROI
	}
	if override.MaxPositionPerSymbol != 0 {
		out.MaxPositionPerSymbol = override.MaxPositionPerSymbol
	}
	if override.BreakEvenProfit != 0 {
		out.BreakEvenProfit = override.BreakEvenProfit
	}
	if override.BreakEvenStop != 0 {
		out.BreakEvenStop = override.BreakEvenStop
	}
	if override.TimeStopHours != 0 {
		out.TimeStopHours = override.TimeStopHours
	}
	if override.TakeProfitStages != nil {
		out.TakeProfitStages = override.TakeProfitStages
	}
	if override.TrailingStop.Enabled {
		out.TrailingStop = override.TrailingStop
	}
	if override.ATRPosition.Enabled {
		out.ATRPosition = override.ATRPosition
	}
	if override.CorrelationFilter.Enabled {
		out.CorrelationFilter = override.CorrelationFilter
	}
	if override.PositionSizing != "" {
		out.PositionSizing = override.PositionSizing
	}
	if override.KellyMinRatio != 0 {
		out.KellyMinRatio = override.KellyMinRatio
	}
	if override.KellyMaxRatio != 0 {
		out.KellyMaxRatio = override.KellyMaxRatio
	}
	if override.KellyLookback != 0 {
		out.KellyLookback = override.KellyLookback
	}
	if override.MinRR != 0 {
		out.MinRR = override.MinRR
	}
	return out
}

// setStrategyDefaults fills sensible defaults for fields a profile omits,
// mirroring the teacher's setDefaults for its scanner config.
func setStrategyDefaults(s *StrategyFile) {
	if s.Timeframe == "" {
		s.Timeframe = "1h"
	}
	if s.Strategy.MA.Short <= 0 {
		s.Strategy.MA.Short = 9
	}
	if s.Strategy.MA.Long <= 0 {
		s.Strategy.MA.Long = 21
	}
	if s.Strategy.RSI.Period <= 0 {
		s.Strategy.RSI.Period = 14
	}
	if s.Strategy.RSI.Overbought <= 0 {
		s.Strategy.RSI.Overbought = 70
	}
	if s.Strategy.RSI.Oversold <= 0 {
		s.Strategy.RSI.Oversold = 30
	}
	if s.Strategy.RSI.OverboughtExit <= 0 {
		s.Strategy.RSI.OverboughtExit = 75
	}
	if s.Risk.PositionRatio <= 0 {
		s.Risk.PositionRatio = 0.1
	}
	if s.Risk.MaxPositions <= 0 {
		s.Risk.MaxPositions = 5
	}
	if s.Execution.MinOrderUSDT <= 0 {
		s.Execution.MinOrderUSDT = 10
	}
	if s.Execution.OrderTimeoutSeconds <= 0 {
		s.Execution.OrderTimeoutSeconds = 30
	}
	if s.Notify.MinIntervalMinutes <= 0 {
		s.Notify.MinIntervalMinutes = 15
	}
	if s.Mode == "" {
		s.Mode = ModePaper
	}
}
