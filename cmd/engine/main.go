// Command engine is the control-plane process: it loads one strategy
// profile and a set of scenario overrides, builds one Scenario Runtime per
// enabled scenario, and ticks each on a fixed interval until told to stop.
// It mirrors the teacher's cmd/scanner/main.go end to end — flag parsing,
// config.Load, setupLogger, signal.NotifyContext, a ticker loop with a
// STOP-file kill switch, and a report subcommand — generalized from one
// scanner process to a multi-scenario trading engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tradeloop/enginecore/config"
	"github.com/tradeloop/enginecore/internal/adapters/exchange"
	"github.com/tradeloop/enginecore/internal/adapters/notify"
	"github.com/tradeloop/enginecore/internal/adapters/report"
	"github.com/tradeloop/enginecore/internal/adapters/store"
	"github.com/tradeloop/enginecore/internal/application/dataprovider"
	"github.com/tradeloop/enginecore/internal/application/execution"
	"github.com/tradeloop/enginecore/internal/application/indicator"
	"github.com/tradeloop/enginecore/internal/application/orderstate"
	"github.com/tradeloop/enginecore/internal/application/reconcile"
	"github.com/tradeloop/enginecore/internal/application/runtime"
	"github.com/tradeloop/enginecore/internal/application/watchdog"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// scenarioList collects repeated -scenario flags into a slice, the same
// shape flag.Value gives any multi-valued CLI flag.
type scenarioList []string

func (s *scenarioList) String() string { return strings.Join(*s, ",") }
func (s *scenarioList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	strategyPath := flag.String("strategy", "config/strategy.yaml", "path to the strategy profile YAML file")
	var scenarioPaths scenarioList
	flag.Var(&scenarioPaths, "scenario", "path to a scenario override YAML file (repeatable)")
	dataDir := flag.String("data-dir", "data", "root directory for account/state/history files")
	interval := flag.Duration("interval", 60*time.Second, "tick interval")
	once := flag.Bool("once", false, "run one tick per scenario and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	reconcileOnly := flag.Bool("reconcile-only", false, "print the startup reconciliation report for every scenario and exit")
	flag.Parse()

	if len(scenarioPaths) == 0 {
		scenarioPaths = scenarioList{"config/scenario.yaml"}
	}

	logCfg, err := config.LoadLog(*strategyPath)
	if err != nil {
		slog.Error("failed to load log config", "err", err, "path", *strategyPath)
		os.Exit(1)
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logFormat != "" {
		logCfg.Format = *logFormat
	}
	setupLogger(logCfg)

	scenarioCfgs, err := config.Load(*strategyPath, scenarioPaths)
	if err != nil {
		slog.Error("failed to load scenario configs", "err", err, "strategy", *strategyPath, "scenarios", []string(scenarioPaths))
		os.Exit(1)
	}

	slog.Info("engine starting",
		"strategy", *strategyPath,
		"scenarios", len(scenarioCfgs),
		"interval", interval.String(),
		"once", *once,
	)

	notifier := notify.NewConsole()
	killSwitch := store.NewFileKillSwitch(*dataDir)
	heartbeat := store.NewFileHeartbeatStore(*dataDir)

	scenarios := make([]*runtime.Scenario, 0, len(scenarioCfgs))
	watchTasks := make([]watchdog.Task, 0, len(scenarioCfgs))

	for _, cfg := range scenarioCfgs {
		if !cfg.Enabled {
			slog.Info("scenario disabled, skipping", "scenario", cfg.ScenarioID)
			continue
		}

		scn, err := buildScenario(cfg, *dataDir, notifier, heartbeat, killSwitch)
		if err != nil {
			slog.Error("failed to build scenario", "scenario", cfg.ScenarioID, "err", err)
			os.Exit(1)
		}
		scenarios = append(scenarios, scn)
		watchTasks = append(watchTasks, watchdog.Task{Name: "scenario-" + cfg.ScenarioID, MaxAge: 3 * *interval})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *reconcileOnly {
		runReconcile(ctx, scenarioCfgs, *dataDir)
		return
	}

	wd := watchdog.New(heartbeat, notifier, watchTasks)

	if *once {
		now := time.Now()
		for _, scn := range scenarios {
			if err := scn.RunTick(ctx, now); err != nil {
				slog.Error("scenario tick failed", "scenario", scn.ScenarioID(), "err", err)
			}
		}
		wd.Check(ctx, now)
		slog.Info("engine stopped after single tick")
		return
	}

	runLoop(ctx, scenarios, wd, *interval)
	slog.Info("engine stopped cleanly")
}

// runLoop ticks every scenario concurrently on a shared interval until ctx
// is cancelled, same single-ticker shape as the teacher's runPaper loop,
// generalized to fan the tick out across scenarios instead of one market
// scan. A kill-switch flag file lets an operator halt every scenario
// without sending a process signal.
func runLoop(ctx context.Context, scenarios []*runtime.Scenario, wd *watchdog.Watchdog, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func(now time.Time) {
		var wg sync.WaitGroup
		for _, scn := range scenarios {
			wg.Add(1)
			go func(scn *runtime.Scenario) {
				defer wg.Done()
				if err := scn.RunTick(ctx, now); err != nil {
					slog.Error("scenario tick failed", "scenario", scn.ScenarioID(), "err", err)
				}
			}(scn)
		}
		wg.Wait()
		wd.Check(ctx, now)
	}

	tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine shutting down (signal)")
			return
		case now := <-ticker.C:
			tick(now)
		}
	}
}

// runReconcile loads each scenario's persisted account and the exchange's
// reported positions, runs the Position Reconciler, and prints the report.
// It runs only under -reconcile-only, after which the process exits; the
// tick loop and -once do not run a reconciliation before their first tick.
func runReconcile(ctx context.Context, cfgs []config.RuntimeConfig, dataDir string) {
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		accounts := store.NewFileAccountStore(filepath.Join(dataDir, cfg.ScenarioID))
		account, err := accounts.LoadAccount(ctx, cfg.ScenarioID, cfg.InitialUSDT)
		if err != nil {
			slog.Error("reconcile: failed to load account", "scenario", cfg.ScenarioID, "err", err)
			continue
		}

		client := exchange.NewRetrying(newExchangeClient(cfg), exchange.Config{})
		positions, err := client.GetFuturesPositions(ctx)
		if err != nil {
			slog.Warn("reconcile: failed to fetch exchange positions", "scenario", cfg.ScenarioID, "err", err)
			continue
		}

		rep := reconcile.Run(account, positions)
		report.PrintReconcile(os.Stdout, cfg.ScenarioID, rep)
	}
}

// buildScenario wires every collaborator a runtime.Scenario needs from one
// composed RuntimeConfig, rooting its durable files under dataDir/<id> so
// scenarios never collide on the same account/state files.
func buildScenario(cfg config.RuntimeConfig, dataDir string, notifier ports.Notifier, heartbeat ports.HeartbeatStore, killSwitch ports.KillSwitch) (*runtime.Scenario, error) {
	scenarioDir := filepath.Join(dataDir, cfg.ScenarioID)

	client := exchange.NewRetrying(newExchangeClient(cfg), exchange.Config{})

	historyStore, err := store.NewFileSignalHistoryStore(scenarioDir)
	if err != nil {
		return nil, fmt.Errorf("main.buildScenario: signal history store: %w", err)
	}

	dataCfg := dataprovider.Config{Timeframe: cfg.Timeframe, KlineLimit: 200, StaleAfter: 30 * time.Second}
	dataProvider := dataprovider.New(client, dataCfg)

	var trendProvider *dataprovider.Provider
	var trendIndicator *indicator.Engine
	if cfg.TrendTimeframe != "" {
		trendCfg := dataCfg
		trendCfg.Timeframe = cfg.TrendTimeframe
		trendProvider = dataprovider.New(client, trendCfg)
		trendIndicator = indicator.New(indicatorConfig(cfg))
	}

	orders := orderstate.New(client, notifier)

	var executor execution.Adapter
	execCfg := execution.Config{
		FeeRate:               cfg.FeeRate,
		SlippagePercent:       cfg.SlippagePercent,
		MinOrderUSDT:          10,
		MaxPositions:          cfg.Risk.MaxPositions,
		DailyLossLimitPercent: cfg.Risk.DailyLossLimitPercent,
		OrderTimeoutSeconds:   cfg.Execution.OrderTimeoutSeconds,
	}
	if cfg.Mode == config.ModeAuto {
		executor = execution.NewLive(execCfg, client, orders, notifier)
	} else {
		executor = execution.NewPaper(execCfg)
	}

	return runtime.New(runtime.Deps{
		Cfg:            cfg,
		DataProvider:   dataProvider,
		Indicator:      indicator.New(indicatorConfig(cfg)),
		Executor:       executor,
		Orders:         orders,
		TrendProvider:  trendProvider,
		TrendIndicator: trendIndicator,
		AccountStore:   store.NewFileAccountStore(scenarioDir),
		StateStore:     store.NewFileScenarioStateStore(scenarioDir),
		HistoryStore:   historyStore,
		EquityHistory:  store.NewFileEquityHistory(scenarioDir),
		Heartbeat:      heartbeat,
		KillSwitch:     killSwitch,
		Notifier:       notifier,
		Sentiment:      store.NewFileSentimentSource(dataDir),
		Cvd:            store.NewFileCvdSource(dataDir),
		Funding:        store.NewFileFundingSource(dataDir),
		EmergencyHalt:  store.NewFileEmergencyHaltSource(dataDir),
	}), nil
}

func indicatorConfig(cfg config.RuntimeConfig) indicator.Config {
	return indicator.Config{
		MAShortPeriod:  cfg.Strategy.MA.Short,
		MALongPeriod:   cfg.Strategy.MA.Long,
		RSIPeriod:      cfg.Strategy.RSI.Period,
		MACDEnabled:    cfg.Strategy.MACD.Enabled,
		MACDFast:       cfg.Strategy.MACD.Fast,
		MACDSlow:       cfg.Strategy.MACD.Slow,
		MACDSignal:     cfg.Strategy.MACD.Signal,
		ATREnabled:     true,
		ATRPeriod:      14,
		VWAPEnabled:    true,
		VolumeLookback: 20,
	}
}

// newExchangeClient returns the market/account connector for cfg.Exchange.
// Wiring a real exchange's REST/WS surface is outside this module's scope
// (only ports.ExchangeClient is specified); this stands in so every
// scenario still composes and fails loudly — rather than trading on
// garbage data — until a real connector is substituted here.
func newExchangeClient(cfg config.RuntimeConfig) ports.ExchangeClient {
	return unconfiguredExchangeClient{credentialsPath: cfg.Exchange.CredentialsPath}
}

type unconfiguredExchangeClient struct {
	credentialsPath string
}

func (c unconfiguredExchangeClient) unwired(op string) error {
	return fmt.Errorf("main.unconfiguredExchangeClient: %s: no exchange connector wired (credentials_path=%q)", op, c.credentialsPath)
}

func (c unconfiguredExchangeClient) Ping(ctx context.Context) error { return c.unwired("Ping") }
func (c unconfiguredExchangeClient) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Kline, error) {
	return nil, c.unwired("GetKlines")
}
func (c unconfiguredExchangeClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, c.unwired("GetPrice")
}
func (c unconfiguredExchangeClient) GetUSDTBalance(ctx context.Context) (float64, error) {
	return 0, c.unwired("GetUSDTBalance")
}
func (c unconfiguredExchangeClient) MarketBuy(ctx context.Context, symbol string, usdtAmount float64) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("MarketBuy")
}
func (c unconfiguredExchangeClient) MarketSell(ctx context.Context, symbol string, qty float64) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("MarketSell")
}
func (c unconfiguredExchangeClient) MarketBuyByQty(ctx context.Context, symbol string, qty float64) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("MarketBuyByQty")
}
func (c unconfiguredExchangeClient) PlaceStopLossOrder(ctx context.Context, symbol string, side domain.Side, qty, stopPrice float64) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("PlaceStopLossOrder")
}
func (c unconfiguredExchangeClient) PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, qty, price float64) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("PlaceTakeProfitOrder")
}
func (c unconfiguredExchangeClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return c.unwired("CancelOrder")
}
func (c unconfiguredExchangeClient) GetOrder(ctx context.Context, symbol, orderID string) (ports.ExchangeOrder, error) {
	return ports.ExchangeOrder{}, c.unwired("GetOrder")
}
func (c unconfiguredExchangeClient) GetFuturesPositions(ctx context.Context) ([]ports.FuturesPosition, error) {
	return nil, c.unwired("GetFuturesPositions")
}
func (c unconfiguredExchangeClient) GetSymbolInfo(ctx context.Context, symbol string) (ports.SymbolInfo, error) {
	return ports.SymbolInfo{}, c.unwired("GetSymbolInfo")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
