// Package execution implements the Execution Adapter (spec §4.7): two
// implementations — Paper and Live — sharing one contract, one set of
// pre-trade checks, and the defensive guarantees spec §8 requires
// (invalid prices and repeated opens never mutate state or crash).
package execution

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tradeloop/enginecore/internal/application/exitengine"
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/domain/strategy"
)

// Adapter is the uniform contract the Scenario Runtime drives regardless of
// whether a scenario trades on paper or live/testnet (spec §4.7).
// PaperExecutor and LiveExecutor both implement it.
type Adapter interface {
	OpenLong(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error)
	OpenShort(ctx context.Context, account *domain.Account, signal domain.Signal, equity, positionRatio, stopLoss, takeProfit float64, now time.Time) (Result, error)
	CloseLong(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error)
	CloseShort(ctx context.Context, account *domain.Account, symbol string, price float64, reason string, now time.Time) (Result, error)
	PartialClose(ctx context.Context, account *domain.Account, symbol string, ratio, price float64, reason string, now time.Time) (Result, error)
	ForceExit(ctx context.Context, account *domain.Account, symbol string, price float64, now time.Time) (Result, error)
	CheckExitConditions(ctx context.Context, account *domain.Account, cfg exitengine.Config, prices map[string]float64, klines map[string]domain.Kline, st *strategy.Strategy, now time.Time) ([]domain.Trade, error)
}

var (
	_ Adapter = (*PaperExecutor)(nil)
	_ Adapter = (*LiveExecutor)(nil)
)

// Config carries the execution-relevant knobs resolved from a scenario's
// RiskConfig/ExecutionConfig for the current tick (after regime overrides).
type Config struct {
	FeeRate              float64
	SlippagePercent      float64
	MinOrderUSDT         float64
	MaxPositions         int
	MaxPositionPerSymbol float64 // fraction of equity a single symbol may occupy, 0 = unbounded
	DailyLossLimitPercent float64
	OrderTimeoutSeconds  int
	MaxEntrySlippage     float64 // live-only: reject if |currentPrice-signalPrice|/signalPrice exceeds this
}

// Rejection reasons, shared across Paper and Live so tests and logs can
// match on a stable string regardless of which adapter produced it.
const (
	ReasonInvalidPrice     = "invalid_price"
	ReasonAlreadyHeld      = "already_held"
	ReasonMaxPositions     = "max_positions"
	ReasonDailyLossLimit   = "daily_loss_limit"
	ReasonBelowMinOrder    = "below_min_order"
	ReasonNotHeld          = "not_held"
	ReasonEntrySlippage    = "entry_slippage_exceeded"
	ReasonPaperUnsupported = "not_supported_in_paper"
)

// Result is the outcome of one execution-adapter operation. A nil Trade
// with Skipped=true and a Reason is the "no mutation happened" case every
// defensive guarantee in spec §4.7/§8 requires; callers must check Skipped
// before touching Trade.
type Result struct {
	Trade   *domain.Trade
	Skipped bool
	Reason  string
}

// validPrice rejects NaN, Inf, and non-positive prices — the single choke
// point every entry/exit path runs through before touching the account,
// per Open Question #3: invalid prices are an explicit rejection, not an
// implementation detail callers should have to guess at.
func validPrice(price float64) bool {
	return price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}

// preTradeCheck runs the shared pre-trade gate (spec §4.7, checks 1-4) and
// returns the USDT amount to spend when every check passes.
func preTradeCheck(account domain.Account, symbol string, equity, positionRatio float64, cfg Config) (usdtToSpend float64, reason string, ok bool) {
	if cfg.MaxPositions > 0 && len(account.Positions) >= cfg.MaxPositions {
		return 0, ReasonMaxPositions, false
	}
	if account.HasPosition(symbol) {
		return 0, ReasonAlreadyHeld, false
	}
	if cfg.DailyLossLimitPercent > 0 && equity > 0 && account.DailyLoss.Loss/equity >= cfg.DailyLossLimitPercent {
		return 0, ReasonDailyLossLimit, false
	}
	usdtToSpend = equity * positionRatio
	if cfg.MaxPositionPerSymbol > 0 {
		cap := equity * cfg.MaxPositionPerSymbol
		if usdtToSpend > cap {
			usdtToSpend = cap
		}
	}
	if usdtToSpend < cfg.MinOrderUSDT {
		return 0, ReasonBelowMinOrder, false
	}
	return usdtToSpend, "", true
}

// tradeID mints a unique trade identifier, following the teacher's own
// uuid.New().String() convention for order/trade ids throughout its
// paper and live engines. symbol/kind/now are unused beyond signature
// stability with earlier call sites.
func tradeID(symbol, kind string, now time.Time) string {
	return uuid.New().String()
}
