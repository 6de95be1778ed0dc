// Package ports declares the interfaces the trading control plane consumes.
// Concrete exchange/transport/storage code is out of this spec's scope
// (spec §1) — only the contracts live here, exactly as the teacher's
// internal/ports package decouples engines from concrete adapters.
package ports

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
)

// Fill is one execution fill reported by the exchange for an order.
type Fill struct {
	Price      float64
	Qty        float64
	Commission float64
}

// ExchangeOrder is the exchange's view of an order's current state.
type ExchangeOrder struct {
	OrderID     string
	Status      domain.OrderStatus
	ExecutedQty float64
	Price       float64
	Fills       []Fill
	TransactAt  time.Time
}

// SymbolInfo carries exchange-side trading rules for a symbol.
type SymbolInfo struct {
	Symbol   string
	StepSize float64
}

// FuturesPosition is the exchange's reported futures/margin position.
type FuturesPosition struct {
	Symbol   string
	Side     domain.Side
	Quantity float64
	EntryPrice float64
}

// ExchangeClient is the narrow surface the execution adapter and order
// state machine need from a live/testnet exchange. Every method must be
// called with a context carrying the 8-15s HTTP timeout spec §5 requires;
// the concrete implementation (out of scope here) is responsible for
// rate limiting and retry/backoff — see adapters/exchange.Retrying for the
// decorator this package expects implementations to be wrapped in.
type ExchangeClient interface {
	Ping(ctx context.Context) error
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Kline, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetUSDTBalance(ctx context.Context) (float64, error)

	MarketBuy(ctx context.Context, symbol string, usdtAmount float64) (ExchangeOrder, error)
	MarketSell(ctx context.Context, symbol string, qty float64) (ExchangeOrder, error)
	MarketBuyByQty(ctx context.Context, symbol string, qty float64) (ExchangeOrder, error)

	PlaceStopLossOrder(ctx context.Context, symbol string, side domain.Side, qty, stopPrice float64) (ExchangeOrder, error)
	PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, qty, price float64) (ExchangeOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (ExchangeOrder, error)

	GetFuturesPositions(ctx context.Context) ([]FuturesPosition, error)
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
}
