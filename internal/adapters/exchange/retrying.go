// Package exchange provides the Retrying decorator spec §5 requires every
// live exchange client to run behind: per-category rate limiting, network
// timeouts on every call, and exponential-backoff retry on transient
// failures. It wraps any ports.ExchangeClient rather than defining a
// concrete exchange, mirroring the teacher's polymarket.Client — which
// rate-limits and retries per endpoint class (books/gamma/general) with
// the same doWithRetry/sleep shape this file generalizes to an arbitrary
// ExchangeClient's method categories (market-data reads vs order writes).
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// Config tunes the Retrying decorator. Zero values fall back to the
// teacher's own constants (maxRetries=3, baseRetryWait=500ms).
type Config struct {
	ReadRatePerSec  float64 // GetKlines/GetPrice/GetSymbolInfo/Ping
	WriteRatePerSec float64 // MarketBuy/MarketSell/PlaceStopLossOrder/...
	MaxRetries      int
	BaseRetryWait   time.Duration
	CallTimeout     time.Duration // per spec §5, typical 8-15s
}

func (c Config) withDefaults() Config {
	if c.ReadRatePerSec <= 0 {
		c.ReadRatePerSec = 18
	}
	if c.WriteRatePerSec <= 0 {
		c.WriteRatePerSec = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseRetryWait <= 0 {
		c.BaseRetryWait = 500 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// RetryableError marks an error surfaced by the wrapped client as
// transient (network failure, 429/418, 5xx) so Retrying knows to retry it
// instead of returning immediately on the first attempt. An error that is
// neither wrapped with this nor a context.DeadlineExceeded is treated as a
// client error and returned after the first attempt without any retry.
type RetryableError struct{ Err error }

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so Retrying always retries it regardless of the
// default client-error classification.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// Retrying decorates a ports.ExchangeClient with rate limiting, a per-call
// timeout, and exponential-backoff retry (spec §5's "network timeouts
// required on every HTTP request" and the 429/418 backpressure policy).
type Retrying struct {
	inner ports.ExchangeClient
	cfg   Config

	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

var _ ports.ExchangeClient = (*Retrying)(nil)

// NewRetrying wraps inner with the given Config (zero value uses defaults).
func NewRetrying(inner ports.ExchangeClient, cfg Config) *Retrying {
	cfg = cfg.withDefaults()
	return &Retrying{
		inner:        inner,
		cfg:          cfg,
		readLimiter:  rate.NewLimiter(rate.Limit(cfg.ReadRatePerSec), int(math.Max(1, cfg.ReadRatePerSec))),
		writeLimiter: rate.NewLimiter(rate.Limit(cfg.WriteRatePerSec), int(math.Max(1, cfg.WriteRatePerSec))),
	}
}

// call runs fn with the per-call timeout, rate limiting via limiter, and
// exponential-backoff retry — the same shape as the teacher's
// Client.doWithRetry, generalized from "HTTP response code" to "any error"
// since ExchangeClient hides the transport.
func (r *Retrying) call(ctx context.Context, limiter *rate.Limiter, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("exchange.Retrying: rate limiter: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == r.cfg.MaxRetries {
			break
		}
		var retryable RetryableError
		if !errors.As(err, &retryable) && !errors.Is(err, context.DeadlineExceeded) {
			// Not marked transient and not a timeout: treat as a client
			// error and stop retrying, matching the teacher's 4xx path.
			break
		}
		slog.Warn("exchange.Retrying: retrying after error", "attempt", attempt+1, "err", err)
		r.sleep(ctx, attempt)
	}
	return fmt.Errorf("exchange.Retrying: exhausted %d retries: %w", r.cfg.MaxRetries, lastErr)
}

// sleep waits with exponential backoff, respecting ctx cancellation,
// exactly as the teacher's Client.sleep does.
func (r *Retrying) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * r.cfg.BaseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (r *Retrying) Ping(ctx context.Context) error {
	return r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		return r.inner.Ping(ctx)
	})
}

func (r *Retrying) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Kline, error) {
	var out []domain.Kline
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetKlines(ctx, symbol, timeframe, limit)
		return err
	})
	return out, err
}

func (r *Retrying) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (r *Retrying) GetUSDTBalance(ctx context.Context) (float64, error) {
	var out float64
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetUSDTBalance(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) MarketBuy(ctx context.Context, symbol string, usdtAmount float64) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.MarketBuy(ctx, symbol, usdtAmount)
		return err
	})
	return out, err
}

func (r *Retrying) MarketSell(ctx context.Context, symbol string, qty float64) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.MarketSell(ctx, symbol, qty)
		return err
	})
	return out, err
}

func (r *Retrying) MarketBuyByQty(ctx context.Context, symbol string, qty float64) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.MarketBuyByQty(ctx, symbol, qty)
		return err
	})
	return out, err
}

func (r *Retrying) PlaceStopLossOrder(ctx context.Context, symbol string, side domain.Side, qty, stopPrice float64) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.PlaceStopLossOrder(ctx, symbol, side, qty, stopPrice)
		return err
	})
	return out, err
}

func (r *Retrying) PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, qty, price float64) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.PlaceTakeProfitOrder(ctx, symbol, side, qty, price)
		return err
	})
	return out, err
}

func (r *Retrying) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return r.call(ctx, r.writeLimiter, func(ctx context.Context) error {
		return r.inner.CancelOrder(ctx, symbol, orderID)
	})
}

func (r *Retrying) GetOrder(ctx context.Context, symbol, orderID string) (ports.ExchangeOrder, error) {
	var out ports.ExchangeOrder
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetOrder(ctx, symbol, orderID)
		return err
	})
	return out, err
}

func (r *Retrying) GetFuturesPositions(ctx context.Context) ([]ports.FuturesPosition, error) {
	var out []ports.FuturesPosition
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetFuturesPositions(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) GetSymbolInfo(ctx context.Context, symbol string) (ports.SymbolInfo, error) {
	var out ports.SymbolInfo
	err := r.call(ctx, r.readLimiter, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GetSymbolInfo(ctx, symbol)
		return err
	})
	return out, err
}
