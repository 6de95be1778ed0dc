// Package dataprovider fetches and caches K-line series for every symbol a
// scenario trades, bounding concurrency with a worker pool so one slow
// symbol never blocks the batch beyond its own request timeout — the same
// shape as the teacher's analyzeMarketsConcurrent, aimed at klines instead
// of orderbook analysis.
package dataprovider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// Config tunes the provider's batching and caching behaviour.
type Config struct {
	Timeframe      string
	KlineLimit     int
	Workers        int           // <=0 means defaultWorkers (3)
	StaleAfter     time.Duration // a cache entry older than this is refetched
	RequestTimeout time.Duration // per-symbol fetch deadline
}

// defaultWorkers bounds concurrent K-line fetches when Config.Workers is
// unset, keeping a batch small enough for exchange rate limits.
const defaultWorkers = 3

type cacheEntry struct {
	series   domain.KlineSeries
	fetchedAt time.Time
}

// Provider batches K-line fetches across symbols once per tick and serves
// the most recent series to every consumer within that tick without
// refetching — the "at most once per tick" guarantee spec §4.2 requires of
// runTick's data-refresh phase.
type Provider struct {
	client ports.ExchangeClient
	cfg    Config

	mu    sync.RWMutex
	cache map[string]cacheEntry // keyed by symbol
}

// New builds a Provider around an ExchangeClient.
func New(client ports.ExchangeClient, cfg Config) *Provider {
	return &Provider{client: client, cfg: cfg, cache: make(map[string]cacheEntry)}
}

// RefreshAll fetches fresh K-lines for every symbol whose cache entry is
// stale or absent, using a bounded worker pool, and returns the set of
// symbols that failed to refresh (their stale/absent cache entry is left as
// is so the tick can proceed for the rest of the batch).
func (p *Provider) RefreshAll(ctx context.Context, symbols []string) (failed []string) {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	stale := p.staleSymbols(symbols)
	if len(stale) == 0 {
		return nil
	}

	workCh := make(chan string, len(stale))
	type result struct {
		symbol string
		series domain.KlineSeries
		err    error
	}
	resultCh := make(chan result, len(stale))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range workCh {
				reqCtx := ctx
				var cancel context.CancelFunc
				if p.cfg.RequestTimeout > 0 {
					reqCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
				}
				candles, err := p.client.GetKlines(reqCtx, symbol, p.cfg.Timeframe, p.cfg.KlineLimit)
				if cancel != nil {
					cancel()
				}
				if err != nil {
					resultCh <- result{symbol: symbol, err: err}
					continue
				}
				resultCh <- result{symbol: symbol, series: domain.KlineSeries{
					Symbol:    symbol,
					Timeframe: p.cfg.Timeframe,
					Candles:   candles,
				}}
			}
		}()
	}

	for _, symbol := range stale {
		workCh <- symbol
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	now := time.Now()
	for r := range resultCh {
		if r.err != nil {
			slog.Warn("kline refresh failed", "symbol", r.symbol, "err", r.err)
			failed = append(failed, r.symbol)
			continue
		}
		p.mu.Lock()
		p.cache[r.symbol] = cacheEntry{series: r.series, fetchedAt: now}
		p.mu.Unlock()
	}
	return failed
}

// Get returns the cached series for symbol and whether it is present.
func (p *Provider) Get(symbol string) (domain.KlineSeries, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[symbol]
	return entry.series, ok
}

func (p *Provider) staleSymbols(symbols []string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := time.Now()
	var stale []string
	for _, symbol := range symbols {
		entry, ok := p.cache[symbol]
		if !ok || now.Sub(entry.fetchedAt) >= p.cfg.StaleAfter {
			stale = append(stale, symbol)
		}
	}
	return stale
}
