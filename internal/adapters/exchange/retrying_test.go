package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/ports"
)

type fakeExchange struct {
	ports.ExchangeClient
	pingCalls int
	failTimes int
	permanent bool
}

func (f *fakeExchange) Ping(ctx context.Context) error {
	f.pingCalls++
	if f.pingCalls <= f.failTimes {
		if f.permanent {
			return errors.New("bad request")
		}
		return Retryable(errors.New("503 service unavailable"))
	}
	return nil
}

func testConfig() Config {
	return Config{MaxRetries: 3, BaseRetryWait: time.Millisecond, CallTimeout: time.Second, ReadRatePerSec: 1000, WriteRatePerSec: 1000}
}

func TestRetrying_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	inner := &fakeExchange{failTimes: 2}
	r := NewRetrying(inner, testConfig())

	err := r.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, inner.pingCalls)
}

func TestRetrying_StopsOnNonRetryableError(t *testing.T) {
	inner := &fakeExchange{failTimes: 5, permanent: true}
	r := NewRetrying(inner, testConfig())

	err := r.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, inner.pingCalls)
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &fakeExchange{failTimes: 100}
	r := NewRetrying(inner, testConfig())

	err := r.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, inner.pingCalls) // initial attempt + MaxRetries
}

func TestRetrying_PassesThroughSymbolInfo(t *testing.T) {
	inner := &fakeExchangeWithSymbolInfo{}
	r := NewRetrying(inner, testConfig())

	info, err := r.GetSymbolInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", info.Symbol)
	assert.Equal(t, 0.0001, info.StepSize)
}

type fakeExchangeWithSymbolInfo struct {
	ports.ExchangeClient
}

func (f *fakeExchangeWithSymbolInfo) GetSymbolInfo(ctx context.Context, symbol string) (ports.SymbolInfo, error) {
	return ports.SymbolInfo{Symbol: symbol, StepSize: 0.0001}, nil
}
