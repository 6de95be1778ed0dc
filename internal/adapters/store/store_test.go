package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

func TestFileAccountStore_InitializesOnFirstAccess(t *testing.T) {
	dir := t.TempDir()
	s := NewFileAccountStore(dir)
	ctx := context.Background()

	account, err := s.LoadAccount(ctx, "sc1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, account.USDT)
	assert.NotNil(t, account.Positions)
}

func TestFileAccountStore_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewFileAccountStore(dir)
	ctx := context.Background()

	account := domain.NewAccount(500, time.Now())
	account.Positions["BTCUSDT"] = domain.Position{Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 100}
	require.NoError(t, s.SaveAccount(ctx, "sc1", account))

	loaded, err := s.LoadAccount(ctx, "sc1", 999)
	require.NoError(t, err)
	assert.Equal(t, 500.0, loaded.InitialUSDT)
	assert.Contains(t, loaded.Positions, "BTCUSDT")

	// File is actually written where spec names it.
	_, err = os.Stat(filepath.Join(dir, "paper-sc1.json"))
	require.NoError(t, err)
}

func TestFileScenarioStateStore_DefaultsToNotPaused(t *testing.T) {
	dir := t.TempDir()
	s := NewFileScenarioStateStore(dir)
	ctx := context.Background()

	state, err := s.LoadState(ctx, "sc1")
	require.NoError(t, err)
	assert.False(t, state.Paused)
	assert.NotNil(t, state.LastSignals)
}

func TestFileScenarioStateStore_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewFileScenarioStateStore(dir)
	ctx := context.Background()

	state := ports.ScenarioState{
		Paused:      true,
		PauseReason: "daily_loss_limit",
		LastSignals: map[string]ports.LastSignal{
			"BTCUSDT": {Type: domain.SignalBuy, Timestamp: time.Now()},
		},
	}
	require.NoError(t, s.SaveState(ctx, "sc1", state))

	loaded, err := s.LoadState(ctx, "sc1")
	require.NoError(t, err)
	assert.True(t, loaded.Paused)
	assert.Equal(t, "daily_loss_limit", loaded.PauseReason)
	assert.Contains(t, loaded.LastSignals, "BTCUSDT")
}

func TestFileSignalHistoryStore_AppendThenClose(t *testing.T) {
	dir := t.TempDir()
	hist, err := NewFileSignalHistoryStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	rec := domain.SignalHistoryRecord{
		ID:         "sig-1",
		Symbol:     "BTCUSDT",
		Type:       domain.SignalBuy,
		EntryPrice: 100,
		EntryTime:  time.Now().Add(-time.Hour),
		Status:     domain.HistoryOpen,
	}
	require.NoError(t, hist.Append(ctx, rec))
	require.NoError(t, hist.CloseSignal(ctx, "sig-1", 110, time.Now(), "take_profit", 10, 0.1))

	// Re-opening the store (simulating a process restart) must still find
	// the closed record via the persisted index.
	reopened, err := NewFileSignalHistoryStore(dir)
	require.NoError(t, err)
	closedRec, err := reopened.readLocked("sig-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HistoryClosed, closedRec.Status)
	assert.Equal(t, "take_profit", closedRec.ExitReason)
}

func TestFileSignalHistoryStore_ToleratesMalformedLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signal-history.jsonl"), []byte("{not json}\n"), 0o644))

	hist, err := NewFileSignalHistoryStore(dir)
	require.NoError(t, err)
	_, err = hist.scanFor("missing")
	assert.Error(t, err)
}

func TestFileHeartbeatStore_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	hb := NewFileHeartbeatStore(dir)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, hb.Record(ctx, "scanner", now, 1234))

	at, ms, err := hb.Read(ctx, "scanner")
	require.NoError(t, err)
	assert.WithinDuration(t, now, at, time.Second)
	assert.Equal(t, int64(1234), ms)
}

func TestFileHeartbeatStore_NeverRecordedReturnsZero(t *testing.T) {
	dir := t.TempDir()
	hb := NewFileHeartbeatStore(dir)

	at, ms, err := hb.Read(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.True(t, at.IsZero())
	assert.Zero(t, ms)
}

func TestFileKillSwitch_ActiveOnlyWhenFlagPresent(t *testing.T) {
	dir := t.TempDir()
	ks := NewFileKillSwitch(dir)
	ctx := context.Background()

	assert.False(t, ks.Active(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kill-switch.flag"), []byte{}, 0o644))
	assert.True(t, ks.Active(ctx))
}

func TestFileSentimentSource_StaleAfterTTL(t *testing.T) {
	dir := t.TempDir()
	src := NewFileSentimentSource(dir)
	ctx := context.Background()

	require.NoError(t, src.Write(ctx, ports.SentimentSnapshot{FearGreed: 50}, time.Now().Add(-time.Hour)))

	_, staleness := src.Read(ctx, time.Minute)
	assert.Equal(t, ports.Unavailable, staleness)

	require.NoError(t, src.Write(ctx, ports.SentimentSnapshot{FearGreed: 60}, time.Now()))
	snap, staleness := src.Read(ctx, time.Minute)
	assert.Equal(t, ports.Fresh, staleness)
	assert.Equal(t, 60.0, snap.FearGreed)
}

func TestFileCvdSource_PerSymbolTTL(t *testing.T) {
	dir := t.TempDir()
	src := NewFileCvdSource(dir)
	ctx := context.Background()

	require.NoError(t, src.Write(ctx, domain.CvdEntry{Symbol: "ETHUSDT", CVD: 42}, time.Now()))

	entry, staleness := src.Read(ctx, "ETHUSDT", time.Minute)
	assert.Equal(t, ports.Fresh, staleness)
	assert.Equal(t, 42.0, entry.CVD)

	_, staleness = src.Read(ctx, "BTCUSDT", time.Minute)
	assert.Equal(t, ports.Unavailable, staleness)
}

func TestFileEmergencyHaltSource_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	src := NewFileEmergencyHaltSource(dir)
	ctx := context.Background()

	require.NoError(t, src.Write(ctx, true, time.Now()))
	active, staleness := src.Read(ctx, time.Minute)
	assert.Equal(t, ports.Fresh, staleness)
	assert.True(t, active)
}

func TestFileFundingSource_RateAndDominance(t *testing.T) {
	dir := t.TempDir()
	src := NewFileFundingSource(dir)
	ctx := context.Background()

	require.NoError(t, src.WriteFundingRate(ctx, "BTCUSDT", 0.0001, time.Now()))
	require.NoError(t, src.WriteBTCDominance(ctx, 52.5, 0.3, time.Now()))

	rate, staleness := src.FundingRate(ctx, "BTCUSDT")
	assert.Equal(t, ports.Fresh, staleness)
	assert.Equal(t, 0.0001, rate)

	dominance, delta, staleness := src.BTCDominance(ctx)
	assert.Equal(t, ports.Fresh, staleness)
	assert.Equal(t, 52.5, dominance)
	assert.Equal(t, 0.3, delta)
}

func TestFileEventCalendar_PhaseTransitions(t *testing.T) {
	dir := t.TempDir()
	cal := NewFileEventCalendar(dir)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []ScheduledEvent{
		{
			Symbol:     "BTCUSDT",
			Name:       "cpi_release",
			Start:      base,
			End:        base.Add(10 * time.Minute),
			PreWindow:  30 * time.Minute,
			PostWindow: 30 * time.Minute,
		},
	}
	require.NoError(t, cal.Write(events))

	assert.Equal(t, ports.EventPre, cal.Phase(context.Background(), "BTCUSDT", base.Add(-20*time.Minute)))
	assert.Equal(t, ports.EventDuring, cal.Phase(context.Background(), "BTCUSDT", base.Add(5*time.Minute)))
	assert.Equal(t, ports.EventPost, cal.Phase(context.Background(), "BTCUSDT", base.Add(20*time.Minute)))
	assert.Equal(t, ports.EventNone, cal.Phase(context.Background(), "BTCUSDT", base.Add(time.Hour)))
	assert.Equal(t, ports.EventNone, cal.Phase(context.Background(), "ETHUSDT", base))
}

func TestFileEquityHistory_AppendsLine(t *testing.T) {
	dir := t.TempDir()
	hist := NewFileEquityHistory(dir)
	ctx := context.Background()

	require.NoError(t, hist.Append(ctx, "sc1", ports.EquitySnapshot{At: time.Now(), Equity: 1050, USDT: 500}))

	data, err := os.ReadFile(filepath.Join(dir, "equity-history-sc1.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1050")
}
