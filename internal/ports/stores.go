package ports

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
)

// AccountStore durably persists one scenario's Account. Concrete
// implementations must use write-to-temp + atomic-rename (spec §4.10).
type AccountStore interface {
	LoadAccount(ctx context.Context, scenarioID string, initialUSDT float64) (domain.Account, error)
	SaveAccount(ctx context.Context, scenarioID string, account domain.Account) error
}

// ScenarioState is the small persisted control file behind pause/resume and
// the notification-cooldown ledger (spec §6 state-{scenarioId}.json).
type ScenarioState struct {
	LastSignals  map[string]LastSignal
	LastReportAt time.Time
	Paused       bool
	PauseReason  string
}

// LastSignal records the last time a (symbol, signalType) pair fired, for
// the notification-cooldown filter.
type LastSignal struct {
	Type      domain.SignalType
	Timestamp time.Time
}

// ScenarioStateStore persists/loads the scenario control-state file.
type ScenarioStateStore interface {
	LoadState(ctx context.Context, scenarioID string) (ScenarioState, error)
	SaveState(ctx context.Context, scenarioID string, state ScenarioState) error
}

// SignalHistoryStore appends entry records and updates them in place on
// close, backed by a JSONL file plus a sidecar id->offset index (spec §6/§9).
type SignalHistoryStore interface {
	Append(ctx context.Context, rec domain.SignalHistoryRecord) error
	CloseSignal(ctx context.Context, id string, exitPrice float64, exitTime time.Time, exitReason string, pnl, pnlPercent float64) error
	ExpireSignal(ctx context.Context, id string) error
}

// HeartbeatStore records/reads per-task liveness for the Watchdog.
type HeartbeatStore interface {
	Record(ctx context.Context, task string, at time.Time, durationMs int64) error
	Read(ctx context.Context, task string) (at time.Time, durationMs int64, err error)
}

// KillSwitch reports whether the process-wide kill-switch flag is present.
type KillSwitch interface {
	Active(ctx context.Context) bool
}

// EquitySnapshot is one hourly mark of a scenario's total equity (spec §6
// equity-history-{scenarioId}.jsonl).
type EquitySnapshot struct {
	At     time.Time
	Equity float64
	USDT   float64
}

// EquityHistory appends hourly equity snapshots per scenario, for
// post-hoc analysis outside the core (reporting/backtesting tooling
// consumes the file; the core only ever appends to it).
type EquityHistory interface {
	Append(ctx context.Context, scenarioID string, snap EquitySnapshot) error
}
