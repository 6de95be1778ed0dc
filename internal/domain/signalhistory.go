package domain

import "time"

// SignalHistoryStatus is the lifecycle of a recorded entry signal.
type SignalHistoryStatus string

const (
	HistoryOpen    SignalHistoryStatus = "open"
	HistoryClosed  SignalHistoryStatus = "closed"
	HistoryExpired SignalHistoryStatus = "expired"
)

// SignalHistoryRecord is one append-only JSONL entry, updated in place (via
// the sidecar line-offset index) when the corresponding position closes.
type SignalHistoryRecord struct {
	ID              string
	Symbol          string
	Type            SignalType
	EntryPrice      float64
	EntryTime       time.Time
	EntryConditions map[string]any // indicator snapshot fields + triggered rule ids
	Status          SignalHistoryStatus
	ExitPrice       float64
	ExitTime        time.Time
	ExitReason      string
	PnL             float64
	PnLPercent      float64
	HoldingHours    float64
}
