package domain

import "time"

// SignalType is the tagged type of a pipeline decision. None is the
// absorbing element: buy/short open a position, sell/cover close one.
type SignalType string

const (
	SignalNone  SignalType = "none"
	SignalBuy   SignalType = "buy"
	SignalSell  SignalType = "sell"
	SignalShort SignalType = "short"
	SignalCover SignalType = "cover"
)

// IsOpen reports whether this signal type opens a new position.
func (t SignalType) IsOpen() bool {
	return t == SignalBuy || t == SignalShort
}

// IsClose reports whether this signal type closes an existing position.
func (t SignalType) IsClose() bool {
	return t == SignalSell || t == SignalCover
}

// Signal is the output of the signal pipeline for one symbol on one tick.
type Signal struct {
	Symbol     string
	Type       SignalType
	Price      float64
	Reason     []string
	Timestamp  time.Time
	Indicators *IndicatorSnapshot
}

// Rejection describes why the pipeline produced SignalNone instead of a
// tradeable signal, for logging and notification-cooldown bookkeeping.
type Rejection struct {
	Symbol string
	Stage  string
	Reason string
}
