package domain

import "time"

// Trade is an append-only record of a fill, entry or exit. Exit trades carry
// PnL/PnLPercent; entry trades leave them at zero.
type Trade struct {
	ID          string
	Symbol      string
	Side        Side
	Quantity    float64
	Price       float64
	USDTAmount  float64
	Fee         float64
	Slippage    float64
	Timestamp   time.Time
	Reason      string
	IsExit      bool
	PnL         float64
	PnLPercent  float64
}
