package domain

import "time"

// DailyLoss tracks cumulative realized losses within one UTC calendar day.
// It resets to zero whenever the day rolls over.
type DailyLoss struct {
	Date time.Time // UTC day, truncated to midnight
	Loss float64   // sum of |pnl| for losing exit trades today
}

// Account is the complete per-scenario trading state. It is owned
// exclusively by its Scenario Runtime; every other component only ever
// receives a reference or a copy.
type Account struct {
	InitialUSDT float64
	USDT        float64
	Positions   map[string]Position
	Trades      []Trade
	OpenOrders  map[string]PendingOrder
	DailyLoss   DailyLoss
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewAccount initializes a fresh account with the given starting capital.
func NewAccount(initialUSDT float64, now time.Time) Account {
	return Account{
		InitialUSDT: initialUSDT,
		USDT:        initialUSDT,
		Positions:   make(map[string]Position),
		OpenOrders:  make(map[string]PendingOrder),
		DailyLoss:   DailyLoss{Date: now.UTC().Truncate(24 * time.Hour)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ClampCash floors USDT at zero. The engine must never let an operation
// produce negative cash; this is the single choke point that enforces it.
func (a *Account) ClampCash() {
	if a.USDT < 0 {
		a.USDT = 0
	}
}

// HasPosition reports whether the account currently holds a position in
// symbol.
func (a Account) HasPosition(symbol string) bool {
	_, ok := a.Positions[symbol]
	return ok
}

// AppendTrade appends to the trade log, preserving append-only ordering,
// and rolls the daily-loss ledger forward for losing exits.
func (a *Account) AppendTrade(t Trade) {
	a.Trades = append(a.Trades, t)
	if t.IsExit && t.PnL < 0 {
		a.DailyLoss.Loss += -t.PnL
	}
}

// ResetDailyLossIfNeeded zeroes the daily-loss counter when the UTC date has
// rolled over since it was last touched.
func (a *Account) ResetDailyLossIfNeeded(now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if !a.DailyLoss.Date.Equal(today) {
		a.DailyLoss.Date = today
		a.DailyLoss.Loss = 0
	}
}

// CalcTotalEquity returns USDT cash plus the notional value of every open
// position, valued at prices[symbol] and falling back to entry price when
// the symbol has no current quote.
func (a Account) CalcTotalEquity(prices map[string]float64) float64 {
	equity := a.USDT
	for symbol, pos := range a.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		equity += pos.Quantity * price
	}
	return equity
}
