package domain

import "time"

// OrderStatus mirrors the exchange's terminal/non-terminal order states, as
// returned by ports.ExchangeClient.GetOrder.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether this status will never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderExpired, OrderRejected:
		return true
	default:
		return false
	}
}

// OrderPurpose distinguishes an entry order from an exit order, since the
// Order State Machine escalates exit-order timeouts to a forced exit but
// simply cancels entry-order timeouts.
type OrderPurpose string

const (
	PurposeEntry OrderPurpose = "entry"
	PurposeExit  OrderPurpose = "exit"
)

// PendingOrder is present in Account.OpenOrders iff the engine is still
// waiting for a terminal exchange state for it.
type PendingOrder struct {
	OrderID      string
	Symbol       string
	Side         Side
	Purpose      OrderPurpose
	PlacedAt     time.Time
	RequestedQty float64
	FilledQty    float64
	TimeoutMs    int64
}

// Deadline returns the absolute instant after which this order is eligible
// for timeout reconciliation.
func (o PendingOrder) Deadline() time.Time {
	return o.PlacedAt.Add(time.Duration(o.TimeoutMs) * time.Millisecond)
}

// FillRatio returns FilledQty/RequestedQty, or 1 when nothing was requested.
func (o PendingOrder) FillRatio() float64 {
	if o.RequestedQty <= 0 {
		return 1
	}
	return o.FilledQty / o.RequestedQty
}
