package domain

import "time"

// CvdEntry is the rolling cumulative-volume-delta state for one symbol,
// produced by the optional streaming consumer and consumed through a
// TTL-gated cache.
type CvdEntry struct {
	Symbol        string
	CVD           float64
	BuyVolume     float64
	SellVolume    float64
	TradeCount    int64
	WindowStartMs int64
	UpdatedAt     time.Time
}
