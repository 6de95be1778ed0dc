package ports

import (
	"context"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
)

// Staleness is returned alongside a read-through value so callers can tell
// "unavailable" (producer never wrote, or wrote too long ago) from a real
// zero value, per spec §9: stale reads return unavailable, never panic.
type Staleness int

const (
	Fresh       Staleness = iota
	Unavailable           // no value, or past its TTL
)

// SentimentSnapshot is the subset of Fear & Greed + keyword/news sentiment
// the sentiment gate (§4.4 stage 5) consumes.
type SentimentSnapshot struct {
	FearGreed       float64
	FearGreedDelta  float64
	KeywordScore    float64
	ImportantNews   int
	Bearish         bool
}

// EventPhase is the phase of a scheduled market event relative to now.
type EventPhase string

const (
	EventNone   EventPhase = ""
	EventPre    EventPhase = "pre"
	EventDuring EventPhase = "during"
	EventPost   EventPhase = "post"
)

// SentimentSource is the TTL-gated reader for cached sentiment.
type SentimentSource interface {
	Read(ctx context.Context, ttl time.Duration) (SentimentSnapshot, Staleness)
}

// CvdSource is the TTL-gated reader for cached CVD entries.
type CvdSource interface {
	Read(ctx context.Context, symbol string, ttl time.Duration) (domain.CvdEntry, Staleness)
}

// PairListSource is the TTL-gated reader for the dynamic tradeable-pair list.
type PairListSource interface {
	Read(ctx context.Context, ttl time.Duration) ([]string, Staleness)
}

// OnchainSource is the TTL-gated reader for an opaque onchain signal score.
type OnchainSource interface {
	Read(ctx context.Context, ttl time.Duration) (float64, Staleness)
}

// EmergencyHaltSource is the TTL-gated reader for the emergency-halt flag.
type EmergencyHaltSource interface {
	Read(ctx context.Context, ttl time.Duration) (active bool, staleness Staleness)
}

// EventCalendar reports the phase of the nearest scheduled event for a
// symbol, if any.
type EventCalendar interface {
	Phase(ctx context.Context, symbol string, now time.Time) EventPhase
}

// FundingSource reports the current funding rate and BTC dominance reading
// used by the context rule family (§4.4 stage 1).
type FundingSource interface {
	FundingRate(ctx context.Context, symbol string) (float64, Staleness)
	BTCDominance(ctx context.Context) (value, delta float64, st Staleness)
}
