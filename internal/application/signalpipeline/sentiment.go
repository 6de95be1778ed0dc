package signalpipeline

import (
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// SentimentOutcome is the four-way verdict sentiment gating produces.
type SentimentOutcome string

const (
	SentimentExecute SentimentOutcome = "execute"
	SentimentReduce  SentimentOutcome = "reduce"
	SentimentWarn    SentimentOutcome = "warn"
	SentimentSkip    SentimentOutcome = "skip"
)

// SentimentVerdict carries the outcome plus the adjusted ratio to use
// (baseline is the already filter-adjusted ratio, so reductions compound).
type SentimentVerdict struct {
	Outcome       SentimentOutcome
	AdjustedRatio float64
}

// EvaluateSentiment runs spec §4.4 stage 5 over a buy/short candidate (sell
// signals only ever warn, never skip or reduce, since exits must not be
// blocked by sentiment).
func EvaluateSentiment(signalType domain.SignalType, snap ports.SentimentSnapshot, currentRatio float64) SentimentVerdict {
	if signalType.IsClose() {
		if snap.FearGreed < 10 || snap.FearGreedDelta > 15 {
			return SentimentVerdict{Outcome: SentimentWarn, AdjustedRatio: currentRatio}
		}
		return SentimentVerdict{Outcome: SentimentExecute, AdjustedRatio: currentRatio}
	}

	if signalType == domain.SignalBuy {
		if snap.FearGreed > 80 || snap.KeywordScore <= -4 || snap.FearGreedDelta < -15 {
			return SentimentVerdict{Outcome: SentimentSkip, AdjustedRatio: 0}
		}
	}

	if snap.Bearish || snap.ImportantNews >= 5 {
		return SentimentVerdict{Outcome: SentimentReduce, AdjustedRatio: currentRatio * 0.5}
	}

	return SentimentVerdict{Outcome: SentimentExecute, AdjustedRatio: currentRatio}
}
