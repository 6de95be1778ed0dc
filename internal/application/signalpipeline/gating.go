package signalpipeline

import "github.com/tradeloop/enginecore/internal/domain"

// SignalSets is the configured rule-id list for each signal type.
type SignalSets struct {
	Buy   []string
	Sell  []string
	Short []string
	Cover []string
}

// Gate decides which single signal type is live for the given position
// state, evaluating only the rule families that state permits (spec §4.4
// stage 2): no position evaluates buy and short (buy wins ties); a long
// position only evaluates sell; a short position only evaluates cover.
// This closes the class of bug where opposite-direction rule sets could
// mutually mask each other if evaluated together.
func Gate(sets SignalSets, positionSide *domain.Side, ctx RuleContext) domain.SignalType {
	if positionSide == nil {
		buy := Evaluate(sets.Buy, ctx)
		short := Evaluate(sets.Short, ctx)
		switch {
		case buy:
			return domain.SignalBuy
		case short:
			return domain.SignalShort
		default:
			return domain.SignalNone
		}
	}
	switch *positionSide {
	case domain.SideLong:
		if Evaluate(sets.Sell, ctx) {
			return domain.SignalSell
		}
	case domain.SideShort:
		if Evaluate(sets.Cover, ctx) {
			return domain.SignalCover
		}
	}
	return domain.SignalNone
}
