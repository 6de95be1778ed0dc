// Package reconcile compares a scenario's local account positions against
// the exchange's reported positions at startup, to catch state drift left
// by a crash between a local mutation and its exchange-side effect — spec
// §4.8.
package reconcile

import (
	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

const (
	// qtyMismatchRelDiff is the relative quantity difference above which a
	// both-sides-present discrepancy is flagged at all.
	qtyMismatchRelDiff = 0.05
	// criticalRelDiff is the relative quantity difference above which a
	// discrepancy is escalated to critical severity.
	criticalRelDiff = 0.10
)

// Run compares local against the exchange's reported futures/margin
// positions and produces a report. It never mutates local; callers that
// want auto-sync apply AutoSync separately so a dry-run report is always
// available first.
func Run(local domain.Account, exchangePositions []ports.FuturesPosition) domain.ReconcileReport {
	exBySymbol := make(map[string]ports.FuturesPosition, len(exchangePositions))
	for _, p := range exchangePositions {
		exBySymbol[p.Symbol] = p
	}

	var report domain.ReconcileReport

	for symbol, pos := range local.Positions {
		ex, ok := exBySymbol[symbol]
		if !ok {
			report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
				Symbol:   symbol,
				Kind:     domain.DiscrepancyMissingExchange,
				LocalQty: pos.Quantity,
			})
			continue
		}
		if relDiff := quantityRelDiff(pos.Quantity, ex.Quantity); relDiff > qtyMismatchRelDiff {
			report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
				Symbol:      symbol,
				Kind:        domain.DiscrepancyQtyMismatch,
				LocalQty:    pos.Quantity,
				ExchangeQty: ex.Quantity,
				RelDiff:     relDiff,
			})
		}
	}

	for symbol, ex := range exBySymbol {
		if _, ok := local.Positions[symbol]; ok {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			Symbol:      symbol,
			Kind:        domain.DiscrepancyMissingLocal,
			ExchangeQty: ex.Quantity,
		})
	}

	report.Severity = severityOf(report.Discrepancies)
	return report
}

func severityOf(discrepancies []domain.Discrepancy) domain.Severity {
	if len(discrepancies) == 0 {
		return domain.SeverityOK
	}
	severity := domain.SeverityWarning
	for _, d := range discrepancies {
		if d.RelDiff > criticalRelDiff {
			return domain.SeverityCritical
		}
	}
	return severity
}

func quantityRelDiff(local, exchange float64) float64 {
	base := local
	if base == 0 {
		base = exchange
	}
	if base == 0 {
		return 0
	}
	diff := local - exchange
	if diff < 0 {
		diff = -diff
	}
	return diff / absF(base)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// AutoSync incorporates any missing_local discrepancy (exchange has a
// position local doesn't) into the account, using the exchange's reported
// quantity and entry price as the position's quantity/entry price. This is
// the optional auto-sync mode; the default mode is observational (report
// only) — spec §4.8. Running AutoSync twice in succession is idempotent:
// the second pass finds no more missing_local discrepancies to apply.
func AutoSync(local *domain.Account, exchangePositions []ports.FuturesPosition, report domain.ReconcileReport) {
	missing := make(map[string]ports.FuturesPosition)
	for _, d := range report.Discrepancies {
		if d.Kind != domain.DiscrepancyMissingLocal {
			continue
		}
		for _, ex := range exchangePositions {
			if ex.Symbol == d.Symbol {
				missing[d.Symbol] = ex
			}
		}
	}
	if local.Positions == nil {
		local.Positions = make(map[string]domain.Position)
	}
	for symbol, ex := range missing {
		if _, exists := local.Positions[symbol]; exists {
			continue
		}
		local.Positions[symbol] = domain.Position{
			Symbol:     symbol,
			Side:       domain.NormalizeSide(ex.Side),
			Quantity:   ex.Quantity,
			EntryPrice: ex.EntryPrice,
		}
	}
}
