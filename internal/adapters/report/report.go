// Package report renders the one console summary table the core touches
// (spec §1: dashboards are out of scope, but an operator-facing portfolio/
// reconciliation table is not a dashboard) — portfolio exposure, daily P&L,
// and the startup position-reconciliation report — using
// github.com/olekukonko/tablewriter exactly as the teacher's
// internal/adapters/notify/console.go prints its opportunity table.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/tradeloop/enginecore/internal/domain"
)

// PrintExposure renders one row per held symbol plus a totals line, the
// portfolio exposure view spec §4.9 names.
func PrintExposure(w io.Writer, scenarioID string, summary domain.ExposureSummary) {
	fmt.Fprintf(w, "\n=== %s: portfolio exposure ===\n", scenarioID)

	symbols := make([]string, 0, len(summary.NotionalPerSymbol))
	for symbol := range summary.NotionalPerSymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	table := tablewriter.NewWriter(w)
	table.Header("Symbol", "Notional", "Concentration")
	for _, symbol := range symbols {
		notional := summary.NotionalPerSymbol[symbol]
		table.Append(symbol, fmt.Sprintf("$%.2f", notional), fmt.Sprintf("%.1f%%", summary.Concentration(symbol)*100))
	}
	table.Render()

	fmt.Fprintf(w, "  total notional $%.2f | equity $%.2f | leverage %.2fx\n",
		summary.TotalNotional, summary.Equity, summary.Leverage())
}

// PrintDailySummary renders one row per scenario's current equity and
// today's realized loss against its configured daily-loss limit.
func PrintDailySummary(w io.Writer, rows []DailySummaryRow) {
	fmt.Fprintln(w, "\n=== daily summary ===")

	table := tablewriter.NewWriter(w)
	table.Header("Scenario", "Equity", "Today's loss", "Limit %", "Positions")
	for _, r := range rows {
		table.Append(
			r.ScenarioID,
			fmt.Sprintf("$%.2f", r.Equity),
			fmt.Sprintf("$%.2f", r.DailyLoss),
			fmt.Sprintf("%.1f%%", r.DailyLossLimitPercent*100),
			fmt.Sprintf("%d", r.OpenPositions),
		)
	}
	table.Render()
}

// DailySummaryRow is one scenario's row in the daily summary table.
type DailySummaryRow struct {
	ScenarioID            string
	Equity                float64
	DailyLoss             float64
	DailyLossLimitPercent float64
	OpenPositions         int
}

// PrintReconcile renders a domain.ReconcileReport as a table, one row per
// discrepancy, with the overall severity printed above it — the pretty-
// printer spec §4.8/§12 asks for since "emit a report" names no shape.
func PrintReconcile(w io.Writer, scenarioID string, rep domain.ReconcileReport) {
	fmt.Fprintf(w, "\n=== %s: position reconciliation (%s) ===\n", scenarioID, rep.Severity)
	if len(rep.Discrepancies) == 0 {
		fmt.Fprintln(w, "  no discrepancies")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Symbol", "Kind", "Local qty", "Exchange qty", "Diff")
	for _, d := range rep.Discrepancies {
		table.Append(
			d.Symbol,
			string(d.Kind),
			fmt.Sprintf("%.6f", d.LocalQty),
			fmt.Sprintf("%.6f", d.ExchangeQty),
			fmt.Sprintf("%.1f%%", d.RelDiff*100),
		)
	}
	table.Render()

	if rep.Severity == domain.SeverityCritical {
		fmt.Fprintln(w, "  CRITICAL: recommend pausing this scenario until reviewed")
	}
}
