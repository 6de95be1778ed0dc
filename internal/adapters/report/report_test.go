package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeloop/enginecore/internal/domain"
)

func TestPrintExposure_RendersSymbolsAndTotals(t *testing.T) {
	var buf bytes.Buffer
	summary := domain.ExposureSummary{
		NotionalPerSymbol: map[string]float64{"BTCUSDT": 800, "ETHUSDT": 200},
		TotalNotional:     1000,
		Equity:            2000,
	}

	PrintExposure(&buf, "main", summary)

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
	assert.Contains(t, out, "leverage 0.50x")
}

func TestPrintDailySummary_RendersOneRowPerScenario(t *testing.T) {
	var buf bytes.Buffer
	PrintDailySummary(&buf, []DailySummaryRow{
		{ScenarioID: "main", Equity: 1000, DailyLoss: 50, DailyLossLimitPercent: 0.05, OpenPositions: 2},
		{ScenarioID: "alt", Equity: 500, DailyLoss: 0, DailyLossLimitPercent: 0.05, OpenPositions: 0},
	})

	out := buf.String()
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "alt")
}

func TestPrintReconcile_NoDiscrepancies(t *testing.T) {
	var buf bytes.Buffer
	PrintReconcile(&buf, "main", domain.ReconcileReport{Severity: domain.SeverityOK})

	assert.Contains(t, buf.String(), "no discrepancies")
}

func TestPrintReconcile_CriticalAdvisesHalt(t *testing.T) {
	var buf bytes.Buffer
	PrintReconcile(&buf, "main", domain.ReconcileReport{
		Severity: domain.SeverityCritical,
		Discrepancies: []domain.Discrepancy{
			{Symbol: "BTCUSDT", Kind: domain.DiscrepancyQtyMismatch, LocalQty: 1, ExchangeQty: 1.2, RelDiff: 0.2},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "CRITICAL")
}
