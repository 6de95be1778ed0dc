package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

func fixtureLocal() domain.Account {
	acct := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	acct.Positions["BTCUSDT"] = domain.Position{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1, EntryPrice: 100}
	return acct
}

func TestRun_NoDiscrepancies(t *testing.T) {
	local := fixtureLocal()
	exchange := []ports.FuturesPosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1, EntryPrice: 100}}

	report := Run(local, exchange)

	assert.Empty(t, report.Discrepancies)
	assert.Equal(t, domain.SeverityOK, report.Severity)
}

func TestRun_MissingExchange(t *testing.T) {
	local := fixtureLocal()

	report := Run(local, nil)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, domain.DiscrepancyMissingExchange, report.Discrepancies[0].Kind)
	assert.Equal(t, domain.SeverityWarning, report.Severity)
}

func TestRun_MissingLocal(t *testing.T) {
	local := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	exchange := []ports.FuturesPosition{{Symbol: "ETHUSDT", Side: domain.SideLong, Quantity: 2, EntryPrice: 50}}

	report := Run(local, exchange)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, domain.DiscrepancyMissingLocal, report.Discrepancies[0].Kind)
	assert.Equal(t, domain.SeverityWarning, report.Severity)
}

func TestRun_QtyMismatchSeverity(t *testing.T) {
	local := fixtureLocal()

	warning := Run(local, []ports.FuturesPosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1.06, EntryPrice: 100}})
	require.Len(t, warning.Discrepancies, 1)
	assert.Equal(t, domain.SeverityWarning, warning.Severity)

	critical := Run(local, []ports.FuturesPosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1.5, EntryPrice: 100}})
	require.Len(t, critical.Discrepancies, 1)
	assert.Equal(t, domain.SeverityCritical, critical.Severity)
}

func TestRun_SmallQtyDiffIgnored(t *testing.T) {
	local := fixtureLocal()
	report := Run(local, []ports.FuturesPosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1.01, EntryPrice: 100}})
	assert.Empty(t, report.Discrepancies)
	assert.Equal(t, domain.SeverityOK, report.Severity)
}

func TestAutoSync_AddsMissingLocalIdempotently(t *testing.T) {
	local := domain.NewAccount(1000, time.Unix(0, 0).UTC())
	exchange := []ports.FuturesPosition{{Symbol: "ETHUSDT", Side: domain.SideShort, Quantity: 3, EntryPrice: 200}}
	report := Run(local, exchange)

	AutoSync(&local, exchange, report)
	require.Contains(t, local.Positions, "ETHUSDT")
	assert.Equal(t, domain.SideShort, local.Positions["ETHUSDT"].Side)

	// Second pass against a fresh report should be a no-op.
	report2 := Run(local, exchange)
	AutoSync(&local, exchange, report2)
	assert.Len(t, local.Positions, 1)
}

func TestAutoSync_DoesNotOverwriteExisting(t *testing.T) {
	local := fixtureLocal()
	exchange := []ports.FuturesPosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 99, EntryPrice: 1}}
	report := domain.ReconcileReport{Discrepancies: []domain.Discrepancy{{Symbol: "BTCUSDT", Kind: domain.DiscrepancyMissingLocal}}}

	AutoSync(&local, exchange, report)

	assert.Equal(t, 1.0, local.Positions["BTCUSDT"].Quantity)
}
