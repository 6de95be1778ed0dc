package domain

// DiscrepancyKind categorizes a mismatch found between the local account's
// positions and the exchange's reported positions at startup.
type DiscrepancyKind string

const (
	DiscrepancyMissingExchange DiscrepancyKind = "missing_exchange" // local has it, exchange doesn't
	DiscrepancyMissingLocal    DiscrepancyKind = "missing_local"     // exchange has it, local doesn't
	DiscrepancyQtyMismatch     DiscrepancyKind = "qty_mismatch"      // both have it, qty differs > 5%
)

// Severity grades how concerning a ReconcileReport is.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical" // any qty diff > 10%
)

// Discrepancy is one mismatch found during reconciliation.
type Discrepancy struct {
	Symbol     string
	Kind       DiscrepancyKind
	LocalQty   float64
	ExchangeQty float64
	RelDiff    float64 // relative quantity difference, 0 when not applicable
}

// ReconcileReport is the output of comparing a local account against the
// exchange's reported positions at startup.
type ReconcileReport struct {
	Discrepancies []Discrepancy
	Severity      Severity
}
