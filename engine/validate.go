/*
validate.go - Pre-publish validation gate

PURPOSE:
  Cross-checks the month before it is frozen: the sum of all distributed
  expense amounts (totalCheltuieli) must match the sum of current
  maintenance across the table (totalTabel). Findings are returned as a
  structured list, never thrown, so the caller can render them; only
  Error-severity findings block publish.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result. Delta carries the signed drift where it
// applies.
type Finding struct {
	Severity Severity        `json:"severity"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Delta    decimal.Decimal `json:"delta"`
}

// CheckSheet runs the gate over a sheet. The rounding epsilon is one cent
// per apartment, aggregated: drift within it is a Warning the administrator
// may acknowledge, drift beyond it is an Error that blocks publish.
func CheckSheet(sheet *MonthSheet) []Finding {
	var findings []Finding

	totalCheltuieli := sheet.TotalCheltuieli()
	totalTabel := sheet.TotalTabel()
	delta := totalCheltuieli.Sub(totalTabel)
	epsilon := Cent.Mul(decimal.NewFromInt(int64(len(sheet.Rows))))

	if !delta.IsZero() {
		severity := SeverityWarning
		if delta.Abs().GreaterThan(epsilon) {
			severity = SeverityError
		}
		findings = append(findings, Finding{
			Severity: severity,
			Code:     "totals_mismatch",
			Message: fmt.Sprintf("expense total %s does not match table total %s",
				totalCheltuieli.StringFixed(2), totalTabel.StringFixed(2)),
			Delta: delta,
		})
	}

	// Individual-amount verification drift never blocks; it is surfaced for
	// the administrator to correct or accept.
	for i := range sheet.Expenses {
		entry := &sheet.Expenses[i]
		if entry.Discrepancy.IsZero() {
			continue
		}
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Code:     "individual_amount_discrepancy",
			Message: fmt.Sprintf("entry %q: individual amounts differ from the entered total by %s",
				entry.Name, entry.Discrepancy.StringFixed(2)),
			Delta: entry.Discrepancy,
		})
	}

	return findings
}

// HasBlocking reports whether any finding is Error severity.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any finding is Warning severity.
func HasWarnings(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			return true
		}
	}
	return false
}
