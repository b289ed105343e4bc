package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/blocledger/fee-engine/engine"
)

func gateSheet(maintenance, shares string) *engine.MonthSheet {
	return &engine.MonthSheet{
		MonthKey: "Martie_2025",
		Month:    "Martie 2025",
		Status:   engine.MonthDraft,
		Rows: []engine.BalanceRow{
			{ApartmentID: "ap-01", CurrentMaintenance: d(maintenance)},
		},
		Expenses: []engine.ExpenseEntry{{
			ID: "e1", Name: "Curatenie",
			PerApartmentShare: map[engine.ApartmentID]decimal.Decimal{"ap-01": d(shares)},
		}},
	}
}

func TestCheckSheet_CleanTable(t *testing.T) {
	findings := engine.CheckSheet(gateSheet("500", "500"))
	assert.Empty(t, findings)
	assert.False(t, engine.HasBlocking(findings))
	assert.False(t, engine.HasWarnings(findings))
}

func TestCheckSheet_DriftWithinEpsilonIsWarning(t *testing.T) {
	// One row allows one cent of rounding drift.
	findings := engine.CheckSheet(gateSheet("500", "500.01"))

	assert.Len(t, findings, 1)
	assert.Equal(t, engine.SeverityWarning, findings[0].Severity)
	assert.Equal(t, "totals_mismatch", findings[0].Code)
	assert.False(t, engine.HasBlocking(findings))
	assert.True(t, engine.HasWarnings(findings))
}

func TestCheckSheet_DriftBeyondEpsilonBlocks(t *testing.T) {
	findings := engine.CheckSheet(gateSheet("500", "510"))

	assert.Len(t, findings, 1)
	assert.Equal(t, engine.SeverityError, findings[0].Severity)
	assert.True(t, findings[0].Delta.Equal(d("10")))
	assert.True(t, engine.HasBlocking(findings))
}

func TestCheckSheet_IndividualDiscrepancyIsWarning(t *testing.T) {
	sheet := gateSheet("500", "500")
	sheet.Expenses[0].Discrepancy = d("-5")

	findings := engine.CheckSheet(sheet)
	assert.Len(t, findings, 1)
	assert.Equal(t, engine.SeverityWarning, findings[0].Severity)
	assert.Equal(t, "individual_amount_discrepancy", findings[0].Code)
	assert.False(t, engine.HasBlocking(findings))
}
