/*
balance.go - Per-apartment balance ledger

PURPOSE:
  Builds and maintains the balance rows of a month sheet: carrying unpaid
  debt forward as arrears (restante) with a penalty, recomputing the current
  maintenance from distributed expense shares, and applying manual
  adjustments.

CARRY-FORWARD MODEL:
  At month open, last month's unpaid arrears plus unpaid current maintenance
  become this month's restante. Penalties keep their own bucket: unpaid
  penalties carry forward unchanged, and a PenaltyPolicy charges new penalty
  on the unpaid current maintenance only. The rate never applies to old
  arrears or to penalties themselves. The exact rate is
  association-specific, so the policy is injected; the default is a flat
  monthly rate.

MUTABILITY:
  All three operations are draft-only. A published sheet rejects them with
  MonthLockedError; only payments may touch a published sheet.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PENALTY POLICY
// =============================================================================

// PenaltyPolicy derives the new penalty charged when a month opens. The
// input is the previous month's unpaid current maintenance; old arrears and
// existing penalties are never penalized again.
type PenaltyPolicy interface {
	Penalty(unpaidMaintenance decimal.Decimal) decimal.Decimal
}

// FlatMonthlyPenalty applies a single rate to the unpaid maintenance.
type FlatMonthlyPenalty struct {
	Rate decimal.Decimal
}

// DefaultPenaltyRate is 1% per month on unpaid current maintenance.
var DefaultPenaltyRate = decimal.NewFromFloat(0.01)

func (p FlatMonthlyPenalty) Penalty(unpaidMaintenance decimal.Decimal) decimal.Decimal {
	if unpaidMaintenance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return Round2(unpaidMaintenance.Mul(p.Rate))
}

// NoPenalty charges nothing; useful for associations that waive penalties.
type NoPenalty struct{}

func (NoPenalty) Penalty(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// BalanceLedger builds and mutates month sheets in memory. Persistence is
// the Service's job; every operation here is a pure state transition.
type BalanceLedger struct {
	Penalties PenaltyPolicy
	now       func() time.Time
}

func NewBalanceLedger(penalties PenaltyPolicy) *BalanceLedger {
	if penalties == nil {
		penalties = FlatMonthlyPenalty{Rate: DefaultPenaltyRate}
	}
	return &BalanceLedger{Penalties: penalties, now: time.Now}
}

// OpenMonth creates the draft sheet for a month. When prev is nil (the first
// managed month) the apartments' initial balances seed the arrears;
// otherwise unpaid maintenance joins the arrears, unpaid penalties carry
// forward in their own bucket, and the policy charges new penalty on the
// unpaid maintenance.
func (l *BalanceLedger) OpenMonth(label string, resolver *Resolver, prev *MonthSheet) (*MonthSheet, error) {
	if _, _, err := ParseMonth(label); err != nil {
		return nil, err
	}

	structure := resolver.Structure()
	now := l.now()
	sheet := &MonthSheet{
		MonthKey:      MonthKey(label),
		Month:         label,
		AssociationID: structure.AssociationID,
		Status:        MonthDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, apt := range resolver.AllApartments() {
		blockName, stairName := resolver.Placement(apt)
		row := BalanceRow{
			ApartmentID:        apt.ID,
			ApartmentNumber:    apt.Number,
			Owner:              apt.Owner,
			Persons:            apt.Persons,
			BlockName:          blockName,
			StairName:          stairName,
			CurrentMaintenance: decimal.Zero,
		}

		if prev == nil {
			row.Restante = Round2(apt.InitialRestante)
			row.Penalitati = Round2(apt.InitialPenalitati)
		} else if prevRow := prev.Row(apt.ID); prevRow != nil {
			unpaidMaintenance := prevRow.UnpaidIntretinere()
			row.Restante = Round2(prevRow.UnpaidRestante().Add(unpaidMaintenance))
			row.Penalitati = Round2(prevRow.UnpaidPenalitati().Add(l.Penalties.Penalty(unpaidMaintenance)))
		}

		row.refreshFlags()
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// RecomputeCurrent rebuilds every row's current maintenance from the
// distributed expense entries of the sheet. Draft-only.
func (l *BalanceLedger) RecomputeCurrent(sheet *MonthSheet) error {
	if !sheet.Editable() {
		return &MonthLockedError{MonthKey: sheet.MonthKey, Status: sheet.Status}
	}

	for i := range sheet.Rows {
		row := &sheet.Rows[i]
		total := decimal.Zero
		details := make(map[string]decimal.Decimal)

		for j := range sheet.Expenses {
			entry := &sheet.Expenses[j]
			share := entry.ShareFor(row.ApartmentID)
			if share.IsZero() {
				continue
			}
			total = total.Add(share)
			details[entry.Name] = details[entry.Name].Add(share)
		}

		row.CurrentMaintenance = total
		row.ExpenseDetails = details
		row.refreshFlags()
	}
	sheet.UpdatedAt = l.now()
	return nil
}

// AdjustResult gives the caller both states so the signed delta can be shown
// before or after committing.
type AdjustResult struct {
	Old BalanceRow
	New BalanceRow
}

// Adjust REPLACES the stored restante/penalitati of one apartment for the
// current month, then recomputes the derived totals. Destructive override
// for manual corrections; draft-only.
func (l *BalanceLedger) Adjust(sheet *MonthSheet, id ApartmentID, restante, penalitati decimal.Decimal) (*AdjustResult, error) {
	if !sheet.Editable() {
		return nil, &MonthLockedError{MonthKey: sheet.MonthKey, Status: sheet.Status}
	}
	row := sheet.Row(id)
	if row == nil {
		return nil, ErrApartmentNotFound
	}

	old := *row
	row.Restante = Round2(restante)
	row.Penalitati = Round2(penalitati)
	row.refreshFlags()
	sheet.UpdatedAt = l.now()

	return &AdjustResult{Old: old, New: *row}, nil
}
