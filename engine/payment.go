/*
payment.go - Payment allocation waterfall

PURPOSE:
  Applies an incoming payment to an apartment's balance with a fixed
  priority: penalties first, then arrears (restante), then current
  maintenance. Each bucket is capped at its unpaid portion, and the three
  allocations always sum exactly to the payment amount.

RULES:
  - amount must be positive
  - overpayment is rejected with OverpaymentError, never capped
  - payments are immutable; a correction is a new (possibly negative
    adjustment via the balance ledger), never an edit
  - payments are accepted on draft and published sheets alike
*/
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentInput is the raw payment as entered at the cash desk.
type PaymentInput struct {
	ApartmentID ApartmentID
	Amount      decimal.Decimal
	Method      string
	Notes       string
	CreatedBy   string
}

// AllocatePayment runs the waterfall against the apartment's row in the
// sheet, mutates the row's paid amounts and flags, and returns the
// immutable Payment record. The caller persists the sheet afterwards.
func AllocatePayment(sheet *MonthSheet, in PaymentInput, receiptNumber int, at time.Time) (*Payment, error) {
	row := sheet.Row(in.ApartmentID)
	if row == nil {
		return nil, ErrApartmentNotFound
	}

	amount := Round2(in.Amount)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	due := row.RemainingDue()
	if amount.GreaterThan(due) {
		return nil, &OverpaymentError{ApartmentID: in.ApartmentID, Requested: amount, Due: due}
	}

	// Fixed-priority waterfall, each bucket capped at its unpaid portion.
	penEnc := decimal.Min(amount, row.UnpaidPenalitati())
	remaining := amount.Sub(penEnc)
	restEnc := decimal.Min(remaining, row.UnpaidRestante())
	remaining = remaining.Sub(restEnc)
	intEnc := decimal.Min(remaining, row.UnpaidIntretinere())

	row.PaidPenalitati = row.PaidPenalitati.Add(penEnc)
	row.PaidRestante = row.PaidRestante.Add(restEnc)
	row.PaidIntretinere = row.PaidIntretinere.Add(intEnc)
	row.refreshFlags()

	payment := &Payment{
		ID:              PaymentID(uuid.NewString()),
		ApartmentID:     in.ApartmentID,
		ApartmentNumber: row.ApartmentNumber,
		Owner:           row.Owner,
		Penalitati:      penEnc,
		Restante:        restEnc,
		Intretinere:     intEnc,
		Amount:          amount,
		ReceiptNumber:   receiptNumber,
		Receipt:         FormatReceiptNumber(receiptNumber, at),
		Method:          in.Method,
		Notes:           in.Notes,
		CreatedBy:       in.CreatedBy,
		Timestamp:       at,
	}
	sheet.Payments = append(sheet.Payments, *payment)
	sheet.UpdatedAt = at
	return payment, nil
}

// FormatReceiptNumber renders the display form of a receipt number, e.g.
// "2025-00042".
func FormatReceiptNumber(n int, at time.Time) string {
	return fmt.Sprintf("%d-%05d", at.Year(), n)
}
