/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation (go-playground/validator tags)
  - Version evolution

MONEY:
  Amounts travel as JSON numbers or strings and are parsed into
  shopspring decimals at the boundary; nothing downstream touches floats.

SEE ALSO:
  - handlers.go: Handler implementations using these DTOs
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/blocledger/fee-engine/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

// OpenMonthRequest starts the association's first draft month.
type OpenMonthRequest struct {
	Month string `json:"month" validate:"required"`
}

// ExpenseEntryRequest creates or replaces one month's expense entry.
type ExpenseEntryRequest struct {
	ID     string `json:"id,omitempty"`
	TypeID string `json:"typeId" validate:"required"`
	Name   string `json:"name,omitempty"`

	// Exactly one of these amount shapes applies, depending on the expense
	// type's distribution and reception configuration.
	Amount         decimal.Decimal            `json:"amount,omitempty"`
	AmountsByBlock map[string]decimal.Decimal `json:"amountsByBlock,omitempty"`
	AmountsByStair map[string]decimal.Decimal `json:"amountsByStair,omitempty"`

	UnitPrice   decimal.Decimal            `json:"unitPrice,omitempty"`
	BillAmount  decimal.Decimal            `json:"billAmount,omitempty"`
	Consumption map[string]decimal.Decimal `json:"consumption,omitempty"`

	IndividualAmounts map[string]decimal.Decimal `json:"individualAmounts,omitempty"`

	InvoiceIDs []string `json:"invoiceIds,omitempty"`
}

// AdjustRequest replaces one apartment's carried balances.
type AdjustRequest struct {
	ApartmentID string          `json:"apartmentId" validate:"required"`
	Restante    decimal.Decimal `json:"restante"`
	Penalitati  decimal.Decimal `json:"penalitati"`
}

// PaymentRequest records one cash-desk payment.
type PaymentRequest struct {
	ApartmentID string          `json:"apartmentId" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Method      string          `json:"method,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
}

// PublishRequest freezes a month.
type PublishRequest struct {
	PublishedBy string `json:"publishedBy,omitempty"`
	AckWarnings bool   `json:"ackWarnings,omitempty"`
}

// InvoiceRequest registers a supplier invoice.
type InvoiceRequest struct {
	ID          string          `json:"id,omitempty"`
	Number      string          `json:"number" validate:"required"`
	Supplier    string          `json:"supplier" validate:"required"`
	TypeID      string          `json:"expenseTypeId,omitempty"`
	IssueDate   string          `json:"issueDate" validate:"required"`
	DueDate     string          `json:"dueDate,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount" validate:"required"`
	DocumentRef string          `json:"documentRef,omitempty"`
}

// InvoiceLinkRequest ties part of an invoice to an expense entry.
type InvoiceLinkRequest struct {
	MonthKey string          `json:"monthKey" validate:"required"`
	EntryID  string          `json:"entryId" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// MonthResponse is the sheet plus its current validation findings.
type MonthResponse struct {
	Sheet    *engine.MonthSheet `json:"sheet"`
	Findings []engine.Finding   `json:"findings"`
}

// PublishResponse returns the archived record; findings are echoed so the
// client can show acknowledged warnings.
type PublishResponse struct {
	Record   *engine.VersionRecord `json:"record"`
	Findings []engine.Finding      `json:"findings,omitempty"`
}

// VersionResponse wraps a loaded version with its integrity check result.
type VersionResponse struct {
	Record           *engine.VersionRecord `json:"record"`
	IntegrityWarning string                `json:"integrityWarning,omitempty"`
}

// ImportResponse reports the merge outcome.
type ImportResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error    string           `json:"error"`
	Details  string           `json:"details,omitempty"`
	Findings []engine.Finding `json:"findings,omitempty"`
}
