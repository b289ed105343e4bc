/*
errors.go - Centralized error types for the fee engine

PURPOSE:
  All error types in one place. The taxonomy mirrors the financial
  invariants: anything that would lose or invent money is rejected with a
  specific error, never clamped or silently corrected.

ERROR CATEGORIES:
  1. Scope errors       - unknown or empty block/stair references
  2. Ledger errors      - invoice over-distribution, overpayment
  3. Lifecycle errors   - mutations on locked months, double publish
  4. Integrity warnings - checksum drift on load (non-fatal)

USAGE:
  if errors.Is(err, engine.ErrMonthLocked) { ... }

  var over *engine.OverDistributionError
  if errors.As(err, &over) { ... over.Remaining ... }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrScope is the base of all scope resolution failures.
	ErrScope = errors.New("scope resolution failed")

	// ErrOverDistribution is returned when an invoice link would exceed the
	// invoice's remaining amount.
	ErrOverDistribution = errors.New("invoice over-distribution")

	// ErrOverpayment is returned when a payment exceeds the remaining debt.
	ErrOverpayment = errors.New("payment exceeds total due")

	// ErrMonthLocked is returned when a draft-only mutation is attempted on
	// a published or historic month.
	ErrMonthLocked = errors.New("month is published and locked")

	// ErrAlreadyPublished is returned when publishing a month key that
	// already has a version record.
	ErrAlreadyPublished = errors.New("month already published")

	// ErrValidationBlocked is returned when the validation gate has
	// Error-severity findings at publish time.
	ErrValidationBlocked = errors.New("validation findings block publish")

	// ErrSheetNotFound / ErrVersionNotFound / ErrInvoiceNotFound /
	// ErrApartmentNotFound flag missing referenced records.
	ErrSheetNotFound     = errors.New("month sheet not found")
	ErrVersionNotFound   = errors.New("version record not found")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrApartmentNotFound = errors.New("apartment not found")

	// ErrBadArchive is returned by import when the payload lacks a history
	// object.
	ErrBadArchive = errors.New("invalid archive format")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// ScopeError reports an unknown or empty reception scope.
type ScopeError struct {
	Mode    ReceptionMode
	ScopeID string
	Reason  string // "unknown" or "empty"
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scope %s %q: %s", e.Mode, e.ScopeID, e.Reason)
}

func (e *ScopeError) Unwrap() error { return ErrScope }

// OverDistributionError reports an attempted invoice link beyond the
// remaining amount. The link is rejected, never clamped.
type OverDistributionError struct {
	InvoiceID InvoiceID
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverDistributionError) Error() string {
	return fmt.Sprintf("invoice %s: requested %s exceeds remaining %s",
		e.InvoiceID, e.Requested, e.Remaining)
}

func (e *OverDistributionError) Unwrap() error { return ErrOverDistribution }

// OverpaymentError reports a payment larger than the apartment's remaining
// debt. Partial payments are fine; overpayment is not.
type OverpaymentError struct {
	ApartmentID ApartmentID
	Requested   decimal.Decimal
	Due         decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("apartment %s: payment %s exceeds due %s",
		e.ApartmentID, e.Requested, e.Due)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// MonthLockedError reports which month rejected the mutation.
type MonthLockedError struct {
	MonthKey string
	Status   MonthStatus
}

func (e *MonthLockedError) Error() string {
	return fmt.Sprintf("month %s is %s; draft mutations rejected", e.MonthKey, e.Status)
}

func (e *MonthLockedError) Unwrap() error { return ErrMonthLocked }

// AlreadyPublishedError reports a second publish without a preceding delete.
type AlreadyPublishedError struct {
	MonthKey string
}

func (e *AlreadyPublishedError) Error() string {
	return fmt.Sprintf("month %s already has a published version", e.MonthKey)
}

func (e *AlreadyPublishedError) Unwrap() error { return ErrAlreadyPublished }

// IntegrityWarning is attached to a loaded version whose recomputed checksum
// no longer matches the stored one. Non-fatal: the persisted data is still
// returned.
type IntegrityWarning struct {
	MonthKey string
	Stored   string
	Computed string
}

func (w *IntegrityWarning) Error() string {
	return fmt.Sprintf("version %s checksum mismatch: stored %s, computed %s",
		w.MonthKey, w.Stored, w.Computed)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// rejected business rule, as opposed to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrScope) ||
		errors.Is(err, ErrOverDistribution) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrMonthLocked) ||
		errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrValidationBlocked) ||
		errors.Is(err, ErrBadArchive)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSheetNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrApartmentNotFound)
}
