/*
service.go - Month lifecycle orchestration

PURPOSE:
  The Service ties the engine together over the persistence surface: it
  loads the sheet, runs the pure computation (distribution, balance carry,
  waterfall, gate), and writes the whole sheet back in one atomic put.

CONCURRENCY:
  Single-writer-per-association semantics. An advisory per-month mutex
  serializes every mutating operation with publish, so a publish can never
  interleave with a draft edit on the same month. Computations are
  synchronous; only the store calls touch I/O.

PUBLISH FLOW:
  validation gate -> freeze sheet -> append VersionRecord (store rejects
  duplicates) -> persist published sheet -> open next month's draft with
  carried arrears and penalties.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store    Store
	balances *BalanceLedger
	invoices *InvoiceLedger

	mu         sync.Mutex
	monthLocks map[string]*sync.Mutex

	now func() time.Time
}

func NewService(store Store, penalties PenaltyPolicy) *Service {
	return &Service{
		store:      store,
		balances:   NewBalanceLedger(penalties),
		invoices:   NewInvoiceLedger(store),
		monthLocks: make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// Invoices exposes the invoice ledger.
func (s *Service) Invoices() *InvoiceLedger { return s.invoices }

// lockMonth acquires the advisory single-flight lock for a month key.
func (s *Service) lockMonth(monthKey string) func() {
	s.mu.Lock()
	lock, ok := s.monthLocks[monthKey]
	if !ok {
		lock = &sync.Mutex{}
		s.monthLocks[monthKey] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *Service) resolver(ctx context.Context) (*Resolver, error) {
	structure, err := s.store.GetStructure(ctx)
	if err != nil {
		return nil, err
	}
	return NewResolver(*structure), nil
}

// =============================================================================
// STRUCTURE AND CONFIGURATION
// =============================================================================

func (s *Service) Structure(ctx context.Context) (*Structure, error) {
	return s.store.GetStructure(ctx)
}

// ReplaceStructure stores a new association layout, rewriting every
// apartment's cotaParte against the association's total surface.
func (s *Service) ReplaceStructure(ctx context.Context, structure Structure) error {
	structure.Apartments = RecalculateCotaParte(structure.Apartments)
	return s.store.PutStructure(ctx, &structure)
}

func (s *Service) SaveExpenseType(ctx context.Context, expType *ExpenseType) error {
	if !expType.Distribution.Valid() {
		return fmt.Errorf("invalid distribution type %q", expType.Distribution)
	}
	if !expType.Reception.Valid() {
		return fmt.Errorf("invalid reception mode %q", expType.Reception)
	}
	if expType.ID == "" {
		expType.ID = ExpenseTypeID(uuid.NewString())
	}
	return s.store.PutExpenseType(ctx, expType)
}

func (s *Service) ListExpenseTypes(ctx context.Context) ([]*ExpenseType, error) {
	return s.store.ListExpenseTypes(ctx)
}

// =============================================================================
// MONTH LIFECYCLE
// =============================================================================

// OpenFirstMonth creates the association's first draft sheet, seeding
// arrears from the apartments' initial balances.
func (s *Service) OpenFirstMonth(ctx context.Context, label string) (*MonthSheet, error) {
	monthKey := MonthKey(label)
	unlock := s.lockMonth(monthKey)
	defer unlock()

	if existing, err := s.store.GetSheet(ctx, monthKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrSheetNotFound) {
		return nil, err
	}

	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}
	sheet, err := s.balances.OpenMonth(label, resolver, nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

func (s *Service) Sheet(ctx context.Context, monthKey string) (*MonthSheet, error) {
	return s.store.GetSheet(ctx, monthKey)
}

func (s *Service) ListSheets(ctx context.Context) ([]*MonthSheet, error) {
	return s.store.ListSheets(ctx)
}

// =============================================================================
// EXPENSE ENTRIES
// =============================================================================

// UpsertExpense distributes one expense entry and installs it in the draft
// sheet, replacing any previous entry with the same id, then recomputes the
// table. One atomic sheet write.
func (s *Service) UpsertExpense(ctx context.Context, monthKey string, entry ExpenseEntry) (*MonthSheet, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	if !sheet.Editable() {
		return nil, &MonthLockedError{MonthKey: monthKey, Status: sheet.Status}
	}

	expType, err := s.store.GetExpenseType(ctx, entry.TypeID)
	if err != nil {
		return nil, err
	}
	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = ExpenseEntryID(uuid.NewString())
	}
	if entry.Name == "" {
		entry.Name = expType.Name
	}
	entry.Month = sheet.Month

	result, err := Distribute(&entry, expType, resolver)
	if err != nil {
		return nil, err
	}
	entry.PerApartmentShare = result.Shares
	entry.DifferenceDetails = result.DifferenceDetails
	entry.Discrepancy = result.Discrepancy

	replaced := false
	for i := range sheet.Expenses {
		if sheet.Expenses[i].ID != entry.ID {
			continue
		}
		// Invoices dropped from the entry get their consumed amounts back.
		for _, invoiceID := range sheet.Expenses[i].InvoiceIDs {
			if hasInvoiceID(entry.InvoiceIDs, invoiceID) {
				continue
			}
			if _, err := s.invoices.Unlink(ctx, invoiceID, entry.ID); err != nil {
				return nil, err
			}
		}
		sheet.Expenses[i] = entry
		replaced = true
		break
	}
	if !replaced {
		sheet.Expenses = append(sheet.Expenses, entry)
	}

	if err := s.balances.RecomputeCurrent(sheet); err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// RemoveExpense drops a draft entry, reverses its invoice links, and
// recomputes the table.
func (s *Service) RemoveExpense(ctx context.Context, monthKey string, entryID ExpenseEntryID) (*MonthSheet, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	if !sheet.Editable() {
		return nil, &MonthLockedError{MonthKey: monthKey, Status: sheet.Status}
	}

	// The filter below reuses the backing array, so the removed entry must
	// be copied out before later appends overwrite its slot.
	var removed *ExpenseEntry
	kept := sheet.Expenses[:0]
	for i := range sheet.Expenses {
		if sheet.Expenses[i].ID == entryID {
			entry := sheet.Expenses[i]
			removed = &entry
			continue
		}
		kept = append(kept, sheet.Expenses[i])
	}
	if removed == nil {
		return nil, fmt.Errorf("expense entry %s not found in month %s", entryID, monthKey)
	}
	for _, invoiceID := range removed.InvoiceIDs {
		if _, err := s.invoices.Unlink(ctx, invoiceID, entryID); err != nil {
			return nil, err
		}
	}
	sheet.Expenses = kept

	if err := s.balances.RecomputeCurrent(sheet); err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// Recompute rebuilds current maintenance from the sheet's entries.
func (s *Service) Recompute(ctx context.Context, monthKey string) (*MonthSheet, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	if err := s.balances.RecomputeCurrent(sheet); err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// Adjust replaces one apartment's restante/penalitati and returns both the
// old and new rows so the caller can show the signed delta.
func (s *Service) Adjust(ctx context.Context, monthKey string, id ApartmentID, restante, penalitati decimal.Decimal) (*AdjustResult, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	result, err := s.balances.Adjust(sheet, id, restante, penalitati)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment applies the waterfall and persists both the payment and the
// updated row in one sheet write. Payments are the one mutation allowed on
// published months.
func (s *Service) RecordPayment(ctx context.Context, monthKey string, in PaymentInput) (*Payment, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	receipt, err := s.store.NextReceiptNumber(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := AllocatePayment(sheet, in, receipt, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return payment, nil
}

// =============================================================================
// VALIDATION AND PUBLISH
// =============================================================================

// Findings runs the validation gate without publishing.
func (s *Service) Findings(ctx context.Context, monthKey string) ([]Finding, error) {
	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	return CheckSheet(sheet), nil
}

// Publish freezes the month. Error findings always block; Warning findings
// block unless the administrator acknowledged them. On success the version
// record is archived, the sheet becomes read-only, and the next month's
// draft is opened with carried arrears.
func (s *Service) Publish(ctx context.Context, monthKey, publishedBy string, ackWarnings bool) (*VersionRecord, []Finding, error) {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	sheet, err := s.store.GetSheet(ctx, monthKey)
	if err != nil {
		return nil, nil, err
	}
	if sheet.Status != MonthDraft {
		return nil, nil, &AlreadyPublishedError{MonthKey: monthKey}
	}
	if _, err := s.store.GetVersion(ctx, monthKey); err == nil {
		return nil, nil, &AlreadyPublishedError{MonthKey: monthKey}
	} else if !errors.Is(err, ErrVersionNotFound) {
		return nil, nil, err
	}

	findings := CheckSheet(sheet)
	if HasBlocking(findings) {
		return nil, findings, fmt.Errorf("month %s: %w", monthKey, ErrValidationBlocked)
	}
	if HasWarnings(findings) && !ackWarnings {
		return nil, findings, fmt.Errorf("month %s has unacknowledged warnings: %w", monthKey, ErrValidationBlocked)
	}

	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, findings, err
	}

	now := s.now()
	sheet.Status = MonthPublished
	sheet.UpdatedAt = now
	record := BuildVersionRecord(sheet, resolver.Structure(), publishedBy, now)

	if err := s.store.PutNewVersion(ctx, record); err != nil {
		sheet.Status = MonthDraft
		return nil, findings, err
	}
	if err := s.store.PutSheet(ctx, sheet); err != nil {
		return nil, findings, err
	}

	// Open the next month's draft with carried arrears and penalties.
	nextLabel, err := NextMonthLabel(sheet.Month)
	if err != nil {
		return nil, findings, err
	}
	nextKey := MonthKey(nextLabel)
	if _, err := s.store.GetSheet(ctx, nextKey); errors.Is(err, ErrSheetNotFound) {
		next, err := s.balances.OpenMonth(nextLabel, resolver, sheet)
		if err != nil {
			return nil, findings, err
		}
		if err := s.store.PutSheet(ctx, next); err != nil {
			return nil, findings, err
		}
	} else if err != nil {
		return nil, findings, err
	}

	return record, findings, nil
}

// =============================================================================
// ARCHIVE
// =============================================================================

// LoadVersion returns the archived record plus a non-fatal integrity
// warning when the recomputed checksum disagrees with the stored one.
func (s *Service) LoadVersion(ctx context.Context, monthKey string) (*VersionRecord, *IntegrityWarning, error) {
	record, err := s.store.GetVersion(ctx, monthKey)
	if err != nil {
		return nil, nil, err
	}
	return record, VerifyChecksum(record), nil
}

func (s *Service) ListVersions(ctx context.Context) ([]*VersionRecord, error) {
	return s.store.ListVersions(ctx)
}

// DeleteVersion is the explicit administrative delete that makes a month
// publishable again; the sheet, if still present, reverts to draft.
func (s *Service) DeleteVersion(ctx context.Context, monthKey string) error {
	unlock := s.lockMonth(monthKey)
	defer unlock()

	if err := s.store.DeleteVersion(ctx, monthKey); err != nil {
		return err
	}
	sheet, err := s.store.GetSheet(ctx, monthKey)
	if errors.Is(err, ErrSheetNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sheet.Status = MonthDraft
	sheet.UpdatedAt = s.now()
	return s.store.PutSheet(ctx, sheet)
}

// ExportAll serializes the full archive for backup.
func (s *Service) ExportAll(ctx context.Context) (*Archive, error) {
	records, err := s.store.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	archive := &Archive{
		ExportDate:    s.now(),
		TotalVersions: len(records),
		History:       make(map[string]VersionRecord, len(records)),
	}
	for _, r := range records {
		archive.History[r.MonthKey] = *r
	}
	return archive, nil
}

// ImportMerge merges a backup into the live archive. The merge is
// key-preserving: existing month keys are never overwritten, only new keys
// are added, so a stale backup cannot rewrite history.
func (s *Service) ImportMerge(ctx context.Context, archive *Archive) (added int, err error) {
	if archive == nil || archive.History == nil {
		return 0, ErrBadArchive
	}
	for _, key := range sortedKeys(archive.History) {
		if _, err := s.store.GetVersion(ctx, key); err == nil {
			continue
		} else if !errors.Is(err, ErrVersionNotFound) {
			return added, err
		}
		record := archive.History[key]
		if record.MonthKey == "" {
			record.MonthKey = key
		}
		if err := s.store.PutNewVersion(ctx, &record); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func hasInvoiceID(ids []InvoiceID, id InvoiceID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]VersionRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
