// Package store provides the in-memory Store implementation used by tests
// and development servers.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/blocledger/fee-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	sheets       map[string]*engine.MonthSheet
	versions     map[string]*engine.VersionRecord
	invoices     map[engine.InvoiceID]*engine.Invoice
	expenseTypes map[engine.ExpenseTypeID]*engine.ExpenseType
	structure    *engine.Structure
	receiptSeq   int
}

func NewMemory() *Memory {
	return &Memory{
		sheets:       make(map[string]*engine.MonthSheet),
		versions:     make(map[string]*engine.VersionRecord),
		invoices:     make(map[engine.InvoiceID]*engine.Invoice),
		expenseTypes: make(map[engine.ExpenseTypeID]*engine.ExpenseType),
	}
}

var _ engine.Store = (*Memory)(nil)

// clone deep-copies a document through its JSON form so callers can never
// alias stored state.
func clone[T any](src *T) (*T, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	dst := new(T)
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// -----------------------------------------------------------------------------
// SheetStore
// -----------------------------------------------------------------------------

func (m *Memory) GetSheet(_ context.Context, monthKey string) (*engine.MonthSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sheet, ok := m.sheets[monthKey]
	if !ok {
		return nil, fmt.Errorf("month %s: %w", monthKey, engine.ErrSheetNotFound)
	}
	return clone(sheet)
}

func (m *Memory) PutSheet(_ context.Context, sheet *engine.MonthSheet) error {
	copied, err := clone(sheet)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet.MonthKey] = copied
	return nil
}

func (m *Memory) ListSheets(_ context.Context) ([]*engine.MonthSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.MonthSheet, 0, len(m.sheets))
	for _, sheet := range m.sheets {
		copied, err := clone(sheet)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MonthKey < result[j].MonthKey })
	return result, nil
}

// -----------------------------------------------------------------------------
// ArchiveStore
// -----------------------------------------------------------------------------

func (m *Memory) GetVersion(_ context.Context, monthKey string) (*engine.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.versions[monthKey]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", monthKey, engine.ErrVersionNotFound)
	}
	return clone(record)
}

// PutNewVersion is append-only: an existing key is rejected.
func (m *Memory) PutNewVersion(_ context.Context, record *engine.VersionRecord) error {
	copied, err := clone(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.versions[record.MonthKey]; exists {
		return &engine.AlreadyPublishedError{MonthKey: record.MonthKey}
	}
	m.versions[record.MonthKey] = copied
	return nil
}

func (m *Memory) DeleteVersion(_ context.Context, monthKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.versions[monthKey]; !exists {
		return fmt.Errorf("version %s: %w", monthKey, engine.ErrVersionNotFound)
	}
	delete(m.versions, monthKey)
	return nil
}

func (m *Memory) ListVersions(_ context.Context) ([]*engine.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.VersionRecord, 0, len(m.versions))
	for _, record := range m.versions {
		copied, err := clone(record)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// -----------------------------------------------------------------------------
// InvoiceStore
// -----------------------------------------------------------------------------

func (m *Memory) GetInvoice(_ context.Context, id engine.InvoiceID) (*engine.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	invoice, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, engine.ErrInvoiceNotFound)
	}
	return clone(invoice)
}

func (m *Memory) PutInvoice(_ context.Context, invoice *engine.Invoice) error {
	copied, err := clone(invoice)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[invoice.ID] = copied
	return nil
}

func (m *Memory) ListInvoices(_ context.Context) ([]*engine.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.Invoice, 0, len(m.invoices))
	for _, invoice := range m.invoices {
		copied, err := clone(invoice)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssueDate.Equal(result[j].IssueDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].IssueDate.Before(result[j].IssueDate)
	})
	return result, nil
}

// -----------------------------------------------------------------------------
// StructureStore
// -----------------------------------------------------------------------------

func (m *Memory) GetStructure(_ context.Context) (*engine.Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.structure == nil {
		return nil, fmt.Errorf("association structure not configured")
	}
	return clone(m.structure)
}

func (m *Memory) PutStructure(_ context.Context, structure *engine.Structure) error {
	copied, err := clone(structure)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structure = copied
	return nil
}

// -----------------------------------------------------------------------------
// ExpenseTypeStore
// -----------------------------------------------------------------------------

func (m *Memory) GetExpenseType(_ context.Context, id engine.ExpenseTypeID) (*engine.ExpenseType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expType, ok := m.expenseTypes[id]
	if !ok {
		return nil, fmt.Errorf("expense type %s not found", id)
	}
	return clone(expType)
}

func (m *Memory) PutExpenseType(_ context.Context, expType *engine.ExpenseType) error {
	copied, err := clone(expType)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenseTypes[expType.ID] = copied
	return nil
}

func (m *Memory) ListExpenseTypes(_ context.Context) ([]*engine.ExpenseType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.ExpenseType, 0, len(m.expenseTypes))
	for _, expType := range m.expenseTypes {
		copied, err := clone(expType)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// -----------------------------------------------------------------------------
// ReceiptSequence
// -----------------------------------------------------------------------------

func (m *Memory) NextReceiptNumber(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptSeq++
	return m.receiptSeq, nil
}
