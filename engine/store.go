/*
store.go - Persistence interfaces for the fee engine

PURPOSE:
  Defines the boundary between the engine and the document store. Every
  interface is keyed by a normalized month label or a record id and moves
  whole documents: a mutating operation writes one document atomically, so
  totals and individual rows can never disagree on disk.

KEY INTERFACES:
  SheetStore:      the working month sheets (draft + published)
  ArchiveStore:    append-only version archive (PutNew fails on collision)
  InvoiceStore:    supplier invoices with their distribution links
  StructureStore:  the association layout read by the scope resolver
  ExpenseTypeStore: long-lived expense configuration
  ReceiptSequence: monotonic receipt numbering across all months

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite, the production path
*/
package engine

import "context"

// SheetStore persists month sheets. Put replaces the whole sheet document in
// one atomic write.
type SheetStore interface {
	GetSheet(ctx context.Context, monthKey string) (*MonthSheet, error)
	PutSheet(ctx context.Context, sheet *MonthSheet) error
	ListSheets(ctx context.Context) ([]*MonthSheet, error)
}

// ArchiveStore persists version records. The archive is append-only: PutNew
// rejects an existing key, and only an explicit administrative Delete makes
// a key writable again.
type ArchiveStore interface {
	GetVersion(ctx context.Context, monthKey string) (*VersionRecord, error)
	PutNewVersion(ctx context.Context, record *VersionRecord) error
	DeleteVersion(ctx context.Context, monthKey string) error
	ListVersions(ctx context.Context) ([]*VersionRecord, error)
}

// InvoiceStore persists invoices with their links.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	PutInvoice(ctx context.Context, invoice *Invoice) error
	ListInvoices(ctx context.Context) ([]*Invoice, error)
}

// StructureStore persists the association structure. The engine reads it;
// the external structure module owns writes.
type StructureStore interface {
	GetStructure(ctx context.Context) (*Structure, error)
	PutStructure(ctx context.Context, structure *Structure) error
}

// ExpenseTypeStore persists the long-lived expense configuration.
type ExpenseTypeStore interface {
	GetExpenseType(ctx context.Context, id ExpenseTypeID) (*ExpenseType, error)
	PutExpenseType(ctx context.Context, expType *ExpenseType) error
	ListExpenseTypes(ctx context.Context) ([]*ExpenseType, error)
}

// ReceiptSequence issues strictly increasing receipt numbers. The sequence
// spans all months of the association.
type ReceiptSequence interface {
	NextReceiptNumber(ctx context.Context) (int, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	SheetStore
	ArchiveStore
	InvoiceStore
	StructureStore
	ExpenseTypeStore
	ReceiptSequence
}
