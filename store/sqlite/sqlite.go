/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.Store (sheets, archive, invoices, structure, expense
  types, receipt sequence) over a single SQLite file. Documents are stored
  as JSON rows: one sheet, one version record, one invoice per row, written
  whole. That keeps the month's totals and rows atomic without multi-table
  transactions.

APPEND-ONLY ENFORCEMENT:
  The versions table carries the archive. PutNewVersion uses plain INSERT,
  so a duplicate month key fails on the primary key and surfaces as
  engine.AlreadyPublishedError. The only path that removes a version is the
  explicit DeleteVersion.

KEY TABLES:
  sheets:        working month sheets, keyed by normalized month key
  versions:      published archive, append-only
  invoices:      supplier invoices with distribution links
  structure:     single-row association layout
  expense_types: long-lived expense configuration
  receipt_seq:   single-row monotonic receipt counter

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/fees.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := engine.NewService(store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/blocledger/fee-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ engine.Store = (*Store)(nil)

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Working month sheets, one JSON document per month
	CREATE TABLE IF NOT EXISTS sheets (
		month_key TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		doc_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sheets_status ON sheets(status);

	-- Published archive (append-only; the PK rejects a second publish)
	CREATE TABLE IF NOT EXISTS versions (
		month_key TEXT PRIMARY KEY,
		published_at TEXT NOT NULL,
		checksum TEXT NOT NULL,
		doc_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_versions_published_at ON versions(published_at);

	-- Supplier invoices with their distribution links
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		issue_date TEXT NOT NULL,
		expense_type_id TEXT,
		fully_distributed BOOLEAN NOT NULL DEFAULT FALSE,
		doc_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_type ON invoices(expense_type_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_open
		ON invoices(fully_distributed) WHERE fully_distributed = FALSE;

	-- Association layout (single row)
	CREATE TABLE IF NOT EXISTS structure (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		doc_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Long-lived expense configuration
	CREATE TABLE IF NOT EXISTS expense_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		doc_json TEXT NOT NULL
	);

	-- Monotonic receipt counter (single row)
	CREATE TABLE IF NOT EXISTS receipt_seq (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO receipt_seq (id, value) VALUES (1, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SHEET STORE
// =============================================================================

func (s *Store) GetSheet(ctx context.Context, monthKey string) (*engine.MonthSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_json FROM sheets WHERE month_key = ?", monthKey,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("month %s: %w", monthKey, engine.ErrSheetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sheet %s: %w", monthKey, err)
	}

	var sheet engine.MonthSheet
	if err := json.Unmarshal([]byte(doc), &sheet); err != nil {
		return nil, fmt.Errorf("failed to decode sheet %s: %w", monthKey, err)
	}
	return &sheet, nil
}

func (s *Store) PutSheet(ctx context.Context, sheet *engine.MonthSheet) error {
	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet %s: %w", sheet.MonthKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sheets (month_key, status, doc_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month_key) DO UPDATE SET
			status = excluded.status,
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		sheet.MonthKey, string(sheet.Status), string(doc),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store sheet %s: %w", sheet.MonthKey, err)
	}
	return nil
}

func (s *Store) ListSheets(ctx context.Context) ([]*engine.MonthSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM sheets ORDER BY month_key ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []*engine.MonthSheet
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sheet engine.MonthSheet
		if err := json.Unmarshal([]byte(doc), &sheet); err != nil {
			return nil, fmt.Errorf("failed to decode sheet: %w", err)
		}
		sheets = append(sheets, &sheet)
	}
	return sheets, rows.Err()
}

// =============================================================================
// ARCHIVE STORE
// =============================================================================

func (s *Store) GetVersion(ctx context.Context, monthKey string) (*engine.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_json FROM versions WHERE month_key = ?", monthKey,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("version %s: %w", monthKey, engine.ErrVersionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", monthKey, err)
	}

	var record engine.VersionRecord
	if err := json.Unmarshal([]byte(doc), &record); err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", monthKey, err)
	}
	return &record, nil
}

// PutNewVersion appends to the archive. A plain INSERT, so an existing key
// fails on the primary key.
func (s *Store) PutNewVersion(ctx context.Context, record *engine.VersionRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode version %s: %w", record.MonthKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO versions (month_key, published_at, checksum, doc_json) VALUES (?, ?, ?, ?)",
		record.MonthKey,
		record.Timestamp.UTC().Format(time.RFC3339),
		record.Checksum,
		string(doc),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.AlreadyPublishedError{MonthKey: record.MonthKey}
		}
		return fmt.Errorf("failed to store version %s: %w", record.MonthKey, err)
	}
	return nil
}

func (s *Store) DeleteVersion(ctx context.Context, monthKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM versions WHERE month_key = ?", monthKey,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("version %s: %w", monthKey, engine.ErrVersionNotFound)
	}
	return nil
}

func (s *Store) ListVersions(ctx context.Context) ([]*engine.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM versions ORDER BY published_at ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*engine.VersionRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var record engine.VersionRecord
		if err := json.Unmarshal([]byte(doc), &record); err != nil {
			return nil, fmt.Errorf("failed to decode version: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (s *Store) GetInvoice(ctx context.Context, id engine.InvoiceID) (*engine.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_json FROM invoices WHERE id = ?", id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invoice %s: %w", id, engine.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", id, err)
	}

	var invoice engine.Invoice
	if err := json.Unmarshal([]byte(doc), &invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice %s: %w", id, err)
	}
	return &invoice, nil
}

func (s *Store) PutInvoice(ctx context.Context, invoice *engine.Invoice) error {
	doc, err := json.Marshal(invoice)
	if err != nil {
		return fmt.Errorf("failed to encode invoice %s: %w", invoice.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO invoices (id, issue_date, expense_type_id, fully_distributed, doc_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issue_date = excluded.issue_date,
			expense_type_id = excluded.expense_type_id,
			fully_distributed = excluded.fully_distributed,
			doc_json = excluded.doc_json
	`
	_, err = s.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.IssueDate.UTC().Format(time.RFC3339),
		string(invoice.TypeID),
		invoice.FullyDistributed(),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to store invoice %s: %w", invoice.ID, err)
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]*engine.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM invoices ORDER BY issue_date ASC, id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*engine.Invoice
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var invoice engine.Invoice
		if err := json.Unmarshal([]byte(doc), &invoice); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		invoices = append(invoices, &invoice)
	}
	return invoices, rows.Err()
}

// =============================================================================
// STRUCTURE STORE
// =============================================================================

func (s *Store) GetStructure(ctx context.Context) (*engine.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_json FROM structure WHERE id = 1",
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("association structure not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load structure: %w", err)
	}

	var structure engine.Structure
	if err := json.Unmarshal([]byte(doc), &structure); err != nil {
		return nil, fmt.Errorf("failed to decode structure: %w", err)
	}
	return &structure, nil
}

func (s *Store) PutStructure(ctx context.Context, structure *engine.Structure) error {
	doc, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO structure (id, doc_json, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store structure: %w", err)
	}
	return nil
}

// =============================================================================
// EXPENSE TYPE STORE
// =============================================================================

func (s *Store) GetExpenseType(ctx context.Context, id engine.ExpenseTypeID) (*engine.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_json FROM expense_types WHERE id = ?", id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense type %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load expense type %s: %w", id, err)
	}

	var expType engine.ExpenseType
	if err := json.Unmarshal([]byte(doc), &expType); err != nil {
		return nil, fmt.Errorf("failed to decode expense type %s: %w", id, err)
	}
	return &expType, nil
}

func (s *Store) PutExpenseType(ctx context.Context, expType *engine.ExpenseType) error {
	doc, err := json.Marshal(expType)
	if err != nil {
		return fmt.Errorf("failed to encode expense type %s: %w", expType.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO expense_types (id, name, doc_json)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			doc_json = excluded.doc_json
	`
	_, err = s.db.ExecContext(ctx, query, expType.ID, expType.Name, string(doc))
	if err != nil {
		return fmt.Errorf("failed to store expense type %s: %w", expType.ID, err)
	}
	return nil
}

func (s *Store) ListExpenseTypes(ctx context.Context) ([]*engine.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM expense_types ORDER BY name ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*engine.ExpenseType
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var expType engine.ExpenseType
		if err := json.Unmarshal([]byte(doc), &expType); err != nil {
			return nil, fmt.Errorf("failed to decode expense type: %w", err)
		}
		types = append(types, &expType)
	}
	return types, rows.Err()
}

// =============================================================================
// RECEIPT SEQUENCE
// =============================================================================

// NextReceiptNumber bumps and returns the counter in one statement, so two
// concurrent payments can never share a receipt number.
func (s *Store) NextReceiptNumber(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value int
	err := s.db.QueryRowContext(ctx,
		"UPDATE receipt_seq SET value = value + 1 WHERE id = 1 RETURNING value",
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance receipt sequence: %w", err)
	}
	return value, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"sheets", "versions", "invoices", "structure", "expense_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, "UPDATE receipt_seq SET value = 0 WHERE id = 1")
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
