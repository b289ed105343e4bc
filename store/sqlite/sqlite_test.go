package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocledger/fee-engine/engine"
	"github.com/blocledger/fee-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func money(s string) decimal.Decimal {
	return engine.MustDecimal(s)
}

func sampleSheet(monthKey, month string) *engine.MonthSheet {
	return &engine.MonthSheet{
		MonthKey: monthKey,
		Month:    month,
		Status:   engine.MonthDraft,
		Rows: []engine.BalanceRow{
			{ApartmentID: "ap-01", Owner: "Popescu Ion", CurrentMaintenance: money("150.50")},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

// =============================================================================
// SHEETS
// =============================================================================

func TestSQLite_SheetRoundtrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSheet(ctx, sampleSheet("Martie_2025", "Martie 2025")))

	loaded, err := store.GetSheet(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, "Martie 2025", loaded.Month)
	require.Len(t, loaded.Rows, 1)
	assert.True(t, loaded.Rows[0].CurrentMaintenance.Equal(money("150.50")))
}

func TestSQLite_PutSheetUpserts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sheet := sampleSheet("Martie_2025", "Martie 2025")
	require.NoError(t, store.PutSheet(ctx, sheet))

	sheet.Status = engine.MonthPublished
	require.NoError(t, store.PutSheet(ctx, sheet))

	loaded, err := store.GetSheet(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, engine.MonthPublished, loaded.Status)
}

func TestSQLite_GetSheetNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.GetSheet(context.Background(), "Iunie_2030")
	assert.ErrorIs(t, err, engine.ErrSheetNotFound)
}

func TestSQLite_ListSheetsOrderedByMonthKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSheet(ctx, sampleSheet("Martie_2025", "Martie 2025")))
	require.NoError(t, store.PutSheet(ctx, sampleSheet("Aprilie_2025", "Aprilie 2025")))

	sheets, err := store.ListSheets(ctx)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "Aprilie_2025", sheets[0].MonthKey)
	assert.Equal(t, "Martie_2025", sheets[1].MonthKey)
}

// =============================================================================
// VERSIONS (APPEND-ONLY)
// =============================================================================

func TestSQLite_PutNewVersionRejectsDuplicate(t *testing.T) {
	// GIVEN: a month already archived
	// WHEN: a second record for the same key is inserted
	// THEN: the primary key rejects it as AlreadyPublishedError

	store := newStore(t)
	ctx := context.Background()

	record := &engine.VersionRecord{
		ID:        "v1",
		MonthKey:  "Martie_2025",
		Month:     "Martie 2025",
		Timestamp: time.Now().UTC(),
		Status:    engine.MonthPublished,
		Checksum:  "ABC123",
	}
	require.NoError(t, store.PutNewVersion(ctx, record))

	err := store.PutNewVersion(ctx, record)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyPublished)
}

func TestSQLite_VersionRoundtripAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	record := &engine.VersionRecord{
		ID:        "v1",
		MonthKey:  "Martie_2025",
		Month:     "Martie 2025",
		Timestamp: time.Now().UTC(),
		Status:    engine.MonthPublished,
		Checksum:  "ABC123",
		Meta:      engine.VersionMeta{PublishedBy: "Admin"},
	}
	require.NoError(t, store.PutNewVersion(ctx, record))

	loaded, err := store.GetVersion(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", loaded.Checksum)
	assert.Equal(t, "Admin", loaded.Meta.PublishedBy)

	require.NoError(t, store.DeleteVersion(ctx, "Martie_2025"))
	_, err = store.GetVersion(ctx, "Martie_2025")
	assert.ErrorIs(t, err, engine.ErrVersionNotFound)

	// Deleting an absent version is an error, not a no-op.
	err = store.DeleteVersion(ctx, "Martie_2025")
	assert.ErrorIs(t, err, engine.ErrVersionNotFound)
}

func TestSQLite_ListVersionsOrderedByPublishTime(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	older := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 1, 0)

	require.NoError(t, store.PutNewVersion(ctx, &engine.VersionRecord{
		ID: "v2", MonthKey: "Aprilie_2025", Timestamp: newer, Checksum: "B",
	}))
	require.NoError(t, store.PutNewVersion(ctx, &engine.VersionRecord{
		ID: "v1", MonthKey: "Martie_2025", Timestamp: older, Checksum: "A",
	}))

	records, err := store.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Martie_2025", records[0].MonthKey)
	assert.Equal(t, "Aprilie_2025", records[1].MonthKey)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestSQLite_InvoiceRoundtrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	invoice := &engine.Invoice{
		ID:          "inv-1",
		Number:      "F-100",
		Supplier:    "Apa Nova",
		TypeID:      "water",
		IssueDate:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount: money("1000"),
	}
	require.NoError(t, store.PutInvoice(ctx, invoice))

	loaded, err := store.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Apa Nova", loaded.Supplier)
	assert.True(t, loaded.TotalAmount.Equal(money("1000")))

	_, err = store.GetInvoice(ctx, "inv-9")
	assert.ErrorIs(t, err, engine.ErrInvoiceNotFound)
}

func TestSQLite_ListInvoicesOrderedByIssueDate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, inv := range []*engine.Invoice{
		{ID: "inv-b", Number: "F-2", IssueDate: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), TotalAmount: money("200")},
		{ID: "inv-a", Number: "F-1", IssueDate: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), TotalAmount: money("100")},
	} {
		require.NoError(t, store.PutInvoice(ctx, inv))
	}

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, engine.InvoiceID("inv-a"), invoices[0].ID)
	assert.Equal(t, engine.InvoiceID("inv-b"), invoices[1].ID)
}

// =============================================================================
// STRUCTURE AND EXPENSE TYPES
// =============================================================================

func TestSQLite_StructureSingleRow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetStructure(ctx)
	require.Error(t, err)

	require.NoError(t, store.PutStructure(ctx, &engine.Structure{
		AssociationID:   "assoc-1",
		AssociationName: "Asociatia Viitorul",
	}))
	require.NoError(t, store.PutStructure(ctx, &engine.Structure{
		AssociationID:   "assoc-1",
		AssociationName: "Asociatia Viitorul Nou",
	}))

	structure, err := store.GetStructure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asociatia Viitorul Nou", structure.AssociationName)
}

func TestSQLite_ExpenseTypesOrderedByName(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutExpenseType(ctx, &engine.ExpenseType{
		ID: "water", Name: "Apa", Distribution: engine.DistributePerPerson,
		Reception: engine.ReceptionTotal, Active: true,
	}))
	require.NoError(t, store.PutExpenseType(ctx, &engine.ExpenseType{
		ID: "cleaning", Name: "Curatenie", Distribution: engine.DistributePerApartment,
		Reception: engine.ReceptionTotal, Active: true,
	}))

	types, err := store.ListExpenseTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Apa", types[0].Name)
	assert.Equal(t, "Curatenie", types[1].Name)

	loaded, err := store.GetExpenseType(ctx, "water")
	require.NoError(t, err)
	assert.Equal(t, engine.DistributePerPerson, loaded.Distribution)
}

// =============================================================================
// RECEIPT SEQUENCE
// =============================================================================

func TestSQLite_NextReceiptNumberMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.NextReceiptNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSQLite_ResetClearsEverything(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSheet(ctx, sampleSheet("Martie_2025", "Martie 2025")))
	_, err := store.NextReceiptNumber(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	_, err = store.GetSheet(ctx, "Martie_2025")
	assert.ErrorIs(t, err, engine.ErrSheetNotFound)

	n, err := store.NextReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
