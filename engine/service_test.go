package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocledger/fee-engine/engine"
	"github.com/blocledger/fee-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) *engine.Service {
	t.Helper()
	mem := store.NewMemory()
	svc := engine.NewService(mem, nil)
	ctx := context.Background()

	require.NoError(t, svc.ReplaceStructure(ctx, testStructure()))
	require.NoError(t, svc.SaveExpenseType(ctx, &engine.ExpenseType{
		ID: "cleaning", Name: "Curatenie",
		Distribution: engine.DistributePerApartment,
		Reception:    engine.ReceptionTotal,
		Active:       true,
	}))
	require.NoError(t, svc.SaveExpenseType(ctx, &engine.ExpenseType{
		ID: "water", Name: "Apa",
		Distribution: engine.DistributePerPerson,
		Reception:    engine.ReceptionTotal,
		Active:       true,
	}))
	return svc
}

func openMarch(t *testing.T, svc *engine.Service) *engine.MonthSheet {
	t.Helper()
	sheet, err := svc.OpenFirstMonth(context.Background(), "Martie 2025")
	require.NoError(t, err)
	return sheet
}

func addCleaning(t *testing.T, svc *engine.Service, monthKey, amount string) *engine.MonthSheet {
	t.Helper()
	sheet, err := svc.UpsertExpense(context.Background(), monthKey, engine.ExpenseEntry{
		ID: "e-cleaning", TypeID: "cleaning", Amount: d(amount),
	})
	require.NoError(t, err)
	return sheet
}

// =============================================================================
// MONTH LIFECYCLE
// =============================================================================

func TestService_OpenFirstMonth_Idempotent(t *testing.T) {
	svc := newTestService(t)
	first := openMarch(t, svc)
	again := openMarch(t, svc)

	assert.Equal(t, first.MonthKey, again.MonthKey)

	sheets, err := svc.ListSheets(context.Background())
	require.NoError(t, err)
	assert.Len(t, sheets, 1)
}

func TestService_UpsertExpense_DistributesAndRecomputes(t *testing.T) {
	// GIVEN: an open March draft
	// WHEN: a 500.00 per-apartment expense is added
	// THEN: the sheet holds distributed shares and each row owes 100.00

	svc := newTestService(t)
	openMarch(t, svc)
	sheet := addCleaning(t, svc, "Martie_2025", "500")

	require.Len(t, sheet.Expenses, 1)
	assert.Len(t, sheet.Expenses[0].PerApartmentShare, 5)
	assert.True(t, sheet.Row("ap-01").CurrentMaintenance.Equal(d("100")))
	assert.True(t, sheet.TotalTabel().Equal(d("500")))
	assert.True(t, sheet.TotalCheltuieli().Equal(d("500")))
}

func TestService_UpsertExpense_ReplacesById(t *testing.T) {
	// Re-submitting the same entry id replaces it instead of stacking.
	svc := newTestService(t)
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")
	sheet := addCleaning(t, svc, "Martie_2025", "600")

	require.Len(t, sheet.Expenses, 1)
	assert.True(t, sheet.Row("ap-01").CurrentMaintenance.Equal(d("120")))
}

func TestService_RemoveExpense_RecomputesTable(t *testing.T) {
	svc := newTestService(t)
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	sheet, err := svc.RemoveExpense(context.Background(), "Martie_2025", "e-cleaning")
	require.NoError(t, err)

	assert.Empty(t, sheet.Expenses)
	assert.True(t, sheet.TotalTabel().IsZero())
}

func TestService_RemoveExpense_RestoresInvoiceBeforeLaterEntries(t *testing.T) {
	// GIVEN: inv-1 (100.00 total) with 40.00 consumed by e-water, and a
	//        second entry added to the sheet after it
	// WHEN: e-water is removed
	// THEN: the invoice gets its full 100.00 back and only the later entry
	//       remains

	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)

	require.NoError(t, svc.Invoices().Register(ctx, &engine.Invoice{
		ID: "inv-1", TypeID: "water", Supplier: "Apa Nova", TotalAmount: d("100"),
	}))
	_, err := svc.UpsertExpense(ctx, "Martie_2025", engine.ExpenseEntry{
		ID: "e-water", TypeID: "water", Amount: d("40"),
		InvoiceIDs: []engine.InvoiceID{"inv-1"},
	})
	require.NoError(t, err)
	_, err = svc.Invoices().LinkDistribution(ctx, "inv-1", "e-water", d("40"))
	require.NoError(t, err)

	addCleaning(t, svc, "Martie_2025", "500")

	sheet, err := svc.RemoveExpense(ctx, "Martie_2025", "e-water")
	require.NoError(t, err)

	require.Len(t, sheet.Expenses, 1)
	assert.Equal(t, engine.ExpenseEntryID("e-cleaning"), sheet.Expenses[0].ID)

	invoices, err := svc.Invoices().List(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].RemainingAmount().Equal(d("100")),
		"got %s", invoices[0].RemainingAmount())
	assert.Empty(t, invoices[0].Links)
}

func TestService_UpsertExpense_ReplaceReleasesDroppedInvoices(t *testing.T) {
	// GIVEN: e-water consuming 40.00 of inv-1
	// WHEN: the entry is re-submitted without the invoice reference
	// THEN: the consumed amount is handed back to the invoice

	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)

	require.NoError(t, svc.Invoices().Register(ctx, &engine.Invoice{
		ID: "inv-1", TypeID: "water", Supplier: "Apa Nova", TotalAmount: d("100"),
	}))
	_, err := svc.UpsertExpense(ctx, "Martie_2025", engine.ExpenseEntry{
		ID: "e-water", TypeID: "water", Amount: d("40"),
		InvoiceIDs: []engine.InvoiceID{"inv-1"},
	})
	require.NoError(t, err)
	_, err = svc.Invoices().LinkDistribution(ctx, "inv-1", "e-water", d("40"))
	require.NoError(t, err)

	_, err = svc.UpsertExpense(ctx, "Martie_2025", engine.ExpenseEntry{
		ID: "e-water", TypeID: "water", Amount: d("55"),
	})
	require.NoError(t, err)

	invoices, err := svc.Invoices().List(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].RemainingAmount().Equal(d("100")),
		"got %s", invoices[0].RemainingAmount())
}

func TestService_ExpenseOnUnknownMonth(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpsertExpense(context.Background(), "Martie_2025", engine.ExpenseEntry{
		TypeID: "cleaning", Amount: d("500"),
	})
	assert.ErrorIs(t, err, engine.ErrSheetNotFound)
}

// =============================================================================
// PUBLISH
// =============================================================================

func TestService_Publish_ArchivesAndOpensNextMonth(t *testing.T) {
	// GIVEN: a clean March draft with one expense
	// WHEN: it is published
	// THEN: a version record exists, the sheet is frozen, and an April draft
	//       carrying the arrears is opened

	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	record, findings, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, "Martie_2025", record.MonthKey)
	assert.NotEqual(t, "EMPTY", record.Checksum)

	published, err := svc.Sheet(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, engine.MonthPublished, published.Status)

	// Next month opened with the unpaid 100.00 carried as restante plus the
	// default 1% penalty.
	next, err := svc.Sheet(ctx, "Aprilie_2025")
	require.NoError(t, err)
	assert.Equal(t, engine.MonthDraft, next.Status)
	row := next.Row("ap-01")
	assert.True(t, row.Restante.Equal(d("100")), "got %s", row.Restante)
	assert.True(t, row.Penalitati.Equal(d("1")), "got %s", row.Penalitati)
}

func TestService_Publish_TwiceRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	_, _, err = svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyPublished)
}

func TestService_Publish_LockedSheetRejectsEdits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	_, err = svc.UpsertExpense(ctx, "Martie_2025", engine.ExpenseEntry{
		TypeID: "cleaning", Amount: d("100"),
	})
	assert.ErrorIs(t, err, engine.ErrMonthLocked)

	_, err = svc.Adjust(ctx, "Martie_2025", "ap-01", d("1"), d("0"))
	assert.ErrorIs(t, err, engine.ErrMonthLocked)
}

func TestService_Publish_BlockedByErrorFindings(t *testing.T) {
	// GIVEN: a sheet whose expense totals drifted far beyond the rounding
	//        epsilon (simulated via a stale stored sheet)
	// THEN: publish is rejected and the findings are returned

	mem := store.NewMemory()
	svc := engine.NewService(mem, nil)
	ctx := context.Background()
	require.NoError(t, svc.ReplaceStructure(ctx, testStructure()))

	sheet := gateSheet("500", "510")
	require.NoError(t, mem.PutSheet(ctx, sheet))

	_, findings, err := svc.Publish(ctx, "Martie_2025", "Admin", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidationBlocked)
	assert.True(t, engine.HasBlocking(findings))

	// Nothing was archived.
	versions, err := svc.ListVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestService_Publish_WarningsNeedAcknowledgement(t *testing.T) {
	// One cent of drift is a warning: blocked without ack, allowed with it.
	mem := store.NewMemory()
	svc := engine.NewService(mem, nil)
	ctx := context.Background()
	require.NoError(t, svc.ReplaceStructure(ctx, testStructure()))

	sheet := gateSheet("500", "500.01")
	require.NoError(t, mem.PutSheet(ctx, sheet))

	_, findings, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidationBlocked)
	assert.True(t, engine.HasWarnings(findings))

	record, _, err := svc.Publish(ctx, "Martie_2025", "Admin", true)
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestService_DeleteVersion_AllowsRepublish(t *testing.T) {
	// The explicit administrative delete reopens the month for publishing.
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteVersion(ctx, "Martie_2025"))

	sheet, err := svc.Sheet(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, engine.MonthDraft, sheet.Status)

	_, _, err = svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)
}

// =============================================================================
// PAYMENTS AND RECEIPTS
// =============================================================================

func TestService_RecordPayment_MonotonicReceipts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")

	first, err := svc.RecordPayment(ctx, "Martie_2025", engine.PaymentInput{
		ApartmentID: "ap-01", Amount: d("100"),
	})
	require.NoError(t, err)
	second, err := svc.RecordPayment(ctx, "Martie_2025", engine.PaymentInput{
		ApartmentID: "ap-02", Amount: d("50"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, first.ReceiptNumber)
	assert.Equal(t, 2, second.ReceiptNumber)
	assert.NotEqual(t, first.Receipt, second.Receipt)
}

func TestService_RecordPayment_AllowedOnPublishedMonth(t *testing.T) {
	// Payments are the one mutation a published month accepts.
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")
	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	payment, err := svc.RecordPayment(ctx, "Martie_2025", engine.PaymentInput{
		ApartmentID: "ap-01", Amount: d("100"),
	})
	require.NoError(t, err)
	assert.True(t, payment.Intretinere.Equal(d("100")))
}

// =============================================================================
// ARCHIVE EXPORT / IMPORT
// =============================================================================

func TestService_ExportAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")
	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	archive, err := svc.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, archive.TotalVersions)
	assert.Contains(t, archive.History, "Martie_2025")
}

func TestService_ImportMerge_ExistingKeysProtected(t *testing.T) {
	// GIVEN: a published March and a backup containing a TAMPERED March plus
	//        a new February
	// WHEN: the backup is imported
	// THEN: only February is added; the live March record wins

	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")
	record, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	tampered := *record
	tampered.Meta.PublishedBy = "Intruder"
	february := *record
	february.MonthKey = "Februarie_2025"
	february.Month = "Februarie 2025"

	added, err := svc.ImportMerge(ctx, &engine.Archive{
		TotalVersions: 2,
		History: map[string]engine.VersionRecord{
			"Martie_2025":    tampered,
			"Februarie_2025": february,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	live, _, err := svc.LoadVersion(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Equal(t, "Admin", live.Meta.PublishedBy)

	imported, _, err := svc.LoadVersion(ctx, "Februarie_2025")
	require.NoError(t, err)
	assert.Equal(t, "Februarie_2025", imported.MonthKey)
}

func TestService_ImportMerge_RejectsMissingHistory(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ImportMerge(context.Background(), &engine.Archive{})
	assert.ErrorIs(t, err, engine.ErrBadArchive)

	_, err = svc.ImportMerge(context.Background(), nil)
	assert.ErrorIs(t, err, engine.ErrBadArchive)
}

// =============================================================================
// VERSION LOADING
// =============================================================================

func TestService_LoadVersion_IntegrityCheck(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	openMarch(t, svc)
	addCleaning(t, svc, "Martie_2025", "500")
	_, _, err := svc.Publish(ctx, "Martie_2025", "Admin", false)
	require.NoError(t, err)

	record, warning, err := svc.LoadVersion(ctx, "Martie_2025")
	require.NoError(t, err)
	assert.Nil(t, warning)
	assert.Equal(t, "Martie_2025", record.MonthKey)

	_, _, err = svc.LoadVersion(ctx, "Iunie_2025")
	assert.ErrorIs(t, err, engine.ErrVersionNotFound)
}
