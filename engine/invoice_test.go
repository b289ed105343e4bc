package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocledger/fee-engine/engine"
	"github.com/blocledger/fee-engine/engine/store"
)

func newInvoiceLedger(t *testing.T) (*engine.InvoiceLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return engine.NewInvoiceLedger(mem), mem
}

func registerInvoice(t *testing.T, ledger *engine.InvoiceLedger, id string, total string) {
	t.Helper()
	err := ledger.Register(context.Background(), &engine.Invoice{
		ID:          engine.InvoiceID(id),
		Number:      "F-" + id,
		Supplier:    "Apa Nova",
		TypeID:      "water",
		IssueDate:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount: d(total),
	})
	require.NoError(t, err)
}

// =============================================================================
// DISTRIBUTION LINKS
// =============================================================================

func TestInvoiceLedger_LinkReducesRemaining(t *testing.T) {
	// GIVEN: an invoice of 1000.00
	// WHEN: 400.00 is linked to a March entry
	// THEN: 600.00 remains available for later months

	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()
	registerInvoice(t, ledger, "inv-1", "1000")

	invoice, err := ledger.LinkDistribution(ctx, "inv-1", "entry-mar", d("400"))
	require.NoError(t, err)

	assert.True(t, invoice.DistributedAmount.Equal(d("400")))
	assert.True(t, invoice.RemainingAmount().Equal(d("600")))
	assert.False(t, invoice.FullyDistributed())
	require.Len(t, invoice.Links, 1)
	assert.Equal(t, engine.ExpenseEntryID("entry-mar"), invoice.Links[0].EntryID)
}

func TestInvoiceLedger_CrossMonthDistribution(t *testing.T) {
	// GIVEN: 400.00 of a 1000.00 invoice consumed in March
	// WHEN: April consumes the remaining 600.00
	// THEN: the invoice is fully distributed and both links survive

	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()
	registerInvoice(t, ledger, "inv-1", "1000")

	_, err := ledger.LinkDistribution(ctx, "inv-1", "entry-mar", d("400"))
	require.NoError(t, err)
	invoice, err := ledger.LinkDistribution(ctx, "inv-1", "entry-apr", d("600"))
	require.NoError(t, err)

	assert.True(t, invoice.FullyDistributed())
	assert.Len(t, invoice.Links, 2)
}

func TestInvoiceLedger_OverDistributionRejected(t *testing.T) {
	// GIVEN: 400.00 of a 1000.00 invoice already consumed
	// WHEN: another 700.00 is requested
	// THEN: rejected with the remaining amount, never clamped

	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()
	registerInvoice(t, ledger, "inv-1", "1000")

	_, err := ledger.LinkDistribution(ctx, "inv-1", "entry-mar", d("400"))
	require.NoError(t, err)

	_, err = ledger.LinkDistribution(ctx, "inv-1", "entry-apr", d("700"))
	require.Error(t, err)

	var overErr *engine.OverDistributionError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, overErr.Remaining.Equal(d("600")))
	assert.ErrorIs(t, err, engine.ErrOverDistribution)

	// The rejected link must not have consumed anything.
	stored, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].DistributedAmount.Equal(d("400")))
}

func TestInvoiceLedger_UnlinkRestoresAmount(t *testing.T) {
	// GIVEN: two links on one invoice
	// WHEN: the March entry's links are reversed
	// THEN: only the April link remains and the amount is restored

	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()
	registerInvoice(t, ledger, "inv-1", "1000")

	_, err := ledger.LinkDistribution(ctx, "inv-1", "entry-mar", d("400"))
	require.NoError(t, err)
	_, err = ledger.LinkDistribution(ctx, "inv-1", "entry-apr", d("300"))
	require.NoError(t, err)

	invoice, err := ledger.Unlink(ctx, "inv-1", "entry-mar")
	require.NoError(t, err)

	assert.True(t, invoice.DistributedAmount.Equal(d("300")))
	assert.True(t, invoice.RemainingAmount().Equal(d("700")))
	require.Len(t, invoice.Links, 1)
	assert.Equal(t, engine.ExpenseEntryID("entry-apr"), invoice.Links[0].EntryID)
}

func TestInvoiceLedger_RegisterZeroesDistribution(t *testing.T) {
	// Callers cannot smuggle pre-distributed state into a new invoice.
	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()

	err := ledger.Register(ctx, &engine.Invoice{
		ID: "inv-2", Number: "F-2", Supplier: "Enel",
		IssueDate:         time.Now(),
		TotalAmount:       d("500"),
		DistributedAmount: d("123"),
		Links:             []engine.InvoiceLink{{EntryID: "bogus", Amount: d("123")}},
	})
	require.NoError(t, err)

	stored, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].DistributedAmount.IsZero())
	assert.Empty(t, stored[0].Links)
}

// =============================================================================
// PARTIAL LOOKUP
// =============================================================================

func TestInvoiceLedger_FindPartial(t *testing.T) {
	// GIVEN: one fully distributed invoice, one partial, one untouched of a
	//        different type
	// THEN: the partial filter returns only open invoices, optionally by type

	ledger, _ := newInvoiceLedger(t)
	ctx := context.Background()

	registerInvoice(t, ledger, "inv-full", "100")
	registerInvoice(t, ledger, "inv-open", "1000")
	err := ledger.Register(ctx, &engine.Invoice{
		ID: "inv-gas", Number: "F-gas", Supplier: "Engie", TypeID: "gas",
		IssueDate: time.Now(), TotalAmount: d("250"),
	})
	require.NoError(t, err)

	_, err = ledger.LinkDistribution(ctx, "inv-full", "entry-1", d("100"))
	require.NoError(t, err)
	_, err = ledger.LinkDistribution(ctx, "inv-open", "entry-1", d("400"))
	require.NoError(t, err)

	open, err := ledger.FindPartial(ctx, "")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	water, err := ledger.FindPartial(ctx, "water")
	require.NoError(t, err)
	require.Len(t, water, 1)
	assert.Equal(t, engine.InvoiceID("inv-open"), water[0].ID)
}
