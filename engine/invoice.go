/*
invoice.go - Invoice ledger with partial, cross-month distribution

PURPOSE:
  Tracks how much of each supplier invoice has been consumed by expense
  entries. A single invoice may be distributed across several entries in
  several months; the ledger guarantees the invoice is never over-consumed.

INVARIANTS:
  - distributedAmount == sum of link amounts, checked on every mutation
  - distributedAmount <= totalAmount, always
  - an over-distribution is REJECTED, never clamped

SEE ALSO:
  - snapshot.go: publishing freezes the linked entries, not the invoices;
    a partially distributed invoice stays available for the next month
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceLedger wraps the invoice store with the distribution invariants.
type InvoiceLedger struct {
	store InvoiceStore
	now   func() time.Time
}

func NewInvoiceLedger(store InvoiceStore) *InvoiceLedger {
	return &InvoiceLedger{store: store, now: time.Now}
}

// Register stores a new invoice. The distributed amount starts at zero
// regardless of what the caller filled in.
func (l *InvoiceLedger) Register(ctx context.Context, invoice *Invoice) error {
	invoice.DistributedAmount = decimal.Zero
	invoice.Links = nil
	return l.store.PutInvoice(ctx, invoice)
}

// LinkDistribution consumes part of an invoice for one expense entry.
// Fails with *OverDistributionError if the amount exceeds what is left.
func (l *InvoiceLedger) LinkDistribution(ctx context.Context, id InvoiceID, entryID ExpenseEntryID, amount decimal.Decimal) (*Invoice, error) {
	invoice, err := l.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	amount = Round2(amount)
	if amount.GreaterThan(invoice.RemainingAmount()) {
		return nil, &OverDistributionError{
			InvoiceID: id,
			Requested: amount,
			Remaining: invoice.RemainingAmount(),
		}
	}

	invoice.Links = append(invoice.Links, InvoiceLink{
		EntryID:  entryID,
		Amount:   amount,
		LinkedAt: l.now(),
	})
	invoice.DistributedAmount = invoice.DistributedAmount.Add(amount)
	if err := l.checkConsistency(invoice); err != nil {
		return nil, err
	}
	if err := l.store.PutInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// Unlink reverses every distribution made to the given entry, restoring the
// invoice's remaining amount. Used when an entry is edited or removed while
// its month is still draft.
func (l *InvoiceLedger) Unlink(ctx context.Context, id InvoiceID, entryID ExpenseEntryID) (*Invoice, error) {
	invoice, err := l.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	kept := invoice.Links[:0]
	for _, link := range invoice.Links {
		if link.EntryID == entryID {
			invoice.DistributedAmount = invoice.DistributedAmount.Sub(link.Amount)
			continue
		}
		kept = append(kept, link)
	}
	invoice.Links = kept

	if err := l.checkConsistency(invoice); err != nil {
		return nil, err
	}
	if err := l.store.PutInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// List returns all invoices in issue-date order.
func (l *InvoiceLedger) List(ctx context.Context) ([]*Invoice, error) {
	return l.store.ListInvoices(ctx)
}

// FindPartial returns invoices with a positive remaining amount, optionally
// restricted to one expense type. Supports reusing an invoice billed once
// but distributed across several periods.
func (l *InvoiceLedger) FindPartial(ctx context.Context, typeFilter ExpenseTypeID) ([]*Invoice, error) {
	invoices, err := l.store.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	var partial []*Invoice
	for _, inv := range invoices {
		if typeFilter != "" && inv.TypeID != typeFilter {
			continue
		}
		if inv.RemainingAmount().GreaterThan(decimal.Zero) {
			partial = append(partial, inv)
		}
	}
	return partial, nil
}

// checkConsistency re-derives distributedAmount from the links and verifies
// both ledger invariants.
func (l *InvoiceLedger) checkConsistency(invoice *Invoice) error {
	sum := decimal.Zero
	for _, link := range invoice.Links {
		sum = sum.Add(link.Amount)
	}
	if !sum.Equal(invoice.DistributedAmount) || sum.GreaterThan(invoice.TotalAmount) {
		return &OverDistributionError{
			InvoiceID: invoice.ID,
			Requested: sum,
			Remaining: invoice.TotalAmount.Sub(sum),
		}
	}
	return nil
}
