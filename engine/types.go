/*
Package engine implements the maintenance fee allocation and ledger core.

PURPOSE:
  This package contains the domain types and algorithms for a residential
  association's monthly fee management: splitting shared expenses across
  apartments, tracking partial invoice consumption, carrying arrears and
  penalties month to month, allocating payments, and freezing published
  months into an immutable version archive.

KEY CONCEPTS IN THIS FILE (types.go):
  - Structure: blocks, stairs and apartments of one association
  - ExpenseType / ExpenseEntry: configuration vs. one month's entry
  - Invoice: a supplier bill distributed across one or more entries
  - BalanceRow: one apartment's dues for one month
  - MonthSheet: the mutable working month (draft) or frozen record
  - VersionRecord: the published, checksummed snapshot of a month

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every amount; no float64 in domain code
  2. Immutability: published sheets and payments are never edited
  3. Type safety: distinct ID types, closed enumerations for modes
  4. Exactness: every distribution sums to the entered amount to the cent

SEE ALSO:
  - distribution.go: expense splitting rules
  - balance.go: arrears/penalty carry and manual adjustment
  - snapshot.go: publish/versioning
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - all ledger amounts are RON with cent precision
// =============================================================================

var (
	// Cent is the smallest representable ledger amount (0.01 RON).
	Cent = decimal.New(1, -2)

	oneHundred = decimal.NewFromInt(100)
)

// Round2 rounds to cent precision, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Floor2 truncates toward negative infinity at cent precision.
// Used by the proportional splitter before remainder distribution.
func Floor2(d decimal.Decimal) decimal.Decimal { return d.RoundFloor(2) }

// MustDecimal parses a decimal literal; test and fixture helper.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("engine: bad decimal literal: " + s)
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ApartmentID    string
	BlockID        string
	StairID        string
	ExpenseTypeID  string
	ExpenseEntryID string
	InvoiceID      string
	PaymentID      string
)

// =============================================================================
// CLOSED ENUMERATIONS - distribution, reception, invoice and month modes
// =============================================================================

// DistributionType selects the rule used to split an expense across apartments.
type DistributionType string

const (
	DistributePerApartment      DistributionType = "perApartment"
	DistributePerPerson         DistributionType = "perPerson"
	DistributePerConsumption    DistributionType = "perConsumption"
	DistributeIndividualAmount  DistributionType = "individualAmount"
	DistributePerOwnershipShare DistributionType = "perOwnershipShare"
)

func (d DistributionType) Valid() bool {
	switch d {
	case DistributePerApartment, DistributePerPerson, DistributePerConsumption,
		DistributeIndividualAmount, DistributePerOwnershipShare:
		return true
	}
	return false
}

// ReceptionMode selects whether an expense amount is entered once for the
// whole association or broken down per block/stair.
type ReceptionMode string

const (
	ReceptionTotal    ReceptionMode = "total"
	ReceptionPerBlock ReceptionMode = "perBlock"
	ReceptionPerStair ReceptionMode = "perStair"
)

func (r ReceptionMode) Valid() bool {
	switch r {
	case ReceptionTotal, ReceptionPerBlock, ReceptionPerStair:
		return true
	}
	return false
}

// InvoiceMode: one invoice for the whole entry, or separate per scope.
type InvoiceMode string

const (
	InvoiceSingle   InvoiceMode = "single"
	InvoiceSeparate InvoiceMode = "separate"
)

// MonthStatus is the lifecycle of a MonthSheet.
type MonthStatus string

const (
	MonthDraft     MonthStatus = "draft"
	MonthPublished MonthStatus = "published"
	MonthHistoric  MonthStatus = "historic"
)

// =============================================================================
// ASSOCIATION STRUCTURE - blocks, stairs, apartments (read-only input)
// =============================================================================

type Block struct {
	ID   BlockID `json:"id"`
	Name string  `json:"name"`
}

type Stair struct {
	ID      StairID `json:"id"`
	BlockID BlockID `json:"blockId"`
	Name    string  `json:"name"`
}

// Apartment identity is immutable; descriptive fields may change between
// months but never inside a published sheet.
type Apartment struct {
	ID      ApartmentID `json:"id"`
	Number  int         `json:"number"`
	Owner   string      `json:"owner"`
	StairID StairID     `json:"stairId"`
	Persons int         `json:"persons"`

	// Surface in square meters; CotaParte is the ownership share percentage
	// derived from surface / total scope surface * 100, at 4 decimals.
	Surface   decimal.Decimal `json:"surface"`
	CotaParte decimal.Decimal `json:"cotaParte"`

	HeatingSource string `json:"heatingSource,omitempty"`

	// Opening balances for the association's first managed month.
	InitialRestante   decimal.Decimal `json:"initialRestante"`
	InitialPenalitati decimal.Decimal `json:"initialPenalitati"`
}

// Structure is the full layout of one association. It is owned by an
// external structure provider; the engine only reads it.
type Structure struct {
	AssociationID   string      `json:"associationId"`
	AssociationName string      `json:"associationName"`
	Blocks          []Block     `json:"blocks"`
	Stairs          []Stair     `json:"stairs"`
	Apartments      []Apartment `json:"apartments"`
}

// =============================================================================
// EXPENSE CONFIGURATION AND MONTHLY ENTRIES
// =============================================================================

// ExpenseType is long-lived configuration: how a category of expense is
// received and distributed.
type ExpenseType struct {
	ID           ExpenseTypeID    `json:"id"`
	Name         string           `json:"name"`
	Distribution DistributionType `json:"distributionType"`
	Reception    ReceptionMode    `json:"receptionMode"`
	InvoiceMode  InvoiceMode      `json:"invoiceMode"`
	SupplierID   string           `json:"supplierId,omitempty"`
	Active       bool             `json:"active"`

	// Optional restriction: the blocks/stairs this expense applies to.
	// Empty means the whole association.
	BlockScope []BlockID `json:"blockScope,omitempty"`
	StairScope []StairID `json:"stairScope,omitempty"`
}

// ExpenseEntry is one month's occurrence of an ExpenseType. Mutable while
// the month is draft, frozen at publish.
type ExpenseEntry struct {
	ID     ExpenseEntryID `json:"id"`
	TypeID ExpenseTypeID  `json:"typeId"`
	Name   string         `json:"name"`
	Month  string         `json:"month"`

	// Entered amount(s): one total, or a per-block / per-stair breakdown
	// depending on the type's reception mode.
	Amount         decimal.Decimal             `json:"amount"`
	AmountsByBlock map[BlockID]decimal.Decimal `json:"amountsByBlock,omitempty"`
	AmountsByStair map[StairID]decimal.Decimal `json:"amountsByStair,omitempty"`

	// Consumption distribution inputs. BillAmount is the authoritative
	// invoice total; metering drift against it becomes DifferenceDetails.
	UnitPrice   decimal.Decimal                 `json:"unitPrice,omitempty"`
	BillAmount  decimal.Decimal                 `json:"billAmount,omitempty"`
	Consumption map[ApartmentID]decimal.Decimal `json:"consumption,omitempty"`

	// Individual distribution inputs: administrator-entered value per
	// apartment; Amount is then verification-only.
	IndividualAmounts map[ApartmentID]decimal.Decimal `json:"individualAmounts,omitempty"`

	InvoiceIDs []InvoiceID `json:"invoiceIds,omitempty"`

	// Computed by the distribution engine.
	PerApartmentShare map[ApartmentID]decimal.Decimal `json:"perApartmentShare,omitempty"`
	DifferenceDetails map[ApartmentID]decimal.Decimal `json:"differenceDetails,omitempty"`
	Discrepancy       decimal.Decimal                 `json:"discrepancy"`
}

// ShareFor returns the computed share plus reconciliation difference for one
// apartment.
func (e *ExpenseEntry) ShareFor(id ApartmentID) decimal.Decimal {
	share := e.PerApartmentShare[id]
	if diff, ok := e.DifferenceDetails[id]; ok {
		share = share.Add(diff)
	}
	return share
}

// =============================================================================
// INVOICE - a supplier bill, possibly distributed across several months
// =============================================================================

type InvoiceLink struct {
	EntryID  ExpenseEntryID  `json:"expenseEntryId"`
	Amount   decimal.Decimal `json:"amountDistributed"`
	LinkedAt time.Time       `json:"linkedAt"`
}

type Invoice struct {
	ID          InvoiceID       `json:"id"`
	Number      string          `json:"number"`
	Supplier    string          `json:"supplier"`
	TypeID      ExpenseTypeID   `json:"expenseTypeId,omitempty"`
	IssueDate   time.Time       `json:"issueDate"`
	DueDate     time.Time       `json:"dueDate"`
	TotalAmount decimal.Decimal `json:"totalAmount"`

	// Sum of all link amounts so far. Never exceeds TotalAmount.
	DistributedAmount decimal.Decimal `json:"distributedAmount"`

	Links       []InvoiceLink `json:"links,omitempty"`
	DocumentRef string        `json:"documentRef,omitempty"`
}

// RemainingAmount is the undistributed balance. Invariant: never negative.
func (inv *Invoice) RemainingAmount() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.DistributedAmount)
}

// FullyDistributed reports whether nothing is left to distribute.
func (inv *Invoice) FullyDistributed() bool {
	return inv.RemainingAmount().LessThanOrEqual(decimal.Zero)
}

// =============================================================================
// BALANCE ROW - one apartment's dues for one month
// =============================================================================

// BalanceRow carries the current month maintenance, arrears (restante),
// penalties (penalitati) and the per-category amounts already paid.
type BalanceRow struct {
	ApartmentID     ApartmentID `json:"apartmentId"`
	ApartmentNumber int         `json:"apartment"`
	Owner           string      `json:"owner"`
	Persons         int         `json:"persons"`
	BlockName       string      `json:"blockName"`
	StairName       string      `json:"stairName"`

	CurrentMaintenance decimal.Decimal `json:"currentMaintenance"`
	Restante           decimal.Decimal `json:"restante"`
	Penalitati         decimal.Decimal `json:"penalitati"`

	// Per-expense breakdown, keyed by expense name.
	ExpenseDetails map[string]decimal.Decimal `json:"expenseDetails,omitempty"`

	// Cumulative payment allocations against each category.
	PaidIntretinere decimal.Decimal `json:"paidIntretinere"`
	PaidRestante    decimal.Decimal `json:"paidRestante"`
	PaidPenalitati  decimal.Decimal `json:"paidPenalitati"`

	Paid          bool `json:"paid"`
	PartiallyPaid bool `json:"partiallyPaid"`
}

// TotalMaintenance = current maintenance + arrears.
func (r *BalanceRow) TotalMaintenance() decimal.Decimal {
	return r.CurrentMaintenance.Add(r.Restante)
}

// TotalDatorat = total maintenance + penalties. This is the month's full
// debt, before payments.
func (r *BalanceRow) TotalDatorat() decimal.Decimal {
	return r.TotalMaintenance().Add(r.Penalitati)
}

func (r *BalanceRow) UnpaidPenalitati() decimal.Decimal {
	return r.Penalitati.Sub(r.PaidPenalitati)
}

func (r *BalanceRow) UnpaidRestante() decimal.Decimal {
	return r.Restante.Sub(r.PaidRestante)
}

func (r *BalanceRow) UnpaidIntretinere() decimal.Decimal {
	return r.CurrentMaintenance.Sub(r.PaidIntretinere)
}

// RemainingDue is the debt left after all payments recorded so far.
func (r *BalanceRow) RemainingDue() decimal.Decimal {
	return r.UnpaidPenalitati().Add(r.UnpaidRestante()).Add(r.UnpaidIntretinere())
}

// TotalPaid is the sum of all payment allocations on this row.
func (r *BalanceRow) TotalPaid() decimal.Decimal {
	return r.PaidPenalitati.Add(r.PaidRestante).Add(r.PaidIntretinere)
}

// refreshFlags recomputes the paid/partiallyPaid pair after a payment or an
// adjustment.
func (r *BalanceRow) refreshFlags() {
	r.Paid = r.RemainingDue().IsZero()
	r.PartiallyPaid = !r.Paid && r.TotalPaid().GreaterThan(decimal.Zero)
}

// =============================================================================
// PAYMENT - immutable receipt record
// =============================================================================

type Payment struct {
	ID              PaymentID   `json:"id"`
	ApartmentID     ApartmentID `json:"apartmentId"`
	ApartmentNumber int         `json:"apartmentNumber"`
	Owner           string      `json:"owner"`

	// Waterfall breakdown; the three always sum to Amount.
	Penalitati  decimal.Decimal `json:"penalitati"`
	Restante    decimal.Decimal `json:"restante"`
	Intretinere decimal.Decimal `json:"intretinere"`
	Amount      decimal.Decimal `json:"total"`

	ReceiptNumber int    `json:"receiptNumber"`
	Receipt       string `json:"receipt"`

	Method    string    `json:"paymentMethod,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// MONTH SHEET - the working month and its frozen form
// =============================================================================

type MonthSheet struct {
	MonthKey      string      `json:"monthKey"`
	Month         string      `json:"month"`
	AssociationID string      `json:"associationId"`
	Status        MonthStatus `json:"status"`

	Rows     []BalanceRow   `json:"rows"`
	Expenses []ExpenseEntry `json:"expenses"`
	Payments []Payment      `json:"payments"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Row returns a pointer to the balance row for the apartment, or nil.
func (s *MonthSheet) Row(id ApartmentID) *BalanceRow {
	for i := range s.Rows {
		if s.Rows[i].ApartmentID == id {
			return &s.Rows[i]
		}
	}
	return nil
}

// Entry returns a pointer to the expense entry with the id, or nil.
func (s *MonthSheet) Entry(id ExpenseEntryID) *ExpenseEntry {
	for i := range s.Expenses {
		if s.Expenses[i].ID == id {
			return &s.Expenses[i]
		}
	}
	return nil
}

// TotalTabel is the sum of current maintenance across all rows; compared
// against TotalCheltuieli by the validation gate.
func (s *MonthSheet) TotalTabel() decimal.Decimal {
	total := decimal.Zero
	for i := range s.Rows {
		total = total.Add(s.Rows[i].CurrentMaintenance)
	}
	return total
}

// TotalCheltuieli is the sum of all entered expense amounts for the month,
// including consumption reconciliation differences.
func (s *MonthSheet) TotalCheltuieli() decimal.Decimal {
	total := decimal.Zero
	for i := range s.Expenses {
		total = total.Add(entryTotal(&s.Expenses[i]))
	}
	return total
}

// entryTotal is the effective distributed amount of one entry: the sum of
// shares plus reconciliation differences.
func entryTotal(e *ExpenseEntry) decimal.Decimal {
	total := decimal.Zero
	for _, v := range e.PerApartmentShare {
		total = total.Add(v)
	}
	for _, v := range e.DifferenceDetails {
		total = total.Add(v)
	}
	return total
}

// Editable reports whether draft mutations (expense edits, recompute,
// adjustments) are allowed.
func (s *MonthSheet) Editable() bool { return s.Status == MonthDraft }

// =============================================================================
// VERSION RECORD - the published archive entry
// =============================================================================

// Statistics are computed once at publish and stored with the record.
type Statistics struct {
	TotalApartments     int             `json:"totalApartments"`
	ApartmentePlatite   int             `json:"apartmentePlatite"`
	ApartamenteRestante int             `json:"apartamenteRestante"`
	TotalIncasat        decimal.Decimal `json:"totalIncasat"`
	TotalRestante       decimal.Decimal `json:"totalRestante"`
}

type VersionMeta struct {
	AssociationID   string `json:"associationId"`
	AssociationName string `json:"associationName"`
	PublishedBy     string `json:"publishedBy"`
	Version         string `json:"version"`
}

// VersionRecord is created exactly once per month at publish time. The
// archive of records is append-only.
type VersionRecord struct {
	ID        string      `json:"id"`
	MonthKey  string      `json:"monthKey"`
	Month     string      `json:"month"`
	Timestamp time.Time   `json:"timestamp"`
	Status    MonthStatus `json:"status"`

	Sheet      MonthSheet  `json:"sheet"`
	Statistics Statistics  `json:"statistics"`
	Checksum   string      `json:"checksum"`
	Meta       VersionMeta `json:"meta"`
}

// Archive is the export/import boundary shape.
type Archive struct {
	ExportDate    time.Time                `json:"exportDate"`
	TotalVersions int                      `json:"totalVersions"`
	History       map[string]VersionRecord `json:"history"`
}
