/*
handlers.go - HTTP API handlers for the fee allocation engine

PURPOSE:
  Exposes the fee engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the engine service.

ENDPOINTS:
  Structure:
    GET    /api/structure              Association layout
    PUT    /api/structure              Replace layout (recomputes cotaParte)

  Expense types:
    GET    /api/expense-types          List configuration
    POST   /api/expense-types          Create/update a type

  Months:
    GET    /api/months                 List all sheets
    POST   /api/months                 Open the first month
    GET    /api/months/{key}           Sheet + validation findings
    POST   /api/months/{key}/expenses  Add/replace an expense entry
    DELETE /api/months/{key}/expenses/{id}
    POST   /api/months/{key}/recompute Recompute current maintenance
    POST   /api/months/{key}/adjust    Manual balance adjustment
    POST   /api/months/{key}/payments  Record a payment
    POST   /api/months/{key}/publish   Freeze and archive the month

  Invoices:
    GET    /api/invoices               List (?partial=true&type=)
    POST   /api/invoices               Register invoice
    POST   /api/invoices/{id}/links    Link amount to an expense entry
    DELETE /api/invoices/{id}/links/{entryId}

  Archive:
    GET    /api/versions               List published versions
    GET    /api/versions/{key}         Load one (with integrity check)
    DELETE /api/versions/{key}         Administrative delete
    GET    /api/archive/export         Full archive backup
    POST   /api/archive/import         Key-preserving merge

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (locked month, double publish, over-distribution)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blocledger/fee-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *engine.Service
	validate *validator.Validate
}

// NewHandler creates a new handler around the engine service.
func NewHandler(svc *engine.Service) *Handler {
	return &Handler{
		Service:  svc,
		validate: validator.New(),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// STRUCTURE HANDLERS
// =============================================================================

// GetStructure returns the association layout.
func (h *Handler) GetStructure(w http.ResponseWriter, r *http.Request) {
	structure, err := h.Service.Structure(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to load structure", err)
		return
	}
	writeJSON(w, http.StatusOK, structure)
}

// PutStructure replaces the association layout.
func (h *Handler) PutStructure(w http.ResponseWriter, r *http.Request) {
	var structure engine.Structure
	if err := json.NewDecoder(r.Body).Decode(&structure); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Service.ReplaceStructure(r.Context(), structure); err != nil {
		writeEngineError(w, "Failed to store structure", err)
		return
	}
	writeJSON(w, http.StatusOK, structure)
}

// =============================================================================
// EXPENSE TYPE HANDLERS
// =============================================================================

// ListExpenseTypes returns the expense configuration.
func (h *Handler) ListExpenseTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListExpenseTypes(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list expense types", err)
		return
	}
	if types == nil {
		types = []*engine.ExpenseType{}
	}
	writeJSON(w, http.StatusOK, types)
}

// SaveExpenseType creates or updates an expense type.
func (h *Handler) SaveExpenseType(w http.ResponseWriter, r *http.Request) {
	var expType engine.ExpenseType
	if err := json.NewDecoder(r.Body).Decode(&expType); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Service.SaveExpenseType(r.Context(), &expType); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expense type", err)
		return
	}
	writeJSON(w, http.StatusCreated, expType)
}

// =============================================================================
// MONTH HANDLERS
// =============================================================================

// ListMonths returns all month sheets in key order.
func (h *Handler) ListMonths(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.Service.ListSheets(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list months", err)
		return
	}
	if sheets == nil {
		sheets = []*engine.MonthSheet{}
	}
	writeJSON(w, http.StatusOK, sheets)
}

// OpenMonth opens the association's first draft month.
func (h *Handler) OpenMonth(w http.ResponseWriter, r *http.Request) {
	var req OpenMonthRequest
	if !h.decode(w, r, &req) {
		return
	}
	sheet, err := h.Service.OpenFirstMonth(r.Context(), req.Month)
	if err != nil {
		writeEngineError(w, "Failed to open month", err)
		return
	}
	writeJSON(w, http.StatusCreated, sheet)
}

// GetMonth returns a sheet plus its current validation findings.
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")
	sheet, err := h.Service.Sheet(r.Context(), monthKey)
	if err != nil {
		writeEngineError(w, "Failed to load month", err)
		return
	}
	writeJSON(w, http.StatusOK, MonthResponse{
		Sheet:    sheet,
		Findings: engine.CheckSheet(sheet),
	})
}

// UpsertExpense adds or replaces an expense entry on a draft month.
func (h *Handler) UpsertExpense(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	var req ExpenseEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	sheet, err := h.Service.UpsertExpense(r.Context(), monthKey, toExpenseEntry(req))
	if err != nil {
		writeEngineError(w, "Failed to store expense", err)
		return
	}
	writeJSON(w, http.StatusOK, MonthResponse{
		Sheet:    sheet,
		Findings: engine.CheckSheet(sheet),
	})
}

// DeleteExpense removes a draft entry and reverses its invoice links.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")
	entryID := engine.ExpenseEntryID(chi.URLParam(r, "id"))

	sheet, err := h.Service.RemoveExpense(r.Context(), monthKey, entryID)
	if err != nil {
		writeEngineError(w, "Failed to remove expense", err)
		return
	}
	writeJSON(w, http.StatusOK, MonthResponse{
		Sheet:    sheet,
		Findings: engine.CheckSheet(sheet),
	})
}

// Recompute rebuilds current maintenance from the month's entries.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")
	sheet, err := h.Service.Recompute(r.Context(), monthKey)
	if err != nil {
		writeEngineError(w, "Failed to recompute month", err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// Adjust replaces one apartment's carried balances.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Service.Adjust(r.Context(), monthKey,
		engine.ApartmentID(req.ApartmentID), req.Restante, req.Penalitati)
	if err != nil {
		writeEngineError(w, "Failed to adjust balance", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListPayments returns a month's payment log.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")
	sheet, err := h.Service.Sheet(r.Context(), monthKey)
	if err != nil {
		writeEngineError(w, "Failed to load month", err)
		return
	}
	payments := sheet.Payments
	if payments == nil {
		payments = []engine.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// CreatePayment records one payment through the waterfall.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := h.Service.RecordPayment(r.Context(), monthKey, engine.PaymentInput{
		ApartmentID: engine.ApartmentID(req.ApartmentID),
		Amount:      req.Amount,
		Method:      req.Method,
		Notes:       req.Notes,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeEngineError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// Publish freezes the month and opens the next one.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, findings, err := h.Service.Publish(r.Context(), monthKey, req.PublishedBy, req.AckWarnings)
	if err != nil {
		if errors.Is(err, engine.ErrValidationBlocked) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:    "Validation findings block publish",
				Details:  err.Error(),
				Findings: findings,
			})
			return
		}
		writeEngineError(w, "Failed to publish month", err)
		return
	}
	writeJSON(w, http.StatusCreated, PublishResponse{Record: record, Findings: findings})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns invoices, optionally only those with an undistributed
// remainder (?partial=true), optionally filtered by expense type.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("partial") == "true" {
		typeFilter := engine.ExpenseTypeID(r.URL.Query().Get("type"))
		invoices, err := h.Service.Invoices().FindPartial(ctx, typeFilter)
		if err != nil {
			writeEngineError(w, "Failed to list invoices", err)
			return
		}
		if invoices == nil {
			invoices = []*engine.Invoice{}
		}
		writeJSON(w, http.StatusOK, invoices)
		return
	}

	invoices, err := h.Service.Invoices().List(ctx)
	if err != nil {
		writeEngineError(w, "Failed to list invoices", err)
		return
	}
	if invoices == nil {
		invoices = []*engine.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

// CreateInvoice registers a supplier invoice.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid issueDate format (use YYYY-MM-DD)", err)
		return
	}
	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dueDate format (use YYYY-MM-DD)", err)
			return
		}
	}

	invoice := &engine.Invoice{
		ID:          engine.InvoiceID(req.ID),
		Number:      req.Number,
		Supplier:    req.Supplier,
		TypeID:      engine.ExpenseTypeID(req.TypeID),
		IssueDate:   issueDate,
		DueDate:     dueDate,
		TotalAmount: req.TotalAmount,
		DocumentRef: req.DocumentRef,
	}
	if invoice.ID == "" {
		invoice.ID = engine.InvoiceID(uuid.NewString())
	}

	if err := h.Service.Invoices().Register(r.Context(), invoice); err != nil {
		writeEngineError(w, "Failed to register invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

// LinkInvoice distributes part of an invoice onto an expense entry.
func (h *Handler) LinkInvoice(w http.ResponseWriter, r *http.Request) {
	id := engine.InvoiceID(chi.URLParam(r, "id"))

	var req InvoiceLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	invoice, err := h.Service.Invoices().LinkDistribution(r.Context(), id,
		engine.ExpenseEntryID(req.EntryID), req.Amount)
	if err != nil {
		writeEngineError(w, "Failed to link invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// UnlinkInvoice reverses all distribution for one entry.
func (h *Handler) UnlinkInvoice(w http.ResponseWriter, r *http.Request) {
	id := engine.InvoiceID(chi.URLParam(r, "id"))
	entryID := engine.ExpenseEntryID(chi.URLParam(r, "entryId"))

	invoice, err := h.Service.Invoices().Unlink(r.Context(), id, entryID)
	if err != nil {
		writeEngineError(w, "Failed to unlink invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// =============================================================================
// ARCHIVE HANDLERS
// =============================================================================

// ListVersions returns the published archive.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.ListVersions(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list versions", err)
		return
	}
	if records == nil {
		records = []*engine.VersionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetVersion loads one archived month with an integrity check.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	record, warning, err := h.Service.LoadVersion(r.Context(), monthKey)
	if err != nil {
		writeEngineError(w, "Failed to load version", err)
		return
	}
	resp := VersionResponse{Record: record}
	if warning != nil {
		resp.IntegrityWarning = warning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteVersion is the explicit administrative delete.
func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "key")

	if err := h.Service.DeleteVersion(r.Context(), monthKey); err != nil {
		writeEngineError(w, "Failed to delete version", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportArchive streams the full archive for backup.
func (h *Handler) ExportArchive(w http.ResponseWriter, r *http.Request) {
	archive, err := h.Service.ExportAll(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to export archive", err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\"archive.json\"")
	writeJSON(w, http.StatusOK, archive)
}

// ImportArchive merges a backup; existing month keys are never overwritten.
func (h *Handler) ImportArchive(w http.ResponseWriter, r *http.Request) {
	var archive engine.Archive
	if err := json.NewDecoder(r.Body).Decode(&archive); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid archive payload", err)
		return
	}

	added, err := h.Service.ImportMerge(r.Context(), &archive)
	if err != nil {
		writeEngineError(w, "Failed to import archive", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		Added:   added,
		Skipped: len(archive.History) - added,
		Total:   len(archive.History),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func toExpenseEntry(req ExpenseEntryRequest) engine.ExpenseEntry {
	entry := engine.ExpenseEntry{
		ID:         engine.ExpenseEntryID(req.ID),
		TypeID:     engine.ExpenseTypeID(req.TypeID),
		Name:       req.Name,
		Amount:     req.Amount,
		UnitPrice:  req.UnitPrice,
		BillAmount: req.BillAmount,
	}
	if len(req.AmountsByBlock) > 0 {
		entry.AmountsByBlock = make(map[engine.BlockID]decimal.Decimal, len(req.AmountsByBlock))
		for k, v := range req.AmountsByBlock {
			entry.AmountsByBlock[engine.BlockID(k)] = v
		}
	}
	if len(req.AmountsByStair) > 0 {
		entry.AmountsByStair = make(map[engine.StairID]decimal.Decimal, len(req.AmountsByStair))
		for k, v := range req.AmountsByStair {
			entry.AmountsByStair[engine.StairID(k)] = v
		}
	}
	if len(req.Consumption) > 0 {
		entry.Consumption = make(map[engine.ApartmentID]decimal.Decimal, len(req.Consumption))
		for k, v := range req.Consumption {
			entry.Consumption[engine.ApartmentID(k)] = v
		}
	}
	if len(req.IndividualAmounts) > 0 {
		entry.IndividualAmounts = make(map[engine.ApartmentID]decimal.Decimal, len(req.IndividualAmounts))
		for k, v := range req.IndividualAmounts {
			entry.IndividualAmounts[engine.ApartmentID(k)] = v
		}
	}
	for _, id := range req.InvoiceIDs {
		entry.InvoiceIDs = append(entry.InvoiceIDs, engine.InvoiceID(id))
	}
	return entry
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrMonthLocked),
		errors.Is(err, engine.ErrAlreadyPublished),
		errors.Is(err, engine.ErrOverDistribution),
		errors.Is(err, engine.ErrOverpayment):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
