/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/structure        Association layout
  /api/expense-types    Expense configuration
  /api/months/*         Month lifecycle, expenses, payments, publish
  /api/invoices/*       Supplier invoices and distribution links
  /api/versions/*       Published archive
  /api/archive/*        Export and import

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/structure", func(r chi.Router) {
			r.Get("/", h.GetStructure)
			r.Put("/", h.PutStructure)
		})

		r.Route("/expense-types", func(r chi.Router) {
			r.Get("/", h.ListExpenseTypes)
			r.Post("/", h.SaveExpenseType)
		})

		r.Route("/months", func(r chi.Router) {
			r.Get("/", h.ListMonths)
			r.Post("/", h.OpenMonth)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", h.GetMonth)
				r.Post("/expenses", h.UpsertExpense)
				r.Delete("/expenses/{id}", h.DeleteExpense)
				r.Post("/recompute", h.Recompute)
				r.Post("/adjust", h.Adjust)
				r.Get("/payments", h.ListPayments)
				r.Post("/payments", h.CreatePayment)
				r.Post("/publish", h.Publish)
			})
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Post("/{id}/links", h.LinkInvoice)
			r.Delete("/{id}/links/{entryId}", h.UnlinkInvoice)
		})

		r.Route("/versions", func(r chi.Router) {
			r.Get("/", h.ListVersions)
			r.Get("/{key}", h.GetVersion)
			r.Delete("/{key}", h.DeleteVersion)
		})

		r.Route("/archive", func(r chi.Router) {
			r.Get("/export", h.ExportArchive)
			r.Post("/import", h.ImportArchive)
		})
	})

	return r
}
