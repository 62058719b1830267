package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/tidywork/finance-engine/internal/billing"
	"github.com/tidywork/finance-engine/internal/completion"
	"github.com/tidywork/finance-engine/internal/custody"
	"github.com/tidywork/finance-engine/internal/ledger"
	"github.com/tidywork/finance-engine/internal/payroll"
	"github.com/tidywork/finance-engine/internal/transport/middleware"
	"github.com/tidywork/finance-engine/internal/transport/swagger"
)

// Handlers carries every mounted handler. Nil entries are skipped so the
// router can be assembled piecemeal in tests.
type Handlers struct {
	Completion *completion.Handler
	Custody    *custody.Handler
	Billing    *billing.Handler
	Payroll    *payroll.Handler
	Ledger     *ledger.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, jwtSigningKey []byte, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Everything else requires an authenticated actor.
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.ActorContext(jwtSigningKey))

			if handlers.Completion != nil {
				pr.Route("/jobs", func(jr chi.Router) {
					jr.Post("/{id}/start", handlers.Completion.StartJob)
					jr.Post("/{id}/cancel", handlers.Completion.CancelJob)
					jr.Post("/{id}/complete", handlers.Completion.CompleteJob)
				})
			}

			if handlers.Billing != nil || handlers.Completion != nil {
				pr.Route("/billing", func(br chi.Router) {
					if handlers.Completion != nil {
						br.Get("/pending-invoices", handlers.Completion.ListPendingInvoices)
						br.Post("/jobs/{id}/invoice", handlers.Completion.GenerateInvoice)
					}
					if handlers.Billing != nil {
						br.Get("/jobs/{id}", handlers.Billing.GetByJob)
						br.Patch("/artifacts/{id}/sent", handlers.Billing.MarkSent)
						br.Patch("/artifacts/{id}/paid", handlers.Billing.MarkPaid)
						br.Patch("/artifacts/{id}/cancel", handlers.Billing.CancelInvoice)
						br.Post("/overdue-sweep", handlers.Billing.MarkOverdue)
					}
				})
			}

			if handlers.Custody != nil {
				pr.Route("/custody", func(cr chi.Router) {
					cr.Get("/pending", handlers.Custody.ListPending)
					cr.Patch("/{id}/approve", handlers.Custody.Approve)
					cr.Patch("/{id}/reject", handlers.Custody.Reject)
					cr.Patch("/{id}/resolve", handlers.Custody.Resolve)
				})
			}

			if handlers.Payroll != nil {
				pr.Route("/payroll", func(yr chi.Router) {
					yr.Get("/periods", handlers.Payroll.ListPeriods)
					yr.Get("/periods/current", handlers.Payroll.CurrentPeriod)
					yr.Get("/periods/{id}", handlers.Payroll.GetPeriod)
					yr.Post("/periods/{id}/aggregate", handlers.Payroll.Aggregate)
					yr.Patch("/periods/{id}/approve", handlers.Payroll.Approve)
					yr.Patch("/periods/{id}/pay", handlers.Payroll.Pay)
					yr.Post("/check", handlers.Payroll.Check)
				})
			}

			if handlers.Ledger != nil {
				pr.Route("/ledger", func(lr chi.Router) {
					lr.Get("/entries", handlers.Ledger.ListEntries)
					lr.Get("/periods", handlers.Ledger.ListPeriods)
					lr.Post("/periods", handlers.Ledger.CreatePeriod)
					lr.Patch("/periods/{id}/close", handlers.Ledger.ClosePeriod)
					lr.Patch("/periods/{id}/reopen", handlers.Ledger.ReopenPeriod)
				})
			}
		})
	})
}
