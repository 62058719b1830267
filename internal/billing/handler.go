package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/transport"
	"github.com/tidywork/finance-engine/pkg/logger"
)

type ServiceAPI interface {
	GetByJobID(ctx context.Context, tenantID, jobID string) (*Artifact, error)
	MarkSent(ctx context.Context, tenantID, artifactID string) (*Artifact, error)
	MarkInvoicePaid(ctx context.Context, tenantID, artifactID string) (*Artifact, error)
	MarkOverdue(ctx context.Context, tenantID string, asOf time.Time) (int, error)
	CancelInvoice(ctx context.Context, tenantID, artifactID string, reverse func(ctx context.Context, tenantID, transactionID, memo string) (string, error)) (*Artifact, error)
}

// Reverser is the slice of the ledger service cancellation posts through.
type Reverser interface {
	Reverse(ctx context.Context, tenantID, transactionID, memo string, actor *auth.Actor) (string, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Ledger  Reverser
}

func NewHandler(service ServiceAPI, ledgerSvc Reverser) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		Ledger:      ledgerSvc,
	}
}

func (h *Handler) GetByJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := chi.URLParam(r, "id")
	artifact, err := h.Service.GetByJobID(r.Context(), actor.TenantID, jobID)
	if err != nil {
		h.Logger.Error("GetByJob: service error", "error", err, "job_id", jobID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, artifact)
}

func (h *Handler) MarkSent(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	artifactID := chi.URLParam(r, "id")
	artifact, err := h.Service.MarkSent(r.Context(), actor.TenantID, artifactID)
	if err != nil {
		h.Logger.Error("MarkSent: service error", "error", err, "artifact_id", artifactID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, artifact)
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	artifactID := chi.URLParam(r, "id")
	artifact, err := h.Service.MarkInvoicePaid(r.Context(), actor.TenantID, artifactID)
	if err != nil {
		h.Logger.Error("MarkPaid: service error", "error", err, "artifact_id", artifactID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, artifact)
}

// MarkOverdue sweeps unpaid invoices past their due date. Cron-invoked.
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.Service.MarkOverdue(r.Context(), actor.TenantID, time.Now())
	if err != nil {
		h.Logger.Error("MarkOverdue: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]int{"marked_overdue": count})
}

type cancelDTO struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	artifactID := chi.URLParam(r, "id")

	var dto cancelDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reverse := func(ctx context.Context, tenantID, transactionID, memo string) (string, error) {
		return h.Ledger.Reverse(ctx, tenantID, transactionID, memo, actor)
	}

	artifact, err := h.Service.CancelInvoice(r.Context(), actor.TenantID, artifactID, reverse)
	if err != nil {
		h.Logger.Error("CancelInvoice: service error", "error", err, "artifact_id", artifactID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, artifact)
}
