package completion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/billing"
	"github.com/tidywork/finance-engine/internal/transport"
	"github.com/tidywork/finance-engine/pkg/logger"
)

type ServiceAPI interface {
	StartJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*Job, error)
	CancelJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*Job, error)
	CompleteJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor, dto CompleteJobDTO) (*Job, error)
	GenerateInvoiceForJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*billing.Artifact, error)
	ListPendingInvoiceJobs(ctx context.Context, tenantID string, limit, offset int) ([]*Job, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := chi.URLParam(r, "id")
	job, err := h.Service.StartJob(r.Context(), actor.TenantID, jobID, actor)
	if err != nil {
		h.Logger.Error("StartJob: service error", "error", err, "job_id", jobID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := chi.URLParam(r, "id")
	job, err := h.Service.CancelJob(r.Context(), actor.TenantID, jobID, actor)
	if err != nil {
		h.Logger.Error("CancelJob: service error", "error", err, "job_id", jobID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := chi.URLParam(r, "id")

	var dto CompleteJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CompleteJob: invalid request body", "error", err, "job_id", jobID)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.Service.CompleteJob(r.Context(), actor.TenantID, jobID, actor, dto)
	if err != nil {
		h.Logger.Error("CompleteJob: service error", "error", err, "job_id", jobID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CompleteJob: job completed",
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"kind", job.Kind)
	h.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := chi.URLParam(r, "id")
	artifact, err := h.Service.GenerateInvoiceForJob(r.Context(), actor.TenantID, jobID, actor)
	if err != nil {
		h.Logger.Error("GenerateInvoice: service error", "error", err, "job_id", jobID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, artifact)
}

func (h *Handler) ListPendingInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := paginationParams(r)
	jobs, err := h.Service.ListPendingInvoiceJobs(r.Context(), actor.TenantID, limit, offset)
	if err != nil {
		h.Logger.Error("ListPendingInvoices: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

func paginationParams(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
