package custody

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/transport"
	"github.com/tidywork/finance-engine/pkg/logger"
)

type ServiceAPI interface {
	Approve(ctx context.Context, tenantID, recordID string, actor *auth.Actor) (*Record, error)
	Reject(ctx context.Context, tenantID, recordID, reason string, actor *auth.Actor) (*Record, error)
	Resolve(ctx context.Context, tenantID, recordID, notes string, actor *auth.Actor) (*Record, error)
	ListPendingApprovals(ctx context.Context, tenantID string, limit, offset int) ([]*Record, error)
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

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

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

	records, err := h.Service.ListPendingApprovals(r.Context(), actor.TenantID, limit, offset)
	if err != nil {
		h.Logger.Error("ListPending: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recordID := chi.URLParam(r, "id")
	record, err := h.Service.Approve(r.Context(), actor.TenantID, recordID, actor)
	if err != nil {
		h.Logger.Error("Approve: service error", "error", err, "custody_id", recordID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

type decisionDTO struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recordID := chi.URLParam(r, "id")

	var dto decisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.Reason == "" {
		h.WriteError(w, http.StatusBadRequest, "rejection reason is required")
		return
	}

	record, err := h.Service.Reject(r.Context(), actor.TenantID, recordID, dto.Reason, actor)
	if err != nil {
		h.Logger.Error("Reject: service error", "error", err, "custody_id", recordID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recordID := chi.URLParam(r, "id")

	var dto decisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.Service.Resolve(r.Context(), actor.TenantID, recordID, dto.Notes, actor)
	if err != nil {
		h.Logger.Error("Resolve: service error", "error", err, "custody_id", recordID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}
