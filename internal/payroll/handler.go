package payroll

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/transport"
	"github.com/tidywork/finance-engine/pkg/logger"
)

type ServiceAPI interface {
	CurrentPeriod(ctx context.Context, tenantID string) (*Period, error)
	Aggregate(ctx context.Context, tenantID, periodID string) (*Period, []*Line, error)
	Approve(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*Period, error)
	Pay(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*Period, error)
	GetPeriod(ctx context.Context, tenantID, periodID string) (*Period, []*Line, error)
	ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]*Period, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Checker *Checker
}

func NewHandler(service ServiceAPI, checker *Checker) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		Checker:     checker,
	}
}

func (h *Handler) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	period, err := h.Service.CurrentPeriod(r.Context(), actor.TenantID)
	if err != nil {
		h.Logger.Error("CurrentPeriod: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, period)
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")
	period, lines, err := h.Service.GetPeriod(r.Context(), actor.TenantID, periodID)
	if err != nil {
		h.Logger.Error("GetPeriod: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"period": period,
		"lines":  lines,
	})
}

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
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

	periods, err := h.Service.ListPeriods(r.Context(), actor.TenantID, limit, offset)
	if err != nil {
		h.Logger.Error("ListPeriods: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"periods": periods,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")
	period, lines, err := h.Service.Aggregate(r.Context(), actor.TenantID, periodID)
	if err != nil {
		h.Logger.Error("Aggregate: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Aggregate: payroll period aggregated",
		"period_id", periodID, "workers", len(lines))
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"period": period,
		"lines":  lines,
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")
	period, err := h.Service.Approve(r.Context(), actor.TenantID, periodID, actor)
	if err != nil {
		h.Logger.Error("Approve: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, period)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")
	period, err := h.Service.Pay(r.Context(), actor.TenantID, periodID, actor)
	if err != nil {
		h.Logger.Error("Pay: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, period)
}

// Check runs the periodic maintenance for the caller's tenant. The cron
// command covers all tenants; this endpoint exists for manual triggering.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Checker.CheckTenant(r.Context(), actor.TenantID); err != nil {
		h.Logger.Error("Check: checker error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "checked"})
}
