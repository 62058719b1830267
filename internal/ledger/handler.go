package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/transport"
	"github.com/tidywork/finance-engine/pkg/logger"
)

type ServiceAPI interface {
	CreatePeriod(ctx context.Context, tenantID string, start, end time.Time, actor *auth.Actor) (*FinancialPeriod, error)
	ClosePeriod(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*FinancialPeriod, error)
	ReopenPeriod(ctx context.Context, tenantID, periodID, reason string, actor *auth.Actor) (*FinancialPeriod, error)
	ListPeriods(ctx context.Context, tenantID string) ([]*FinancialPeriod, error)
	ListEntries(ctx context.Context, tenantID string, from, to time.Time, limit, offset int) ([]*Entry, error)
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

type createPeriodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto createPeriodDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := time.Parse("2006-01-02", dto.StartDate)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", dto.EndDate)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return
	}

	period, err := h.Service.CreatePeriod(r.Context(), actor.TenantID, start, end, actor)
	if err != nil {
		h.Logger.Error("CreatePeriod: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, period)
}

func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")
	period, err := h.Service.ClosePeriod(r.Context(), actor.TenantID, periodID, actor)
	if err != nil {
		h.Logger.Error("ClosePeriod: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, period)
}

type reopenDTO struct {
	Reason string `json:"reason"`
}

func (h *Handler) ReopenPeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periodID := chi.URLParam(r, "id")

	var dto reopenDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.Reason == "" {
		h.WriteError(w, http.StatusBadRequest, "reopen reason is required")
		return
	}

	period, err := h.Service.ReopenPeriod(r.Context(), actor.TenantID, periodID, dto.Reason, actor)
	if err != nil {
		h.Logger.Error("ReopenPeriod: service error", "error", err, "period_id", periodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, period)
}

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	periods, err := h.Service.ListPeriods(r.Context(), actor.TenantID)
	if err != nil {
		h.Logger.Error("ListPeriods: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"periods": periods})
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Default window: the last 90 days.
	to := time.Now()
	from := to.AddDate(0, 0, -90)
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		if parsed, err := time.Parse("2006-01-02", fromStr); err == nil {
			from = parsed
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		if parsed, err := time.Parse("2006-01-02", toStr); err == nil {
			to = parsed
		}
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	entries, err := h.Service.ListEntries(r.Context(), actor.TenantID, from, to, limit, offset)
	if err != nil {
		h.Logger.Error("ListEntries: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"limit":   limit,
		"offset":  offset,
	})
}
