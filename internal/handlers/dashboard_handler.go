package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/orizonpaybr/gateway-api-sub000/internal/services"
)

// DashboardHandler serves the cached read-side aggregates.
type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary returns aggregate totals for a period
// @Summary Dashboard summary
// @Description Settled deposit/withdrawal/fee totals for the period (defaults to the last 30 days)
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (RFC 3339)"
// @Param to query string false "End date (RFC 3339)"
// @Success 200 {object} services.DashboardSummary
// @Failure 400 {object} services.ErrorResponse
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid from date", http.StatusBadRequest, nil)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid to date", http.StatusBadRequest, nil)
			return
		}
		to = parsed
	}

	summary, err := h.dashboard.Summary(r.Context(), from, to)
	if err != nil {
		services.SendErrorResponse(w, "Failed to load dashboard summary", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
