package handler

import (
	"net/http"

	"github.com/ricirt/newsdigest/internal/service"
)

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	last func() (*service.Report, error)
}

// NewHealthHandler takes the source of the last run report; it may be nil.
func NewHealthHandler(last func() (*service.Report, error)) *HealthHandler {
	return &HealthHandler{last: last}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.last != nil {
		if report, err := h.last(); err == nil {
			body["last_run_state"] = string(report.State)
		}
	}
	respondJSON(w, http.StatusOK, body)
}
