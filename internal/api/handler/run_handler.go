package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/api/middleware"
	"github.com/ricirt/newsdigest/internal/service"
)

// RunController starts digest runs and reports on the last one.
type RunController interface {
	Trigger() error
	LastReport() (*service.Report, error)
}

// RunHandler exposes manual runs over HTTP.
type RunHandler struct {
	runs   RunController
	logger *zap.Logger
}

func NewRunHandler(runs RunController, logger *zap.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger}
}

// Trigger handles POST /api/v1/runs
//
// @Summary  Start a digest run outside the schedule
// @Tags     runs
// @Produce  json
// @Success  202  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/runs [post]
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.Trigger(); err != nil {
		mapError(w, err)
		return
	}
	h.logger.Info("manual digest run accepted",
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())))
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Last handles GET /api/v1/runs/last
//
// @Summary  Report of the most recently finished run
// @Tags     runs
// @Produce  json
// @Success  200  {object}  service.Report
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/runs/last [get]
func (h *RunHandler) Last(w http.ResponseWriter, r *http.Request) {
	report, err := h.runs.LastReport()
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
