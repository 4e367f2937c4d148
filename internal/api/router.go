package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/api/handler"
	apimw "github.com/ricirt/newsdigest/internal/api/middleware"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route.
func NewRouter(
	runs handler.RunController,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 10)) // no route takes a body
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	rh := handler.NewRunHandler(runs, logger)
	hh := handler.NewHealthHandler(runs.LastReport)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", rh.Trigger)
		r.Get("/runs/last", rh.Last)
	})

	return r
}
