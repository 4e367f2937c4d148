package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ricirt/newsdigest/internal/domain"
)

// JobName labels metrics pushed to a Pushgateway.
const JobName = "newsdigest"

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	Runs               *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ItemsFetched       prometheus.Gauge
	ItemLookupFailures prometheus.Counter
	Deliveries         *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_runs_total",
			Help: "Digest runs by terminal state.",
		}, []string{"state"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "digest_run_duration_seconds",
			Help:    "Wall time of a digest run from store read to session close.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		ItemsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "digest_items_fetched",
			Help: "Items available to the most recent run after dropping failed lookups.",
		}),

		ItemLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digest_item_lookup_failures_total",
			Help: "Item lookups dropped because of transport or decoding errors.",
		}),

		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_deliveries_total",
			Help: "Per-recipient delivery outcomes.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.Runs,
		m.RunDuration,
		m.ItemsFetched,
		m.ItemLookupFailures,
		m.Deliveries,
	)

	return m
}

// ServiceHooks returns the metric callback functions expected by service.Hooks.
// Centralises the prometheus observation calls so the service stays import-free.
func (m *Metrics) ServiceHooks() (
	onRun func(domain.RunState, time.Duration),
	onItemsFetched func(int),
	onDelivery func(domain.DeliveryStatus),
) {
	onRun = func(state domain.RunState, d time.Duration) {
		m.Runs.WithLabelValues(string(state)).Inc()
		m.RunDuration.Observe(d.Seconds())
	}
	onItemsFetched = func(n int) {
		m.ItemsFetched.Set(float64(n))
	}
	onDelivery = func(status domain.DeliveryStatus) {
		m.Deliveries.WithLabelValues(string(status)).Inc()
	}
	return
}

// LookupFailedHook returns the callback for fetcher.WithLookupFailedHook.
func (m *Metrics) LookupFailedHook() func() {
	return m.ItemLookupFailures.Inc
}

// Push sends everything gathered by g to the Pushgateway at url. One-shot
// runs exit before any scrape could happen, so this is how their numbers
// reach Prometheus.
func Push(ctx context.Context, url string, g prometheus.Gatherer) error {
	if err := push.New(url, JobName).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
