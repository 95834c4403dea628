package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sync agent.
type Metrics struct {
	// Push channel metrics
	PushesReceived     *prometheus.CounterVec
	PushesDeduplicated prometheus.Counter
	PushesTransient    prometheus.Counter
	PushReconnects     prometheus.Counter

	// Reconciliation metrics
	ReconcilesTotal   *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram

	// Mutation metrics
	MutationsTotal *prometheus.CounterVec

	// Store metrics
	UnreadCount prometheus.Gauge
	FeedSize    prometheus.Gauge

	// Subscription metrics
	SubscriptionRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all Prometheus metrics.
func New(namespace string) *Metrics {
	m := &Metrics{
		PushesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pushes_received_total",
				Help:      "Total number of push messages received",
			},
			[]string{"type", "path"},
		),
		PushesDeduplicated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pushes_deduplicated_total",
				Help:      "Push messages dropped as near-duplicates of an existing record",
			},
		),
		PushesTransient: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pushes_transient_total",
				Help:      "Push messages classified as transient and never stored",
			},
		),
		PushReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_reconnects_total",
				Help:      "Reconnect attempts of the foreground push listener",
			},
		),
		ReconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciles_total",
				Help:      "Authoritative fetches by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of authoritative fetches",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Optimistic feed mutations by operation and confirmation result",
			},
			[]string{"op", "result"},
		),
		UnreadCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unread_count",
				Help:      "Current derived unread counter",
			},
		),
		FeedSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_size",
				Help:      "Current number of records in the feed",
			},
		),
		SubscriptionRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_requests_total",
				Help:      "Push subscription requests by outcome",
			},
			[]string{"outcome"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.PushesReceived,
		m.PushesDeduplicated,
		m.PushesTransient,
		m.PushReconnects,
		m.ReconcilesTotal,
		m.ReconcileDuration,
		m.MutationsTotal,
		m.UnreadCount,
		m.FeedSize,
		m.SubscriptionRequests,
	)

	return m
}

// Handler returns the exposition handler for the agent's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the given port. Blocks until the server
// exits.
func (m *Metrics) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
