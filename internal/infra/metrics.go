package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry. It
// implements service.Recorder and worker.RelayRecorder.
type Metrics struct {
	registry *prometheus.Registry

	fulfillments *prometheus.CounterVec
	attempts     prometheus.Histogram
	transfers    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	relayed      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "fulfillments_total",
			Help:      "Fulfillment calls by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "fulfillment_attempts",
			Help:      "Plan/commit attempts used per fulfillment call.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "transfers_total",
			Help:      "Transfer calls by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "commit_retries_total",
			Help:      "Atomic units retried after losing a race on a ledger row.",
		}, []string{"operation"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "audit_events_relayed_total",
			Help:      "Audit events handed to the sink, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.fulfillments, m.attempts, m.transfers, m.retries, m.relayed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveFulfillment(outcome string, attempts int) {
	m.fulfillments.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveTransfer(outcome string) { m.transfers.WithLabelValues(outcome).Inc() }

func (m *Metrics) ObserveRetry(op string) { m.retries.WithLabelValues(op).Inc() }

// ObserveRelay counts n events with the given result (published, failed, dead_lettered).
func (m *Metrics) ObserveRelay(result string, n int) {
	m.relayed.WithLabelValues(result).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
