package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the storefront collectors. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	reconcileEvents  *prometheus.CounterVec
	checkoutOutcomes *prometheus.CounterVec
	searchDiscarded  prometheus.Counter
	uploadBytes      prometheus.Counter
	ledgerWrites     prometheus.Counter
	ledgerDropped    prometheus.Counter
}

// New creates a Metrics instance on its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconcileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_events_total",
			Help:      "Change-feed events applied to market product lists.",
		}, []string{"kind", "outcome"}),
		checkoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_outcomes_total",
			Help:      "Terminal checkout states.",
		}, []string{"state"}),
		searchDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_discarded_total",
			Help:      "Catalog search results dropped because a newer search superseded them.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Image bytes uploaded to object storage.",
		}),
		ledgerWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_written_total",
			Help:      "Checkout attempts written to the ledger.",
		}),
		ledgerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_dropped_total",
			Help:      "Checkout attempts dropped because the ledger buffer was full or the write failed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconcileEvents,
		m.checkoutOutcomes,
		m.searchDiscarded,
		m.uploadBytes,
		m.ledgerWrites,
		m.ledgerDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ReconcileEvent counts one applied feed event. kind is create, update or
// delete; outcome describes what happened to the list (inserted, replaced,
// removed, noop, ignored).
func (m *Metrics) ReconcileEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.reconcileEvents.WithLabelValues(kind, outcome).Inc()
}

// CheckoutOutcome counts a terminal checkout state.
func (m *Metrics) CheckoutOutcome(state string) {
	if m == nil {
		return
	}
	m.checkoutOutcomes.WithLabelValues(state).Inc()
}

// SearchDiscarded counts a superseded search result.
func (m *Metrics) SearchDiscarded() {
	if m == nil {
		return
	}
	m.searchDiscarded.Inc()
}

// UploadBytes adds n uploaded bytes.
func (m *Metrics) UploadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadBytes.Add(float64(n))
}

// LedgerWritten adds n rows written to the ledger.
func (m *Metrics) LedgerWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerWrites.Add(float64(n))
}

// LedgerDropped adds n rows the ledger could not persist.
func (m *Metrics) LedgerDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerDropped.Add(float64(n))
}
