package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects engine counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FixturesAnalyzed prometheus.Counter
	EdgesEmitted     *prometheus.CounterVec
	MalformedEntries prometheus.Counter
	TicketResults    *prometheus.CounterVec
	AlertsSent       prometheus.Counter
	AnalysisDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FixturesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketedge_fixtures_analyzed_total",
			Help: "Fixtures run through the model pipeline",
		}),
		EdgesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketedge_edges_emitted_total",
				Help: "Positive edges produced, by market",
			},
			[]string{"market"},
		),
		MalformedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketedge_malformed_odds_entries_total",
			Help: "Bookmaker values dropped because the label or price did not parse",
		}),
		TicketResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketedge_ticket_results_total",
				Help: "Ticket searches, by result status",
			},
			[]string{"status"},
		),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketedge_alerts_sent_total",
			Help: "Edge alerts queued for delivery",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticketedge_analysis_duration_seconds",
			Help:    "Wall time of one fixture analysis",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	registry.MustRegister(
		m.FixturesAnalyzed,
		m.EdgesEmitted,
		m.MalformedEntries,
		m.TicketResults,
		m.AlertsSent,
		m.AnalysisDuration,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
