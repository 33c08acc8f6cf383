package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the extraction engine.
type Metrics struct {
	Registry             *prometheus.Registry
	InteractionsTotal    *prometheus.CounterVec
	InteractionDuration  prometheus.Histogram
	RecordsTotal         prometheus.Counter
	FailuresTotal        *prometheus.CounterVec
	SessionOpensTotal    prometheus.Counter
	SessionRecyclesTotal prometheus.Counter
	RacesTotal           *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	interactions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_interactions_total",
			Help: "Total remote interactions attempted against the results widget.",
		},
		[]string{"op"},
	)
	interactionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractor_interaction_duration_seconds",
			Help:    "Latency of retried remote interactions, including retries.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_records_total",
			Help: "Total result records extracted across all races.",
		},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_failures_total",
			Help: "Total contained failures by class.",
		},
		[]string{"class"},
	)
	sessionOpens := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_session_opens_total",
			Help: "Total automation sessions opened.",
		},
	)
	sessionRecycles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_session_recycles_total",
			Help: "Total session recycles performed to bound resource growth.",
		},
	)
	races := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_races_total",
			Help: "Total races processed by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(interactions, interactionDuration, records, failures, sessionOpens, sessionRecycles, races)

	return &Metrics{
		Registry:             registry,
		InteractionsTotal:    interactions,
		InteractionDuration:  interactionDuration,
		RecordsTotal:         records,
		FailuresTotal:        failures,
		SessionOpensTotal:    sessionOpens,
		SessionRecyclesTotal: sessionRecycles,
		RacesTotal:           races,
	}
}

// TimeInteraction counts one retried interaction by operation name and
// returns a closure observing its total duration, retries included.
func (m *Metrics) TimeInteraction(op string) func() {
	if m == nil {
		return func() {}
	}
	m.InteractionsTotal.WithLabelValues(op).Inc()
	start := time.Now()
	return func() {
		m.InteractionDuration.Observe(time.Since(start).Seconds())
	}
}

// IncRecords increments the extracted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncFailure counts a contained failure by class.
func (m *Metrics) IncFailure(class string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(class).Inc()
}

// IncSessionOpen counts an automation session open.
func (m *Metrics) IncSessionOpen() {
	if m == nil {
		return
	}
	m.SessionOpensTotal.Inc()
}

// IncSessionRecycle counts a session recycle.
func (m *Metrics) IncSessionRecycle() {
	if m == nil {
		return
	}
	m.SessionRecyclesTotal.Inc()
}

// IncRace counts a processed race by outcome.
func (m *Metrics) IncRace(outcome string) {
	if m == nil {
		return
	}
	m.RacesTotal.WithLabelValues(outcome).Inc()
}
