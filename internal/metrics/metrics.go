// Package metrics registers the Prometheus collectors for the
// similarity search pipeline's three stages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors for the pipeline.
type Metrics struct {
	StageDuration             *prometheus.HistogramVec
	StageCandidates           *prometheus.HistogramVec
	SearchesTotal             prometheus.Counter
	SearchErrorsTotal         *prometheus.CounterVec
	CandidateTimeoutsTotal    prometheus.Counter
	InsufficientEvidenceTotal prometheus.Counter
	RequestsTotal             *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for one process.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_search_stage_duration_seconds",
				Help:    "Wall-clock duration of each pipeline stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		StageCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_search_stage_candidates",
				Help:    "Candidate document count at each stage boundary.",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"stage"},
		),
		SearchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_searches_total",
				Help: "Total number of similarity searches that completed without a fatal error.",
			},
		),
		SearchErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_search_errors_total",
				Help: "Total number of fatal similarity search failures, by stage.",
			},
			[]string{"stage"},
		),
		CandidateTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_search_candidate_timeouts_total",
				Help: "Total number of Stage-2 candidates dropped for exceeding their deadline.",
			},
		),
		InsufficientEvidenceTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_search_insufficient_evidence_total",
				Help: "Total number of candidates dropped by the matcher's minimum-evidence gate.",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchd_http_requests_total",
				Help: "Total HTTP requests served by cmd/searchd, by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.StageDuration, m.StageCandidates, m.SearchesTotal,
		m.SearchErrorsTotal, m.CandidateTimeoutsTotal, m.InsufficientEvidenceTotal,
		m.RequestsTotal,
	)
	return m
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveStage records one stage's duration and candidate count.
func (m *Metrics) ObserveStage(stage string, durationSeconds float64, candidates int) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	m.StageCandidates.WithLabelValues(stage).Observe(float64(candidates))
}

// CandidateTimeout implements pipeline.StageMetrics.
func (m *Metrics) CandidateTimeout() {
	m.CandidateTimeoutsTotal.Inc()
}

// InsufficientEvidence implements pipeline.StageMetrics.
func (m *Metrics) InsufficientEvidence() {
	m.InsufficientEvidenceTotal.Inc()
}
