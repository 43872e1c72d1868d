// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for matching requests.
type PipelineMetrics struct {
	trialAnalysis *prometheus.CounterVec
	criteria      *prometheus.CounterVec
	suggestions   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	retrieval     prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline collectors with reg, or with
// the default registerer when reg is nil.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		trialAnalysis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialmatch",
			Subsystem: "pipeline",
			Name:      "trial_analysis_total",
			Help:      "Trial analyses by outcome",
		}, []string{"status"}),
		criteria: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialmatch",
			Subsystem: "pipeline",
			Name:      "criteria_total",
			Help:      "Criteria by final status and the stage that settled them",
		}, []string{"status", "stage"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialmatch",
			Subsystem: "pipeline",
			Name:      "suggestions_total",
			Help:      "Follow-up suggestions by category",
		}, []string{"category"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trialmatch",
			Subsystem: "llm",
			Name:      "call_seconds",
			Help:      "Latency of completion calls",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"backend", "outcome"}),
		retrieval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialmatch",
			Subsystem: "retrieval",
			Name:      "seconds",
			Help:      "Latency of embedding plus candidate ranking",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.trialAnalysis, m.criteria, m.suggestions, m.llmLatency, m.retrieval)
	return m
}

func (m *PipelineMetrics) ObserveTrial(status string) {
	if m == nil {
		return
	}
	m.trialAnalysis.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveCriterion(status, stage string) {
	if m == nil {
		return
	}
	m.criteria.WithLabelValues(status, stage).Inc()
}

func (m *PipelineMetrics) ObserveSuggestion(category string) {
	if m == nil {
		return
	}
	m.suggestions.WithLabelValues(category).Inc()
}

func (m *PipelineMetrics) ObserveLLMCall(backend, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(backend, outcome).Observe(seconds)
}

func (m *PipelineMetrics) ObserveRetrieval(seconds float64) {
	if m == nil {
		return
	}
	m.retrieval.Observe(seconds)
}
