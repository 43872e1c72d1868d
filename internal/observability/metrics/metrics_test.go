// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPipelineMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.ObserveTrial("completed")
	m.ObserveTrial("completed")
	m.ObserveTrial("analysis_failed")
	m.ObserveSuggestion("LAB_ORDER_SUGGESTION")
	m.ObserveCriterion("MET", "internal_search")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trialAnalysis.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trialAnalysis.WithLabelValues("analysis_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suggestions.WithLabelValues("LAB_ORDER_SUGGESTION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.criteria.WithLabelValues("MET", "internal_search")))
}

func TestPipelineMetricsHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.ObserveLLMCall("anthropic", "ok", 1.5)
	m.ObserveRetrieval(0.02)

	n, err := testutil.GatherAndCount(reg, "trialmatch_llm_call_seconds", "trialmatch_retrieval_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveTrial("completed")
	m.ObserveCriterion("MET", "analysis")
	m.ObserveSuggestion("TASK")
	m.ObserveLLMCall("bedrock", "timeout", 1)
	m.ObserveRetrieval(0.1)
}
