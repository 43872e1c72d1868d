// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trialmatch/pkg/types"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := loadConfig(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, "corpus", c.Corpus.Dir)
	assert.Equal(t, types.EmbeddingHash, c.Embedding.Backend)
	assert.Equal(t, 24*time.Hour, c.Embedding.CacheTTL)
	assert.Equal(t, types.LLMAnthropic, c.LLM.Backend)
	assert.Equal(t, 90*time.Second, c.LLM.Timeout)
	assert.Equal(t, 4, c.LLM.MaxConcurrent)
	assert.Equal(t, 0.9, c.Resolver.EscalationThreshold)
	assert.Equal(t, -7.0, c.Genomic.PathogenicThreshold)
	assert.Equal(t, -2.0, c.Genomic.BenignThreshold)
	assert.Equal(t, 5, c.Match.TopN)
}

func TestLoadConfigFromYAML(t *testing.T) {
	v := newTestViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
llm:
  backend: openai
  timeout: 30s
  max_concurrent: 8
resolver:
  escalation_threshold: 0.95
genomic:
  vep_url: http://vep.local/score
`)))

	c, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.LLMOpenAI, c.LLM.Backend)
	assert.Equal(t, 30*time.Second, c.LLM.Timeout)
	assert.Equal(t, 8, c.LLM.MaxConcurrent)
	assert.Equal(t, 0.95, c.Resolver.EscalationThreshold)
	assert.Equal(t, "http://vep.local/score", c.Genomic.VEPURL)
	assert.Equal(t, -7.0, c.Genomic.PathogenicThreshold)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"threshold above one", "resolver.escalation_threshold", 1.5},
		{"inverted genomic thresholds", "genomic.pathogenic_threshold", -1.0},
		{"negative concurrency", "llm.max_concurrent", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tt.key, tt.val)
			_, err := loadConfig(v)
			assert.Error(t, err)
		})
	}
}

func sampleBatch() types.BatchReport {
	return types.BatchReport{
		RequestID:   "req-1",
		Query:       "KRAS lung",
		PatientID:   "P-1",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Trials: []types.DeepDiveReport{{
			TrialID: "NCT01",
			Rank:    1,
			Status:  types.ReportCompleted,
			NextSteps: []types.ActionSuggestion{{
				Criterion: "Active brain metastases",
				Category:  types.CategoryChartReview,
				DraftText: "Review imaging.",
			}},
		}},
	}
}

func TestWriteReport(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, writeReport(&js, sampleBatch(), "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "req-1", decoded["request_id"])

	var ym bytes.Buffer
	require.NoError(t, writeReport(&ym, sampleBatch(), "yaml"))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, "P-1", fromYAML["patient_id"])
	assert.Contains(t, ym.String(), "CHART_REVIEW_SUGGESTION")
}

func TestFormatCandidates(t *testing.T) {
	cands := []types.Candidate{{
		Record: types.TrialRecord{ID: "NCT01", Phase: "PHASE2", Title: strings.Repeat("long title ", 10)},
		Score:  0.8123,
		Rank:   1,
	}}

	var buf bytes.Buffer
	require.NoError(t, formatCandidates(&buf, cands, false))
	out := buf.String()
	assert.Contains(t, out, "NCT01")
	assert.Contains(t, out, "0.812")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1 candidates")
}
