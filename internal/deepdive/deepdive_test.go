// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package deepdive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trialmatch/internal/analyze"
	"github.com/pdiddy/trialmatch/internal/corpus"
	"github.com/pdiddy/trialmatch/internal/embed"
	"github.com/pdiddy/trialmatch/internal/llm"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/internal/retrieve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

type fixedCandidates struct {
	cands []types.Candidate
	err   error
}

func (f fixedCandidates) Retrieve(context.Context, []float32, int) ([]types.Candidate, error) {
	return f.cands, f.err
}

func (f fixedCandidates) RetrieveText(context.Context, string, int) ([]types.Candidate, error) {
	return f.cands, f.err
}

func candidates(ids ...string) []types.Candidate {
	out := make([]types.Candidate, len(ids))
	for i, id := range ids {
		out[i] = types.Candidate{
			Record: types.TrialRecord{
				ID:            id,
				Title:         "Trial " + id,
				InclusionText: "- Age 18 years or older\n- Platelet count ≥ 100,000/µL\n- Requires KRAS mutation",
				ExclusionText: "- Active brain metastases\n- Concurrent use of strong CYP3A4 inhibitors",
			},
			Rank:   i + 1,
			Score:  1 - float64(i)/10,
		}
	}
	return out
}

const response = `SUMMARY:
Strong candidate pending CNS imaging.
OVERALL ELIGIBILITY: Possibly eligible
MET CRITERIA:
- Age 18 years or older — 61 years old
UNMET CRITERIA:
- None
UNCLEAR CRITERIA:
- Platelet count ≥ 100,000/µL — labs not summarized
- Requires KRAS mutation — genomic report not summarized
- Active brain metastases — no imaging documented`

func profile() types.PatientProfile {
	return types.PatientProfile{
		PatientID:    "P-7",
		Demographics: types.Demographics{Age: 61, Sex: "Male"},
		Diagnosis:    types.Diagnosis{Primary: "Non-small cell lung cancer", Stage: "IV"},
		RecentLabs: []types.LabPanel{{
			Name:       "CBC",
			Date:       "2024-07-25",
			Components: map[string]types.LabComponent{"Platelet": {Value: 180, Unit: "K/uL"}},
		}},
		Notes: []types.ClinicalNote{{
			Date: "2024-07-20",
			Text: "MRI brain ordered to evaluate possible intracranial lesions.",
		}},
		Mutations: []types.Mutation{{Gene: "KRAS", VariantType: "Missense_Mutation", ProteinChange: "p.G12C"}},
	}
}

func newOrchestrator(c Candidates, complete llm.CompleterFunc) *Orchestrator {
	return &Orchestrator{
		Candidates: c,
		Analyzer:   &analyze.Analyzer{LLM: complete},
		Chains:     NewChains(resolve.DefaultPolicy(), types.GenomicConfig{}, nil),
		Timeout:    time.Second,
	}
}

func TestRun_Buckets(t *testing.T) {
	o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
		func(context.Context, string) (string, error) { return response, nil })

	batch, err := o.Run(context.Background(), Request{Query: "KRAS lung", Profile: profile()})
	require.NoError(t, err)
	require.Len(t, batch.Trials, 1)
	assert.NotEmpty(t, batch.RequestID)
	assert.Equal(t, "P-7", batch.PatientID)

	r := batch.Trials[0]
	assert.Equal(t, types.ReportCompleted, r.Status)
	assert.Equal(t, "Possibly eligible", r.Verdict)
	assert.Equal(t, 4, r.CriteriaCount())

	require.Len(t, r.Met, 1)
	assert.Equal(t, "Age 18 years or older", r.Met[0].Criterion.Text)
	assert.Empty(t, r.NotMet)

	require.Len(t, r.ClarifiedItems, 2)
	byText := map[string]types.CriterionAssessment{}
	for _, a := range r.ClarifiedItems {
		byText[a.Criterion.Text] = a
	}
	platelet := byText["Platelet count ≥ 100,000/µL"]
	assert.Equal(t, types.StatusMet, platelet.Status)
	assert.Equal(t, resolve.ProgrammaticResolverName, platelet.ResolvedBy)
	kras := byText["Requires KRAS mutation"]
	assert.Equal(t, types.StatusMet, kras.Status)
	assert.Equal(t, types.KindGenomic, kras.Criterion.Kind)
	assert.Equal(t, "genomic_rule", kras.ResolvedBy)

	require.Len(t, r.GapsWithContext, 1)
	assert.Equal(t, "Active brain metastases", r.GapsWithContext[0].Criterion.Text)
	assert.Contains(t, r.GapsWithContext[0].Findings.Context, "intracranial lesions")
	assert.Empty(t, r.GapsRequiringExternalData)

	require.Len(t, r.NextSteps, 1)
	assert.Equal(t, "Active brain metastases", r.NextSteps[0].Criterion)
}

func TestRun_ExclusionClarifiedAsNotMet(t *testing.T) {
	const resp = `SUMMARY:
Medication review pending.
UNCLEAR CRITERIA:
- [EXCLUSION] Concurrent use of strong CYP3A4 inhibitors — medication list not reviewed`
	p := profile()
	p.CurrentMedications = []types.Medication{{Name: "Ketoconazole", Dosage: "200 mg"}}

	o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
		func(context.Context, string) (string, error) { return resp, nil })
	batch, err := o.Run(context.Background(), Request{Query: "q", Profile: p})
	require.NoError(t, err)

	r := batch.Trials[0]
	require.Len(t, r.ClarifiedItems, 1)
	got := r.ClarifiedItems[0]
	assert.Equal(t, types.PolarityExclusion, got.Criterion.Polarity)
	assert.Equal(t, types.StatusNotMet, got.Status)
	assert.Contains(t, got.Evidence, "Ketoconazole")
	assert.Contains(t, got.Evidence, "exclusion applies")
}

func TestRun_BucketsArePartition(t *testing.T) {
	responses := []string{
		response,
		"SUMMARY: nothing\nUNCLEAR CRITERIA:\n- ECOG 0-1\n- Hepatitis B negative\n- Prior EGFR TKI",
		"MET CRITERIA:\n- Stage IV NSCLC\nUNMET CRITERIA:\n- Age under 18\n- Pregnant or breastfeeding",
	}
	for i, resp := range responses {
		t.Run(fmt.Sprintf("response_%d", i), func(t *testing.T) {
			o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
				func(context.Context, string) (string, error) { return resp, nil })
			batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
			require.NoError(t, err)
			r := batch.Trials[0]

			total := analyze.Parse(resp).Sections.Total()
			assert.Equal(t, total, r.CriteriaCount())
			for _, a := range r.ClarifiedItems {
				assert.True(t, a.Status.Resolved())
				assert.NotEmpty(t, a.ResolvedBy)
			}
			for _, a := range append(r.GapsWithContext, r.GapsRequiringExternalData...) {
				assert.Equal(t, types.StatusUnclear, a.Status)
			}
			for _, a := range r.GapsWithContext {
				assert.NotNil(t, a.Findings)
			}
			for _, a := range r.GapsRequiringExternalData {
				assert.Nil(t, a.Findings)
			}
		})
	}
}

func TestRun_TimeoutIsIsolated(t *testing.T) {
	o := newOrchestrator(fixedCandidates{cands: candidates("NCT01", "NCT02", "NCT03")},
		func(ctx context.Context, prompt string) (string, error) {
			if strings.Contains(prompt, "NCT02") {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return response, nil
		})
	o.Timeout = 50 * time.Millisecond

	start := time.Now()
	batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, batch.Trials, 3)
	for i, id := range []string{"NCT01", "NCT02", "NCT03"} {
		assert.Equal(t, id, batch.Trials[i].TrialID)
		assert.Equal(t, i+1, batch.Trials[i].Rank)
	}
	assert.Equal(t, types.ReportCompleted, batch.Trials[0].Status)
	assert.Equal(t, types.ReportAnalysisFailed, batch.Trials[1].Status)
	assert.Contains(t, batch.Trials[1].FailureReason, "timed out")
	assert.Zero(t, batch.Trials[1].CriteriaCount())
	assert.Equal(t, types.ReportCompleted, batch.Trials[2].Status)
	assert.Equal(t, 1, batch.Failed())
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	o := newOrchestrator(fixedCandidates{cands: candidates("A1", "A2", "A3", "A4", "A5", "A6")},
		func(context.Context, string) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return response, nil
		})
	o.MaxConcurrent = 2

	batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
	require.NoError(t, err)
	assert.Len(t, batch.Trials, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_FailureReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", llm.RateLimitedError(errors.New("429")), "rate limited"},
		{"provider", errors.New("upstream exploded"), "provider error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
				func(context.Context, string) (string, error) { return "", tt.err })
			batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
			require.NoError(t, err)
			assert.Equal(t, types.ReportAnalysisFailed, batch.Trials[0].Status)
			assert.Contains(t, batch.Trials[0].FailureReason, tt.want)
		})
	}

	o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
		func(context.Context, string) (string, error) { return "I cannot help with that.", nil })
	batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
	require.NoError(t, err)
	assert.Contains(t, batch.Trials[0].FailureReason, "header protocol")
}

func TestRun_RetrievalErrorAborts(t *testing.T) {
	var calls int32
	o := newOrchestrator(fixedCandidates{err: fmt.Errorf("index unavailable: %w", types.ErrRetrieval)},
		func(context.Context, string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return response, nil
		})
	_, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
	assert.ErrorIs(t, err, types.ErrRetrieval)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

type memIndex struct {
	entries []corpus.Entry
	records map[string]types.TrialRecord
}

func (m memIndex) Entries(context.Context) ([]corpus.Entry, error) { return m.entries, nil }

func (m memIndex) Get(_ context.Context, id string) (types.TrialRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return types.TrialRecord{}, types.ErrNotFound
	}
	return r, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("model offline: %w", types.ErrEmbedding)
}

func TestRun_WithRetriever(t *testing.T) {
	ctx := context.Background()
	emb := embed.NewHashEmbedder(64)
	idx := memIndex{records: map[string]types.TrialRecord{}}
	for _, rec := range []types.TrialRecord{
		{ID: "NCT-KRAS", InclusionText: "KRAS G12C mutant non-small cell lung cancer"},
		{ID: "NCT-BRCA", InclusionText: "BRCA1 germline ovarian cancer"},
	} {
		vec, err := emb.Embed(ctx, rec.EligibilityText())
		require.NoError(t, err)
		idx.entries = append(idx.entries, corpus.Entry{TrialID: rec.ID, Vector: vec})
		idx.records[rec.ID] = rec
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)
	o := newOrchestrator(&retrieve.Retriever{Index: idx, Embedder: emb},
		func(context.Context, string) (string, error) { return response, nil })
	o.Metrics = m

	batch, err := o.Run(ctx, Request{Query: "KRAS G12C lung cancer", TopN: 1, Profile: profile()})
	require.NoError(t, err)
	require.Len(t, batch.Trials, 1)
	assert.Equal(t, "NCT-KRAS", batch.Trials[0].TrialID)
	n, err := testutil.GatherAndCount(reg, "trialmatch_pipeline_trial_analysis_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o.Candidates = &retrieve.Retriever{Index: idx, Embedder: failingEmbedder{}}
	_, err = o.Run(ctx, Request{Query: "anything", Profile: profile()})
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Name() string { return "mock" }

func (m *mockResolver) Resolve(ctx context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment {
	args := m.Called(a.Criterion.Text)
	return args.Get(0).(types.CriterionAssessment)
}

func TestRun_ChainsByKind(t *testing.T) {
	general := &mockResolver{}
	genomicRes := &mockResolver{}
	conf := 0.95

	general.On("Resolve", "Platelet count ≥ 100,000/µL").Return(types.CriterionAssessment{
		Criterion:  types.EligibilityCriterion{Text: "Platelet count ≥ 100,000/µL", Kind: types.KindGeneral},
		Status:     types.StatusMet,
		Confidence: &conf,
		ResolvedBy: "mock",
	}).Once()
	general.On("Resolve", "Active brain metastases").Return(types.CriterionAssessment{
		Criterion: types.EligibilityCriterion{Text: "Active brain metastases", Kind: types.KindGeneral},
		Status:    types.StatusUnclear,
	}).Once()
	genomicRes.On("Resolve", "Requires KRAS mutation").Return(types.CriterionAssessment{
		Criterion: types.EligibilityCriterion{Text: "Requires KRAS mutation", Kind: types.KindGenomic},
		Status:    types.StatusUnclear,
	}).Once()

	o := newOrchestrator(fixedCandidates{cands: candidates("NCT01")},
		func(context.Context, string) (string, error) { return response, nil })
	o.Chains = Chains{General: general, Genomic: genomicRes}

	batch, err := o.Run(context.Background(), Request{Query: "q", Profile: profile()})
	require.NoError(t, err)
	general.AssertExpectations(t)
	genomicRes.AssertExpectations(t)

	r := batch.Trials[0]
	assert.Len(t, r.ClarifiedItems, 1)
	assert.Len(t, r.GapsRequiringExternalData, 2)
	assert.Len(t, r.NextSteps, 2)
}

func TestNewChains_VEPOptional(t *testing.T) {
	without := NewChains(resolve.DefaultPolicy(), types.GenomicConfig{}, nil)
	assert.Len(t, without.Genomic.(resolve.Chain), 2)
	assert.Len(t, without.General.(resolve.Chain), 1)

	with := NewChains(resolve.DefaultPolicy(), types.GenomicConfig{
		VEPURL:              "http://vep.invalid/score",
		PathogenicThreshold: -7,
		BenignThreshold:     -2,
	}, nil)
	assert.Len(t, with.Genomic.(resolve.Chain), 3)
}
