// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package deepdive runs a matching request end to end: retrieve candidate
// trials, analyze each one with the LLM in parallel, resolve the criteria
// the model left UNCLEAR, and draft follow-ups for what remains.
package deepdive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/trialmatch/internal/analyze"
	"github.com/pdiddy/trialmatch/internal/genomic"
	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/internal/suggest"
	"github.com/pdiddy/trialmatch/pkg/types"
)

const (
	defaultMaxConcurrent = 4
	defaultTimeout       = 90 * time.Second
	defaultTopN          = 5

	stageAnalysis = "analysis"
	stageGap      = "unresolved"
)

// Candidates retrieves trials for a query. *retrieve.Retriever implements it.
type Candidates interface {
	Retrieve(ctx context.Context, vector []float32, topN int) ([]types.Candidate, error)
	RetrieveText(ctx context.Context, query string, topN int) ([]types.Candidate, error)
}

// TrialAnalyzer classifies one trial's criteria. *analyze.Analyzer
// implements it.
type TrialAnalyzer interface {
	Analyze(ctx context.Context, trial types.TrialRecord, profile types.PatientProfile) (analyze.Analysis, error)
}

// Chains holds the resolver applied to UNCLEAR criteria of each kind.
type Chains struct {
	General resolve.CriterionResolver
	Genomic resolve.CriterionResolver
}

// NewChains builds the standard chains: genomic criteria go through the
// variant rules, the external predictor when configured, then internal
// search; general criteria go through internal search.
func NewChains(policy resolve.Policy, g types.GenomicConfig, log *logrus.Logger) Chains {
	internal := resolve.NewProgrammaticResolver(policy, log)
	genomicChain := resolve.Chain{genomic.NewRuleResolver(policy, log)}
	if vep := genomic.NewVEPResolver(g, policy, log); vep != nil {
		genomicChain = append(genomicChain, vep)
	}
	genomicChain = append(genomicChain, internal)
	return Chains{General: resolve.Chain{internal}, Genomic: genomicChain}
}

func (c Chains) forKind(k types.CriterionKind) resolve.CriterionResolver {
	if k == types.KindGenomic && c.Genomic != nil {
		return c.Genomic
	}
	return c.General
}

// Request is one matching request. QueryVector takes precedence over
// Query when both are set.
type Request struct {
	Query       string
	QueryVector []float32
	TopN        int
	Profile     types.PatientProfile
}

// Orchestrator wires the pipeline stages.
type Orchestrator struct {
	Candidates Candidates
	Analyzer   TrialAnalyzer
	Chains     Chains
	Suggester  *suggest.Engine

	// MaxConcurrent bounds in-flight analyses (default 4).
	MaxConcurrent int

	// Timeout bounds each analysis call independently (default 90s).
	Timeout time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.PipelineMetrics
}

// Run executes req. Embedding and retrieval failures abort the request;
// analysis failures are reported per trial and never cancel siblings. The
// report lists trials in retrieval order.
func (o *Orchestrator) Run(ctx context.Context, req Request) (types.BatchReport, error) {
	requestID := uuid.NewString()
	log := logging.OrDiscard(o.Logger).WithField("request_id", requestID)

	topN := req.TopN
	if topN == 0 {
		topN = defaultTopN
	}

	start := time.Now()
	var (
		candidates []types.Candidate
		err        error
	)
	if len(req.QueryVector) > 0 {
		candidates, err = o.Candidates.Retrieve(ctx, req.QueryVector, topN)
	} else {
		candidates, err = o.Candidates.RetrieveText(ctx, req.Query, topN)
	}
	if err != nil {
		log.WithError(err).Error("Candidate retrieval failed")
		return types.BatchReport{}, err
	}
	log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"duration":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Retrieved candidate trials")

	limit := o.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	// Each goroutine writes only its own slot; no sibling is cancelled when
	// one fails, so a plain Group is used rather than WithContext.
	reports := make([]types.DeepDiveReport, len(candidates))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range candidates {
		g.Go(func() error {
			reports[i] = o.processTrial(ctx, log, c, req.Profile)
			return nil
		})
	}
	_ = g.Wait()

	batch := types.BatchReport{
		RequestID:   requestID,
		Query:       req.Query,
		PatientID:   req.Profile.PatientID,
		GeneratedAt: time.Now().UTC(),
		Trials:      reports,
	}
	log.WithFields(logrus.Fields{
		"trials":   len(reports),
		"failed":   batch.Failed(),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Deep dive complete")
	return batch, nil
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o *Orchestrator) processTrial(ctx context.Context, log *logrus.Entry, c types.Candidate, profile types.PatientProfile) types.DeepDiveReport {
	log = log.WithField("trial_id", c.Record.ID)
	report := types.DeepDiveReport{
		TrialID: c.Record.ID,
		Title:   c.Record.Title,
		Rank:    c.Rank,
		Score:   c.Score,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout())
	start := time.Now()
	analysis, err := o.Analyzer.Analyze(callCtx, c.Record, profile)
	cancel()
	if err != nil {
		report.Status = types.ReportAnalysisFailed
		report.FailureReason = failureReason(err)
		o.Metrics.ObserveTrial(string(report.Status))
		log.WithError(err).WithField("duration", time.Since(start).Round(time.Millisecond).String()).
			Warn("Trial analysis failed")
		return report
	}

	report.Status = types.ReportCompleted
	report.Summary = analysis.Summary
	report.Verdict = analysis.Verdict
	o.fill(ctx, &report, analysis.Assessments, profile)
	o.Metrics.ObserveTrial(string(report.Status))

	log.WithFields(logrus.Fields{
		"met":       len(report.Met),
		"not_met":   len(report.NotMet),
		"clarified": len(report.ClarifiedItems),
		"gaps":      len(report.GapsWithContext) + len(report.GapsRequiringExternalData),
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Trial analyzed")
	return report
}

// fill resolves UNCLEAR assessments and places every assessment in
// exactly one bucket.
func (o *Orchestrator) fill(ctx context.Context, r *types.DeepDiveReport, assessments []types.CriterionAssessment, profile types.PatientProfile) {
	r.Met = []types.CriterionAssessment{}
	r.NotMet = []types.CriterionAssessment{}
	r.ClarifiedItems = []types.CriterionAssessment{}
	r.GapsWithContext = []types.CriterionAssessment{}
	r.GapsRequiringExternalData = []types.CriterionAssessment{}

	var gaps []types.CriterionAssessment
	for _, a := range assessments {
		switch a.Status {
		case types.StatusMet:
			r.Met = append(r.Met, a)
			o.Metrics.ObserveCriterion(string(a.Status), stageAnalysis)
			continue
		case types.StatusNotMet:
			r.NotMet = append(r.NotMet, a)
			o.Metrics.ObserveCriterion(string(a.Status), stageAnalysis)
			continue
		}

		if res := o.Chains.forKind(a.Criterion.Kind); res != nil {
			a = res.Resolve(ctx, a, profile)
		}
		switch {
		case a.Status.Resolved():
			r.ClarifiedItems = append(r.ClarifiedItems, a)
			o.Metrics.ObserveCriterion(string(a.Status), a.ResolvedBy)
		case a.Findings != nil:
			r.GapsWithContext = append(r.GapsWithContext, a)
			gaps = append(gaps, a)
			o.Metrics.ObserveCriterion(string(a.Status), stageGap)
		default:
			r.GapsRequiringExternalData = append(r.GapsRequiringExternalData, a)
			gaps = append(gaps, a)
			o.Metrics.ObserveCriterion(string(a.Status), stageGap)
		}
	}

	suggester := o.Suggester
	if suggester == nil {
		suggester = &suggest.Engine{Logger: o.Logger, Metrics: o.Metrics}
	}
	r.NextSteps = suggest.Prioritize(suggester.Suggest(gaps))
	if r.NextSteps == nil {
		r.NextSteps = []types.ActionSuggestion{}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, types.ErrTimeout):
		return fmt.Sprintf("LLM call timed out: %v", err)
	case errors.Is(err, types.ErrRateLimited):
		return fmt.Sprintf("LLM provider rate limited the call: %v", err)
	case errors.Is(err, types.ErrProvider):
		return fmt.Sprintf("LLM provider error: %v", err)
	case errors.Is(err, types.ErrParse):
		return fmt.Sprintf("model response did not follow the header protocol: %v", err)
	}
	return err.Error()
}
