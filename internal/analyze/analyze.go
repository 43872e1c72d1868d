// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze asks the LLM to compare one trial's eligibility criteria
// with a patient profile and turns the header-delimited answer into
// per-criterion assessments.
package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/genomic"
	"github.com/pdiddy/trialmatch/internal/llm"
	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Analysis is the parsed verdict for one trial.
type Analysis struct {
	Summary     string
	Verdict     string
	Assessments []types.CriterionAssessment
}

// Count returns the number of assessments with status s.
func (a Analysis) Count(s types.Status) int {
	n := 0
	for _, as := range a.Assessments {
		if as.Status == s {
			n++
		}
	}
	return n
}

// Analyzer drives one completion per trial.
type Analyzer struct {
	LLM llm.Completer

	// Kind tags each criterion; nil uses genomic.DetectKind.
	Kind func(text string) types.CriterionKind

	Logger *logrus.Logger
}

// Analyze renders the prompt, calls the model, and parses the response.
// LLM failures wrap types.ErrLLMInvocation; an unrecognizable response
// wraps types.ErrParse. Both are specific to this trial.
func (a *Analyzer) Analyze(ctx context.Context, trial types.TrialRecord, profile types.PatientProfile) (Analysis, error) {
	log := logging.OrDiscard(a.Logger).WithField("trial_id", trial.ID)

	prompt, err := RenderPrompt(trial, profile)
	if err != nil {
		return Analysis{}, err
	}

	start := time.Now()
	raw, err := a.LLM.Complete(ctx, prompt)
	if err != nil {
		return Analysis{}, llm.Classify(err)
	}

	result := Parse(raw)
	if result.Kind == Malformed {
		log.WithField("response_chars", len(raw)).Warn("model response has no protocol headers")
		return Analysis{}, fmt.Errorf("trial %s: %w", trial.ID, types.ErrParse)
	}

	analysis := a.assessments(trial, result.Sections)
	log.WithFields(logrus.Fields{
		"duration": time.Since(start).Round(time.Millisecond).String(),
		"met":      len(result.Sections.Met),
		"not_met":  len(result.Sections.NotMet),
		"unclear":  len(result.Sections.Unclear),
	}).Debug("analyzed trial")
	return analysis, nil
}

func (a *Analyzer) assessments(trial types.TrialRecord, s Sections) Analysis {
	kind := a.Kind
	if kind == nil {
		kind = genomic.DetectKind
	}

	out := Analysis{
		Summary:     s.Summary,
		Verdict:     s.Verdict,
		Assessments: make([]types.CriterionAssessment, 0, s.Total()),
	}
	add := func(bullets []Bullet, status types.Status) {
		for _, b := range bullets {
			polarity := b.Polarity
			if polarity == types.PolarityUnknown {
				polarity = PolarityOf(trial, b.Criterion)
			}
			out.Assessments = append(out.Assessments, types.CriterionAssessment{
				Criterion: types.EligibilityCriterion{Text: b.Criterion, Kind: kind(b.Criterion), Polarity: polarity},
				Status:    status,
				Reasoning: b.Reasoning,
			})
		}
	}
	add(s.Met, types.StatusMet)
	add(s.NotMet, types.StatusNotMet)
	add(s.Unclear, types.StatusUnclear)
	return out
}
