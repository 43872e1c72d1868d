// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve attempts to settle criteria the model left UNCLEAR by
// searching the full patient record. Resolvers share one contract and are
// composed into per-kind chains by the orchestrator.
package resolve

import (
	"context"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// DefaultEscalationThreshold is the finding confidence at or above which an
// UNCLEAR criterion may become MET or NOT_MET.
const DefaultEscalationThreshold = 0.9

// CriterionResolver settles one criterion against the patient profile.
// Implementations never return an error: missing data is an outcome, not a
// failure. A MET or NOT_MET input is returned unchanged.
type CriterionResolver interface {
	Name() string
	Resolve(ctx context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment
}

// Policy decides when a finding is strong enough to change a status.
type Policy struct {
	EscalationThreshold float64
}

// DefaultPolicy returns the policy with DefaultEscalationThreshold.
func DefaultPolicy() Policy {
	return Policy{EscalationThreshold: DefaultEscalationThreshold}
}

// PolicyFrom builds a policy from configuration, defaulting a zero
// threshold.
func PolicyFrom(cfg types.ResolverConfig) Policy {
	if cfg.EscalationThreshold <= 0 {
		return DefaultPolicy()
	}
	return Policy{EscalationThreshold: cfg.EscalationThreshold}
}

// Outcome is what a resolver learned about one criterion.
type Outcome struct {
	// Matched is false when the resolver does not apply to the criterion.
	Matched bool

	// Finding is the supporting evidence; nil means searched, nothing found.
	Finding *types.InternalSearchFinding

	// Proposed is MET when the condition the criterion text describes
	// holds for the patient and NOT_MET when it does not; UNCLEAR when the
	// finding decides nothing. Apply maps it onto eligibility using the
	// criterion's polarity.
	Proposed types.Status

	// Evidence explains Proposed.
	Evidence string
}

// Apply folds o into a under p. Resolved inputs are returned unchanged.
// A finding replaces an earlier one only when it is at least as confident.
// The status changes only when the proposal is definite, the finding's
// confidence reaches the escalation threshold, and the criterion's
// polarity is known.
func (p Policy) Apply(a types.CriterionAssessment, resolver string, o Outcome) types.CriterionAssessment {
	if a.Status.Resolved() || !o.Matched {
		return a
	}
	a.SearchAttempted = true

	if o.Finding != nil && (a.Findings == nil || o.Finding.Confidence >= a.Findings.Confidence) {
		f := *o.Finding
		a.Findings = &f
	}

	if o.Finding == nil || !o.Proposed.Resolved() || o.Finding.Confidence < p.EscalationThreshold {
		return a
	}
	status, evidence, ok := eligibility(a.Criterion.Polarity, o)
	if !ok {
		return a
	}
	conf := o.Finding.Confidence
	a.Status = status
	a.Confidence = &conf
	a.ResolvedBy = resolver
	a.Evidence = evidence
	return a
}

// eligibility turns a proposal about the criterion's condition into an
// eligibility status. An exclusion whose condition holds is NOT_MET.
func eligibility(polarity types.Polarity, o Outcome) (types.Status, string, bool) {
	switch polarity {
	case types.PolarityInclusion:
		return o.Proposed, o.Evidence, true
	case types.PolarityExclusion:
		if o.Proposed == types.StatusMet {
			return types.StatusNotMet, o.Evidence + "; exclusion applies", true
		}
		return types.StatusMet, o.Evidence + "; exclusion does not apply", true
	}
	return o.Proposed, "", false
}

// Chain runs resolvers in order until the criterion is resolved.
type Chain []CriterionResolver

// Resolve implements CriterionResolver over the chain.
func (c Chain) Resolve(ctx context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment {
	for _, r := range c {
		if a.Status.Resolved() {
			break
		}
		a = r.Resolve(ctx, a, p)
	}
	return a
}

// Name implements CriterionResolver.
func (c Chain) Name() string {
	name := "chain"
	for i, r := range c {
		if i == 0 {
			name += ":"
		} else {
			name += ">"
		}
		name += r.Name()
	}
	return name
}
