// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Status is the eligibility verdict for a single criterion.
type Status string

const (
	StatusMet     Status = "MET"
	StatusNotMet  Status = "NOT_MET"
	StatusUnclear Status = "UNCLEAR"
)

// Resolved reports whether the status is a definite MET or NOT_MET.
func (s Status) Resolved() bool {
	return s == StatusMet || s == StatusNotMet
}

// CriterionKind selects which resolvers apply to a criterion.
type CriterionKind string

const (
	KindGeneral CriterionKind = "general"
	KindGenomic CriterionKind = "genomic"
)

// Polarity records which criteria list a criterion came from. Statuses
// always read as "compatible with enrollment": MET on an exclusion
// criterion means the excluding condition is absent.
type Polarity string

const (
	PolarityUnknown   Polarity = ""
	PolarityInclusion Polarity = "inclusion"
	PolarityExclusion Polarity = "exclusion"
)

// EligibilityCriterion is one inclusion or exclusion condition as extracted
// from the model response. It only exists inside a CriterionAssessment.
type EligibilityCriterion struct {
	Text string        `json:"text" yaml:"text"`
	Kind CriterionKind `json:"kind" yaml:"kind"`

	// Polarity is unknown when the criterion could not be placed in either
	// list; resolvers never change the status of such a criterion.
	Polarity Polarity `json:"polarity,omitempty" yaml:"polarity,omitempty"`
}

// InternalSearchFinding is supporting context found in the patient record
// for a criterion the model could not decide.
type InternalSearchFinding struct {
	// Source names the profile field and target that produced the finding
	// (e.g. "recent_labs/platelet").
	Source string `json:"source" yaml:"source"`

	// Context is the human-readable evidence, citing value, unit, and date.
	Context string `json:"context" yaml:"context"`

	// Confidence is between 0.0 and 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// CriterionAssessment is the verdict for one criterion with its reasoning
// and any evidence attached by later resolution stages.
type CriterionAssessment struct {
	Criterion EligibilityCriterion `json:"criterion" yaml:"criterion"`
	Status    Status               `json:"status" yaml:"status"`
	Reasoning string               `json:"reasoning" yaml:"reasoning"`

	// Confidence is set when a resolver assigns a numeric confidence.
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// SearchAttempted is true once an internal search target matched the
	// criterion. Together with a nil Findings it means "searched, nothing
	// relevant found"; false means no search was attempted.
	SearchAttempted bool `json:"search_attempted" yaml:"search_attempted"`

	// Findings holds the internal-search result. Serialized as
	// potential_findings; null when nothing was found.
	Findings *InternalSearchFinding `json:"potential_findings" yaml:"potential_findings"`

	// ResolvedBy names the resolver that changed the status, if any.
	ResolvedBy string `json:"resolved_by,omitempty" yaml:"resolved_by,omitempty"`

	// Evidence explains a resolver-driven status change.
	Evidence string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// SuggestionCategory classifies a follow-up action.
type SuggestionCategory string

const (
	CategoryLabOrder       SuggestionCategory = "LAB_ORDER_SUGGESTION"
	CategoryPatientMessage SuggestionCategory = "PATIENT_MESSAGE_SUGGESTION"
	CategoryChartReview    SuggestionCategory = "CHART_REVIEW_SUGGESTION"
	CategoryTask           SuggestionCategory = "TASK"
)

// Valid reports whether c is one of the four defined categories.
func (c SuggestionCategory) Valid() bool {
	switch c {
	case CategoryLabOrder, CategoryPatientMessage, CategoryChartReview, CategoryTask:
		return true
	}
	return false
}

// ActionSuggestion is a drafted follow-up for a criterion that no automated
// stage could resolve. The task-planning consumer persists these.
type ActionSuggestion struct {
	Criterion string             `json:"criterion" yaml:"criterion"`
	Category  SuggestionCategory `json:"category" yaml:"category"`
	DraftText string             `json:"draft_text" yaml:"draft_text"`
	Rationale string             `json:"rationale" yaml:"rationale"`
}

// ReportStatus is the outcome of processing one candidate trial.
type ReportStatus string

const (
	ReportCompleted      ReportStatus = "completed"
	ReportAnalysisFailed ReportStatus = "analysis_failed"
)

// DeepDiveReport aggregates the assessments for one trial after all
// resolution stages. Every extracted criterion appears in exactly one of
// Met, NotMet, ClarifiedItems, GapsWithContext, GapsRequiringExternalData.
type DeepDiveReport struct {
	TrialID string       `json:"trial_id" yaml:"trial_id"`
	Title   string       `json:"title,omitempty" yaml:"title,omitempty"`
	Rank    int          `json:"rank" yaml:"rank"`
	Score   float64      `json:"score" yaml:"score"`
	Status  ReportStatus `json:"status" yaml:"status"`

	// FailureReason is set when Status is analysis_failed.
	FailureReason string `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`

	Summary string `json:"summary" yaml:"summary"`
	Verdict string `json:"overall_eligibility,omitempty" yaml:"overall_eligibility,omitempty"`

	// Met and NotMet hold criteria decided by the model itself.
	Met    []CriterionAssessment `json:"met" yaml:"met"`
	NotMet []CriterionAssessment `json:"not_met" yaml:"not_met"`

	// ClarifiedItems were UNCLEAR after analysis and resolved by internal
	// or genomic search.
	ClarifiedItems []CriterionAssessment `json:"clarified_items" yaml:"clarified_items"`

	// GapsWithContext remain UNCLEAR but carry an internal-search finding.
	GapsWithContext []CriterionAssessment `json:"gaps_with_potential_context" yaml:"gaps_with_potential_context"`

	// GapsRequiringExternalData remain UNCLEAR with no finding.
	GapsRequiringExternalData []CriterionAssessment `json:"gaps_requiring_external_data" yaml:"gaps_requiring_external_data"`

	NextSteps []ActionSuggestion `json:"next_steps" yaml:"next_steps"`
}

// CriteriaCount returns the number of criteria across all buckets.
func (r DeepDiveReport) CriteriaCount() int {
	return len(r.Met) + len(r.NotMet) + len(r.ClarifiedItems) +
		len(r.GapsWithContext) + len(r.GapsRequiringExternalData)
}

// BatchReport is the result of one matching request: one entry per
// candidate trial, in retrieval order.
type BatchReport struct {
	RequestID   string           `json:"request_id" yaml:"request_id"`
	Query       string           `json:"query" yaml:"query"`
	PatientID   string           `json:"patient_id" yaml:"patient_id"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Trials      []DeepDiveReport `json:"trials" yaml:"trials"`
}

// Failed returns the number of trials whose analysis failed.
func (b BatchReport) Failed() int {
	n := 0
	for _, t := range b.Trials {
		if t.Status == ReportAnalysisFailed {
			n++
		}
	}
	return n
}
