// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the trialmatch pipeline:
// trial records from the corpus, the patient profile handed in by the
// caller, per-criterion assessments, follow-up suggestions, and the
// per-trial deep-dive report.
package types

import "strings"

// TrialRecord holds the indexed metadata and free-text sections of a
// clinical trial. Records are immutable once indexed.
type TrialRecord struct {
	// ID is the registry identifier (e.g. "NCT04567890").
	ID string `json:"id" yaml:"id"`

	// Title is the official or brief trial title.
	Title string `json:"title" yaml:"title"`

	// Status is the recruitment status (e.g. "RECRUITING").
	Status string `json:"status" yaml:"status"`

	// Phase is the trial phase (e.g. "PHASE2").
	Phase string `json:"phase" yaml:"phase"`

	// InclusionText is the raw inclusion-criteria section.
	InclusionText string `json:"inclusion_text" yaml:"inclusion_text"`

	// ExclusionText is the raw exclusion-criteria section.
	ExclusionText string `json:"exclusion_text" yaml:"exclusion_text"`

	// DescriptionText is the brief summary or detailed description.
	DescriptionText string `json:"description_text,omitempty" yaml:"description_text,omitempty"`
}

// EligibilityText returns the text that is embedded and indexed for
// retrieval: inclusion followed by exclusion criteria.
func (t TrialRecord) EligibilityText() string {
	var b strings.Builder
	if s := strings.TrimSpace(t.InclusionText); s != "" {
		b.WriteString("Inclusion Criteria:\n")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(t.ExclusionText); s != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Exclusion Criteria:\n")
		b.WriteString(s)
	}
	return b.String()
}

// Candidate is a trial returned by retrieval together with its similarity
// score and 1-based rank.
type Candidate struct {
	Record TrialRecord `json:"record" yaml:"record"`
	Score  float64     `json:"score" yaml:"score"`
	Rank   int         `json:"rank" yaml:"rank"`
}
