// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"regexp"
	"strings"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// minTermOverlap is the share of a criterion's terms one section must
// contain when the criterion was paraphrased rather than copied.
const minTermOverlap = 0.8

var termRe = regexp.MustCompile(`[\pL\pN]+`)

// PolarityOf finds the criteria list of trial that criterion came from.
// Verbatim text decides first, then term overlap. A criterion that fits
// both lists, or neither, has unknown polarity.
func PolarityOf(trial types.TrialRecord, criterion string) types.Polarity {
	key := strings.Join(terms(criterion), " ")
	if key == "" {
		return types.PolarityUnknown
	}
	incl := strings.Join(terms(trial.InclusionText), " ")
	excl := strings.Join(terms(trial.ExclusionText), " ")

	inIncl, inExcl := containsPhrase(incl, key), containsPhrase(excl, key)
	switch {
	case inIncl && !inExcl:
		return types.PolarityInclusion
	case inExcl && !inIncl:
		return types.PolarityExclusion
	case inIncl && inExcl:
		return types.PolarityUnknown
	}

	ci, ce := overlap(criterion, trial.InclusionText), overlap(criterion, trial.ExclusionText)
	switch {
	case ci >= minTermOverlap && ci > ce:
		return types.PolarityInclusion
	case ce >= minTermOverlap && ce > ci:
		return types.PolarityExclusion
	}
	return types.PolarityUnknown
}

func terms(s string) []string {
	return termRe.FindAllString(strings.ToLower(s), -1)
}

// containsPhrase matches key on term boundaries within text.
func containsPhrase(text, key string) bool {
	return strings.Contains(" "+text+" ", " "+key+" ")
}

// overlap is the share of criterion's distinct terms found in section.
func overlap(criterion, section string) float64 {
	have := map[string]bool{}
	for _, t := range terms(section) {
		have[t] = true
	}
	want := map[string]bool{}
	for _, t := range terms(criterion) {
		want[t] = true
	}
	if len(want) == 0 {
		return 0
	}
	hits := 0
	for t := range want {
		if have[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
