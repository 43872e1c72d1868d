// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"
	"strings"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// LookupFunc reads the profile for one criterion. The returned Outcome
// needs no Matched flag; the resolver sets it. Errors wrapping
// types.ErrMissingData mean the profile has nothing to offer.
type LookupFunc func(criterion string, p types.PatientProfile) (Outcome, error)

// Target is one entry of the search catalogue.
type Target struct {
	// Name identifies the target in logs (e.g. "platelet").
	Name string

	// Field is the profile field the lookup reads.
	Field string

	// Priority breaks the scoring in favour of more specific targets.
	Priority int

	Keywords []string
	Lookup   LookupFunc

	patterns []*regexp.Regexp

	// analytes is set for lab targets so several of them can be read
	// together.
	analytes []analyte
}

// NewTarget compiles the keyword patterns. Keywords match
// case-insensitively on word boundaries.
func NewTarget(name, field string, priority int, keywords []string, lookup LookupFunc) Target {
	t := Target{
		Name:     name,
		Field:    field,
		Priority: priority,
		Keywords: keywords,
		Lookup:   lookup,
	}
	for _, kw := range keywords {
		t.patterns = append(t.patterns, phraseRegexp([]string{kw}))
	}
	return t
}

// labTarget builds a target reading the given lab analytes.
func labTarget(name string, priority int, keywords []string, analytes ...analyte) Target {
	t := NewTarget(name, name, priority, keywords, labLookup(name, analytes...))
	t.analytes = analytes
	return t
}

// spans returns the byte ranges of every keyword match in criterion.
func (t Target) spans(criterion string) [][]int {
	var out [][]int
	for _, re := range t.patterns {
		out = append(out, re.FindAllStringIndex(criterion, -1)...)
	}
	return out
}

// Score is matched keywords x 10 + Priority, or 0 when no keyword
// matches.
func (t Target) Score(criterion string) int {
	n := 0
	for _, re := range t.patterns {
		if re.MatchString(criterion) {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n*10 + t.Priority
}

// phraseRegexp matches any of phrases as whole words, case-insensitively.
func phraseRegexp(phrases []string) *regexp.Regexp {
	alts := make([]string, len(phrases))
	for i, p := range phrases {
		alts[i] = regexp.QuoteMeta(strings.ToLower(p))
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(?:` + strings.Join(alts, "|") + `)(?:$|[^\pL\pN])`)
}
