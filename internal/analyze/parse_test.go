// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func criteria(bs []Bullet) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Criterion
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    ResultKind
		summary string
		verdict string
		met     []string
		notMet  []string
		unclear []string
	}{
		{
			name: "canonical protocol",
			input: `SUMMARY:
Patient is a 54-year-old woman.
OVERALL ELIGIBILITY: Possibly eligible
MET CRITERIA:
- Age >= 18 — patient is 54
- Histologically confirmed breast cancer — diagnosis on file
UNMET CRITERIA:
- None
UNCLEAR CRITERIA:
- ECOG performance status 0-1 — not documented
  no notes mention functional status
- Platelet count >= 100,000/uL: no recent CBC`,
			kind:    Parsed,
			summary: "Patient is a 54-year-old woman.",
			verdict: "Possibly eligible",
			met:     []string{"Age >= 18", "Histologically confirmed breast cancer"},
			notMet:  []string{},
			unclear: []string{"ECOG performance status 0-1", "Platelet count >= 100,000/uL"},
		},
		{
			name: "markdown decoration and near-variant headers",
			input: `## Summary
Good candidate.
**Overall Eligibility:** Likely eligible
**MET CRITERIA:**
* Age ≥ 18 – adult
1. Measurable disease - RECIST lesion present
### Unmet Criteria (1)
- Prior CDK4/6 inhibitor — received palbociclib
**Unclear:**
• Adequate renal function — no creatinine`,
			kind:    Parsed,
			summary: "Good candidate.",
			verdict: "Likely eligible",
			met:     []string{"Age ≥ 18", "Measurable disease"},
			notMet:  []string{"Prior CDK4/6 inhibitor"},
			unclear: []string{"Adequate renal function"},
		},
		{
			name: "duplicates keep first section",
			input: `MET CRITERIA:
- Age >= 18 — 54
UNCLEAR CRITERIA:
- Age >= 18 — unsure
- age  >= 18. — duplicate with different spacing
- Pregnancy — unknown`,
			kind:    Parsed,
			met:     []string{"Age >= 18"},
			notMet:  []string{},
			unclear: []string{"Pregnancy"},
		},
		{
			name: "unbulleted entries and content on header line",
			input: `Here is my analysis:

MET CRITERIA:
Age >= 18 — patient is 54
Female — documented
UNCLEAR CRITERIA: ECOG 0-1 — not documented
---`,
			kind:    Parsed,
			met:     []string{"Age >= 18", "Female"},
			notMet:  []string{},
			unclear: []string{"ECOG 0-1"},
		},
		{
			name:    "absent sections are empty",
			input:   "SUMMARY:\nNothing decisive.",
			kind:    Parsed,
			summary: "Nothing decisive.",
			met:     []string{},
			notMet:  []string{},
			unclear: []string{},
		},
		{
			name:  "no headers is malformed",
			input: "I'm sorry, I can't evaluate this patient.",
			kind:  Malformed,
		},
		{
			name:  "empty input is malformed",
			input: "",
			kind:  Malformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			require.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.input, got.Raw)
			if tt.kind == Malformed {
				assert.Zero(t, got.Sections.Total())
				return
			}
			assert.Equal(t, tt.summary, got.Sections.Summary)
			assert.Equal(t, tt.verdict, got.Sections.Verdict)
			assert.Equal(t, tt.met, criteria(got.Sections.Met))
			assert.Equal(t, tt.notMet, criteria(got.Sections.NotMet))
			assert.Equal(t, tt.unclear, criteria(got.Sections.Unclear))
		})
	}
}

func TestParseReasoningContinuation(t *testing.T) {
	got := Parse("UNCLEAR CRITERIA:\n- ECOG 0-1 — not documented\n  no notes mention functional status\n- INR ≤ 1.5")
	require.Len(t, got.Sections.Unclear, 2)
	assert.Equal(t, "not documented no notes mention functional status", got.Sections.Unclear[0].Reasoning)
	assert.Equal(t, "INR ≤ 1.5", got.Sections.Unclear[1].Criterion)
	assert.Empty(t, got.Sections.Unclear[1].Reasoning)
}

var (
	testHeaders = map[section][]string{
		sectionMet:     {"MET CRITERIA", "Criteria Met", "met criteria"},
		sectionNotMet:  {"UNMET CRITERIA", "Not Met Criteria", "UNMET"},
		sectionUnclear: {"UNCLEAR CRITERIA", "Uncertain Criteria", "unclear"},
	}
	testBullets = []string{"- ", "* ", "• ", "1. ", "2) "}
	testDelims  = []string{" — ", " – ", " - ", ": "}
)

func decorateHeader(rng *rand.Rand, h string) string {
	switch rng.Intn(4) {
	case 0:
		return h + ":"
	case 1:
		return "**" + h + ":**"
	case 2:
		return "## " + h
	default:
		return "  " + h + " :  "
	}
}

// Generated responses conforming to the protocol parse to exactly the
// bullets written, each in its own section, and parsing is repeatable.
func TestParseProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	order := []section{sectionMet, sectionNotMet, sectionUnclear}

	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		want := map[section][]string{}
		total := 0
		fmt.Fprintf(&b, "%s\nSome narrative.\n", decorateHeader(rng, "SUMMARY"))

		for _, sec := range rng.Perm(3) {
			s := order[sec]
			if rng.Intn(5) == 0 {
				continue
			}
			hs := testHeaders[s]
			fmt.Fprintln(&b, decorateHeader(rng, hs[rng.Intn(len(hs))]))
			for n := rng.Intn(6); n > 0; n-- {
				total++
				crit := fmt.Sprintf("Criterion %d requires value", total)
				fmt.Fprintf(&b, "%s%s%sreason %d\n",
					testBullets[rng.Intn(len(testBullets))], crit,
					testDelims[rng.Intn(len(testDelims))], total)
				if rng.Intn(3) == 0 {
					fmt.Fprintln(&b, "   continued explanation")
				}
				want[s] = append(want[s], crit)
			}
		}

		input := b.String()
		got := Parse(input)
		require.Equal(t, Parsed, got.Kind, input)
		assert.Equal(t, total, got.Sections.Total(), input)
		assert.Equal(t, len(want[sectionMet]), len(got.Sections.Met), input)
		assert.Equal(t, len(want[sectionNotMet]), len(got.Sections.NotMet), input)
		assert.Equal(t, len(want[sectionUnclear]), len(got.Sections.Unclear), input)
		if len(want[sectionMet]) > 0 {
			assert.Equal(t, want[sectionMet], criteria(got.Sections.Met))
		}
		if len(want[sectionUnclear]) > 0 {
			assert.Equal(t, want[sectionUnclear], criteria(got.Sections.Unclear))
		}

		seen := map[string]int{}
		for _, l := range [][]Bullet{got.Sections.Met, got.Sections.NotMet, got.Sections.Unclear} {
			for _, bl := range l {
				seen[bl.Criterion]++
			}
		}
		for c, n := range seen {
			assert.Equal(t, 1, n, "criterion %q appears %d times", c, n)
		}

		assert.Equal(t, got, Parse(input), "parse must be deterministic")
	}
}

func TestParseNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []rune("MET UNCLEAR:—–-*•#\n 1.)abcxyz")
	for i := 0; i < 500; i++ {
		n := rng.Intn(200)
		r := make([]rune, n)
		for j := range r {
			r[j] = alphabet[rng.Intn(len(alphabet))]
		}
		assert.NotPanics(t, func() { Parse(string(r)) })
	}
}
