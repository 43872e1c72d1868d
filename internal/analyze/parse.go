// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// ResultKind tags a parse outcome.
type ResultKind int

const (
	// Malformed means no protocol header was recognized.
	Malformed ResultKind = iota
	// Parsed means at least one header was recognized.
	Parsed
)

func (k ResultKind) String() string {
	if k == Parsed {
		return "parsed"
	}
	return "malformed"
}

// section identifies one protocol header.
type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionVerdict
	sectionMet
	sectionNotMet
	sectionUnclear
)

// headerVariants maps normalized header text to its section. Lookups use
// the text before the first colon, upper-cased with single spaces.
var headerVariants = map[string]section{
	"SUMMARY":                        sectionSummary,
	"OVERALL SUMMARY":                sectionSummary,
	"NARRATIVE SUMMARY":              sectionSummary,
	"OVERALL ELIGIBILITY":            sectionVerdict,
	"OVERALL ELIGIBILITY ASSESSMENT": sectionVerdict,
	"ELIGIBILITY":                    sectionVerdict,
	"OVERALL VERDICT":                sectionVerdict,
	"VERDICT":                        sectionVerdict,
	"MET CRITERIA":                   sectionMet,
	"CRITERIA MET":                   sectionMet,
	"MET":                            sectionMet,
	"UNMET CRITERIA":                 sectionNotMet,
	"NOT MET CRITERIA":               sectionNotMet,
	"CRITERIA NOT MET":               sectionNotMet,
	"UNMET":                          sectionNotMet,
	"NOT MET":                        sectionNotMet,
	"UNCLEAR CRITERIA":               sectionUnclear,
	"UNCERTAIN CRITERIA":             sectionUnclear,
	"CRITERIA UNCLEAR":               sectionUnclear,
	"INDETERMINATE CRITERIA":         sectionUnclear,
	"UNCLEAR":                        sectionUnclear,
	"UNCERTAIN":                      sectionUnclear,
}

var (
	bulletRe     = regexp.MustCompile(`^\s*(?:[-•+–]|\*(?:\s|$)|\d+[.)](?:\s|$))\s*`)
	numberingRe  = regexp.MustCompile(`^\d+[.)]\s+`)
	countSuffix  = regexp.MustCompile(`\s*\(\d+\)$`)
	spaceRe      = regexp.MustCompile(`\s+`)
	delimiters   = []string{" — ", " – ", " - ", "—"}
	emptyBullets = map[string]bool{"none": true, "n/a": true, "na": true, "none identified": true, "none found": true}
	polarityTag  = regexp.MustCompile(`(?i)^(?:\[\s*(inclusion|exclusion|incl|excl)\s*\]|\(\s*(inclusion|exclusion|incl|excl)\s*\)|(inclusion|exclusion)\s*:)\s*`)
)

// Bullet is one criterion line split into its text and the model's
// reasoning. Polarity comes from a leading [INCLUSION] or [EXCLUSION] tag
// and is unknown without one.
type Bullet struct {
	Criterion string
	Reasoning string
	Polarity  types.Polarity
}

// Sections holds the content of each protocol header. Absent headers
// leave their field empty.
type Sections struct {
	Summary string
	Verdict string
	Met     []Bullet
	NotMet  []Bullet
	Unclear []Bullet
}

// Total returns the number of criteria across the three lists.
func (s Sections) Total() int {
	return len(s.Met) + len(s.NotMet) + len(s.Unclear)
}

// ParseResult is Parsed with Sections, or Malformed with only Raw set.
type ParseResult struct {
	Kind     ResultKind
	Sections Sections
	Raw      string
}

// Parse segments a model response into protocol sections. It is a pure
// function and never fails: input with no recognizable header yields a
// Malformed result.
//
// Each bullet lands in exactly one list. A criterion repeated anywhere in
// the response is kept once, in the first section it appeared in.
func Parse(raw string) ParseResult {
	p := parser{seen: map[string]bool{}}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		p.line(line)
	}
	p.flush()

	if !p.sawHeader {
		return ParseResult{Kind: Malformed, Raw: raw}
	}
	return ParseResult{
		Kind: Parsed,
		Sections: Sections{
			Summary: strings.Join(p.summary, " "),
			Verdict: strings.Join(p.verdict, " "),
			Met:     p.lists[sectionMet],
			NotMet:  p.lists[sectionNotMet],
			Unclear: p.lists[sectionUnclear],
		},
		Raw: raw,
	}
}

type parser struct {
	current   section
	sawHeader bool
	sawBullet bool

	// pending is the bullet being built; continuation lines extend it.
	pending *Bullet

	summary []string
	verdict []string
	lists   [sectionUnclear + 1][]Bullet
	seen    map[string]bool
}

func (p *parser) line(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	if sec, rest, ok := matchHeader(trimmed); ok {
		p.flush()
		p.current = sec
		p.sawHeader = true
		p.sawBullet = false
		if rest != "" {
			p.content(rest, false)
		}
		return
	}
	if p.current == sectionNone {
		return
	}

	if loc := bulletRe.FindStringIndex(trimmed); loc != nil && p.isList() {
		p.content(trimmed[loc[1]:], true)
		return
	}
	p.content(trimmed, false)
}

func (p *parser) isList() bool {
	return p.current == sectionMet || p.current == sectionNotMet || p.current == sectionUnclear
}

func (p *parser) content(text string, bullet bool) {
	switch p.current {
	case sectionSummary:
		p.summary = append(p.summary, text)
	case sectionVerdict:
		p.verdict = append(p.verdict, strings.Trim(text, " *_"))
	default:
		// Unbulleted lines start entries until the section uses bullet
		// markers; after that they continue the previous entry.
		if !bullet && p.sawBullet && p.pending != nil {
			p.pending.Reasoning = strings.TrimSpace(p.pending.Reasoning + " " + strings.TrimSpace(text))
			return
		}
		if bullet {
			p.sawBullet = true
		}
		p.flush()
		polarity, rest := cutPolarity(text)
		b := splitBullet(rest)
		b.Polarity = polarity
		p.pending = &b
	}
}

// flush files the pending bullet under the current section.
func (p *parser) flush() {
	if p.pending == nil {
		return
	}
	b := *p.pending
	p.pending = nil

	key := criterionKey(b.Criterion)
	if !hasWord(key) || emptyBullets[key] || p.seen[key] {
		return
	}
	p.seen[key] = true
	p.lists[p.current] = append(p.lists[p.current], b)
}

func matchHeader(line string) (section, string, bool) {
	if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "* ") {
		return sectionNone, "", false
	}
	s := strings.TrimLeft(line, "# ")
	s = numberingRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " *_")

	head, rest := s, ""
	if i := strings.Index(s, ":"); i >= 0 {
		head, rest = s[:i], s[i+1:]
	}
	head = strings.Trim(head, " *_")
	head = countSuffix.ReplaceAllString(head, "")
	head = strings.ToUpper(spaceRe.ReplaceAllString(head, " "))

	sec, ok := headerVariants[head]
	if !ok {
		return sectionNone, "", false
	}
	return sec, strings.TrimSpace(strings.Trim(rest, " *_")), true
}

// cutPolarity strips a leading polarity tag from a bullet.
func cutPolarity(text string) (types.Polarity, string) {
	m := polarityTag.FindStringSubmatch(text)
	if m == nil {
		return types.PolarityUnknown, text
	}
	tag := strings.ToLower(m[1] + m[2] + m[3])
	rest := text[len(m[0]):]
	if strings.HasPrefix(tag, "incl") {
		return types.PolarityInclusion, rest
	}
	return types.PolarityExclusion, rest
}

// splitBullet separates criterion from reasoning on the first em dash, en
// dash, or spaced hyphen, then falls back to the first colon.
func splitBullet(text string) Bullet {
	text = strings.TrimSpace(text)
	for _, d := range delimiters {
		if i := strings.Index(text, d); i > 0 {
			return newBullet(text[:i], text[i+len(d):])
		}
	}
	if i := strings.Index(text, ":"); i > 0 && i < len(text)-1 {
		return newBullet(text[:i], text[i+1:])
	}
	return newBullet(text, "")
}

func newBullet(criterion, reasoning string) Bullet {
	return Bullet{
		Criterion: strings.Trim(criterion, " *_`"),
		Reasoning: strings.Trim(reasoning, " *_`"),
	}
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func criterionKey(criterion string) string {
	s := strings.ToLower(spaceRe.ReplaceAllString(strings.TrimSpace(criterion), " "))
	return strings.TrimRight(s, ".;")
}
