// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"
	"strconv"
	"strings"
)

type comparison int

const (
	cmpGE comparison = iota
	cmpGT
	cmpLE
	cmpLT
)

func (c comparison) String() string {
	return [...]string{">=", ">", "<=", "<"}[c]
}

func (c comparison) holds(value, limit float64) bool {
	switch c {
	case cmpGE:
		return value >= limit
	case cmpGT:
		return value > limit
	case cmpLE:
		return value <= limit
	}
	return value < limit
}

// threshold is a numeric limit parsed from criterion text.
type threshold struct {
	cmp   comparison
	value float64

	// unit is the normalized unit token following the number ("" if none).
	unit string

	// uln is set for limits expressed as a multiple of the upper limit of
	// normal; value is then the multiplier.
	uln bool
}

var comparisonPhrases = []struct {
	phrase string
	cmp    comparison
}{
	// Longer phrases first so "greater than or equal to" is not read as
	// "greater than".
	{"greater than or equal to", cmpGE},
	{"less than or equal to", cmpLE},
	{"no more than", cmpLE},
	{"not more than", cmpLE},
	{"no less than", cmpGE},
	{"not less than", cmpGE},
	{"not to exceed", cmpLE},
	{"not exceed", cmpLE},
	{"at least", cmpGE},
	{"at most", cmpLE},
	{"greater than", cmpGT},
	{"more than", cmpGT},
	{"higher than", cmpGT},
	{"less than", cmpLT},
	{"lower than", cmpLT},
	{"minimum of", cmpGE},
	{"maximum of", cmpLE},
	{"up to", cmpLE},
	{"above", cmpGT},
	{"below", cmpLT},
	{"exceeding", cmpGT},
	{"≥", cmpGE},
	{">=", cmpGE},
	{"=>", cmpGE},
	{"≤", cmpLE},
	{"<=", cmpLE},
	{"=<", cmpLE},
	{">", cmpGT},
	{"<", cmpLT},
}

var thresholdRe = func() *regexp.Regexp {
	alts := make([]string, len(comparisonPhrases))
	for i, c := range comparisonPhrases {
		alts[i] = regexp.QuoteMeta(c.phrase)
	}
	return regexp.MustCompile(`(?i)(` + strings.Join(alts, "|") + `)\s*(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)`)
}()

var ulnPrefix = regexp.MustCompile(`^(?:x|×|\*|times)?(?:the)?(?:institutional)?(?:uln|upperlimitofnormal|upperlimitsofnormal)`)

// parseThreshold returns the first comparison in text.
func parseThreshold(text string) (threshold, bool) {
	loc := thresholdRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return threshold{}, false
	}
	phrase := strings.ToLower(text[loc[2]:loc[3]])
	num, err := strconv.ParseFloat(strings.ReplaceAll(text[loc[4]:loc[5]], ",", ""), 64)
	if err != nil {
		return threshold{}, false
	}

	t := threshold{value: num}
	for _, c := range comparisonPhrases {
		if c.phrase == phrase {
			t.cmp = c.cmp
			break
		}
	}

	tail := compactUnit(text[loc[5]:])
	if ulnPrefix.MatchString(tail) {
		t.uln = true
		return t, true
	}
	t.unit = unitToken(tail)
	return t, true
}

// compactUnit lower-cases s, folds micro signs to "u", drops whitespace,
// and truncates to a short window after the number.
func compactUnit(s string) string {
	if len(s) > 48 {
		s = s[:48]
	}
	s = strings.NewReplacer("µ", "u", "μ", "u", "⁹", "^9", "³", "^3").Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), "")
}

// unitPrefixes maps compacted spellings to canonical unit tokens. Longest
// spellings come first.
var unitPrefixes = []struct{ prefix, unit string }{
	{"x10^9/l", "10^9/L"},
	{"×10^9/l", "10^9/L"},
	{"*10^9/l", "10^9/L"},
	{"10^9/l", "10^9/L"},
	{"x10^3/ul", "K/uL"},
	{"×10^3/ul", "K/uL"},
	{"10^3/ul", "K/uL"},
	{"k/ul", "K/uL"},
	{"k/mm^3", "K/uL"},
	{"k/mm3", "K/uL"},
	{"thou/ul", "K/uL"},
	{"cells/ul", "/uL"},
	{"cells/mm3", "/uL"},
	{"/ul", "/uL"},
	{"/mm^3", "/uL"},
	{"/mm3", "/uL"},
	{"mg/dl", "mg/dL"},
	{"g/dl", "g/dL"},
	{"g/l", "g/L"},
	{"mmol/l", "mmol/L"},
	{"umol/l", "umol/L"},
	{"ml/min", "mL/min"},
	{"u/l", "U/L"},
	{"iu/l", "U/L"},
	{"%", "%"},
	{"years", "years"},
	{"year", "years"},
}

func unitToken(compact string) string {
	for _, u := range unitPrefixes {
		if strings.HasPrefix(compact, u.prefix) {
			return u.unit
		}
	}
	return ""
}

// normalizeUnit maps a lab's reported unit onto the same tokens.
func normalizeUnit(unit string) string {
	return unitToken(compactUnit(unit))
}

// ecogRange is an inclusive range of acceptable ECOG scores.
type ecogRange struct{ lo, hi int }

var (
	ecogSpanRe = regexp.MustCompile(`(?i)(?:ecog|performance status|zubrod|\bps\b)[^0-5]{0,40}?([0-5])\s*(?:-|–|—|to|or|,)\s*([0-5])`)
	ecogOneRe  = regexp.MustCompile(`(?i)(?:ecog|performance status|zubrod|\bps\b)[^0-5]{0,40}?([0-5])\b`)
)

// parseECOGRange reads the acceptable range from criterion text.
func parseECOGRange(text string) (ecogRange, bool) {
	if m := ecogSpanRe.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if lo > hi {
			lo, hi = hi, lo
		}
		return ecogRange{lo, hi}, true
	}
	if t, ok := parseThreshold(text); ok && t.value >= 0 && t.value <= 5 && t.value == float64(int(t.value)) {
		v := int(t.value)
		switch t.cmp {
		case cmpLE:
			return ecogRange{0, v}, true
		case cmpLT:
			return ecogRange{0, v - 1}, v > 0
		case cmpGE:
			return ecogRange{v, 5}, true
		case cmpGT:
			return ecogRange{v + 1, 5}, v < 5
		}
	}
	if m := ecogOneRe.FindStringSubmatch(text); m != nil {
		v, _ := strconv.Atoi(m[1])
		return ecogRange{0, v}, true
	}
	return ecogRange{}, false
}

func (r ecogRange) contains(score int) bool {
	return score >= r.lo && score <= r.hi
}
