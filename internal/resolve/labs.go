// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// measure groups analytes that share a canonical unit.
type measure int

const (
	measureCount      measure = iota // cells per uL
	measureHemoglobin                // g/dL
	measureCreatinine                // mg/dL
	measureBilirubin                 // mg/dL
	measureEnzyme                    // U/L
	measureRatio                     // unitless (INR)
	measureClearance                 // mL/min
)

// Confidence levels for lab findings.
const (
	confCompared     = 0.95
	confFlagULN      = 0.9
	confReferenceULN = 0.85
	confValueOnly    = 0.7
)

// analyte is one lab component a target can read.
type analyte struct {
	label   string
	aliases []string
	mention *regexp.Regexp
	measure measure

	// uln is a conventional upper limit of normal in the canonical unit,
	// used when the lab carries no flag.
	uln float64
}

func newAnalyte(label string, m measure, uln float64, aliases ...string) analyte {
	return analyte{
		label:   label,
		aliases: aliases,
		mention: phraseRegexp(aliases),
		measure: m,
		uln:     uln,
	}
}

// canonical converts value in unit to the measure's canonical unit.
// Unitless values are interpreted by magnitude.
func canonical(m measure, value float64, unit string) (float64, bool) {
	switch m {
	case measureCount:
		switch unit {
		case "K/uL", "10^9/L":
			return value * 1000, true
		case "/uL":
			return value, true
		case "":
			if value < 1000 {
				return value * 1000, true
			}
			return value, true
		}
	case measureHemoglobin:
		switch unit {
		case "g/dL":
			return value, true
		case "g/L":
			return value / 10, true
		case "mmol/L":
			return value * 1.611, true
		case "":
			if value > 25 {
				return value / 10, true
			}
			return value, true
		}
	case measureCreatinine:
		switch unit {
		case "mg/dL", "":
			return value, true
		case "umol/L":
			return value / 88.4, true
		}
	case measureBilirubin:
		switch unit {
		case "mg/dL", "":
			return value, true
		case "umol/L":
			return value / 17.1, true
		}
	case measureEnzyme:
		if unit == "U/L" || unit == "" {
			return value, true
		}
	case measureRatio:
		return value, true
	case measureClearance:
		if unit == "mL/min" || unit == "" {
			return value, true
		}
	}
	return 0, false
}

// labReading is the most recent result for one analyte.
type labReading struct {
	analyte analyte
	name    string
	date    string
	comp    types.LabComponent
}

func (r labReading) String() string {
	s := r.name + " " + strconv.FormatFloat(r.comp.Value, 'f', -1, 64)
	if r.comp.Unit != "" {
		s += " " + r.comp.Unit
	}
	if r.date != "" {
		s += " on " + r.date
	}
	return s
}

// latestReading finds the newest panel carrying any alias of a. Panels
// with equal dates resolve to the later one in the list; aliases within
// one panel resolve to the last name in sorted order.
func latestReading(a analyte, p types.PatientProfile) (labReading, bool) {
	var best labReading
	found := false
	for _, panel := range p.RecentLabs {
		names := make([]string, 0, len(panel.Components))
		for name := range panel.Components {
			if a.isComponent(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			if !found || panel.Date >= best.date {
				best = labReading{analyte: a, name: name, date: panel.Date, comp: panel.Components[name]}
				found = true
			}
		}
	}
	return best, found
}

func (a analyte) isComponent(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, alias := range a.aliases {
		if n == alias {
			return true
		}
	}
	return false
}

// labEvaluation is the verdict for one reading against a threshold.
type labEvaluation struct {
	status     types.Status
	confidence float64
	context    string
}

func evaluateReading(r labReading, t threshold, hasThreshold bool) labEvaluation {
	ev := labEvaluation{status: types.StatusUnclear, confidence: confValueOnly, context: r.String()}
	if r.comp.Flag != "" {
		ev.context += " (flag " + r.comp.Flag + ")"
	}
	if !hasThreshold {
		return ev
	}

	if t.uln {
		return evaluateULN(r, t, ev)
	}

	value, ok := canonical(r.analyte.measure, r.comp.Value, normalizeUnit(r.comp.Unit))
	if !ok {
		return ev
	}
	limit, ok := canonical(r.analyte.measure, t.value, t.unit)
	if !ok {
		return ev
	}
	ev.status = metIf(t.cmp.holds(value, limit))
	ev.confidence = confCompared
	return ev
}

// evaluateULN compares against a multiple of the upper limit of normal. A
// normal flag proves value <= ULN; otherwise the analyte's conventional ULN
// is used at reduced confidence since reference ranges are lab-specific.
func evaluateULN(r labReading, t threshold, ev labEvaluation) labEvaluation {
	flag := strings.ToUpper(strings.TrimSpace(r.comp.Flag))
	if (flag == "N" || flag == "NORMAL") && t.value >= 1 && (t.cmp == cmpLE || (t.cmp == cmpLT && t.value > 1)) {
		ev.status = types.StatusMet
		ev.confidence = confFlagULN
		return ev
	}
	if r.analyte.uln <= 0 {
		return ev
	}
	value, ok := canonical(r.analyte.measure, r.comp.Value, normalizeUnit(r.comp.Unit))
	if !ok {
		return ev
	}
	ev.status = metIf(t.cmp.holds(value, t.value*r.analyte.uln))
	ev.confidence = confReferenceULN
	ev.context += fmt.Sprintf(" (%.2g x reference ULN %g)", value/r.analyte.uln, r.analyte.uln)
	return ev
}

func metIf(ok bool) types.Status {
	if ok {
		return types.StatusMet
	}
	return types.StatusNotMet
}

// labLookup reads the analytes of one target. When the criterion names
// specific analytes only those are read. All readings must pass for MET;
// any failing reading decides NOT_MET.
func labLookup(field string, analytes ...analyte) LookupFunc {
	return labGroupLookup(field, [][]analyte{analytes})
}

// labGroupLookup reads several targets' analytes as one criterion. Each
// group narrows to the analytes the criterion names, if any.
func labGroupLookup(field string, groups [][]analyte) LookupFunc {
	return func(criterion string, p types.PatientProfile) (Outcome, error) {
		if len(p.RecentLabs) == 0 {
			return Outcome{}, fmt.Errorf("%w: no recent labs", types.ErrMissingData)
		}

		var wanted []analyte
		for _, group := range groups {
			var named []analyte
			for _, a := range group {
				if a.mention.MatchString(criterion) {
					named = append(named, a)
				}
			}
			if len(named) == 0 {
				named = group
			}
			wanted = append(wanted, named...)
		}

		var evals []labEvaluation
		var limits, missing []string
		for _, a := range wanted {
			r, ok := latestReading(a, p)
			if !ok {
				missing = append(missing, a.label)
				continue
			}
			t, hasThreshold := thresholdFor(a, criterion)
			ev := evaluateReading(r, t, hasThreshold)
			evals = append(evals, ev)
			if hasThreshold && ev.status.Resolved() {
				limits = append(limits, a.label+" "+describeThreshold(t))
			}
		}
		if len(evals) == 0 {
			return Outcome{}, fmt.Errorf("%w: no %s result", types.ErrMissingData, field)
		}

		status := types.StatusMet
		conf := 1.0
		contexts := make([]string, len(evals))
		for i, ev := range evals {
			contexts[i] = ev.context
			conf = min(conf, ev.confidence)
			switch {
			case ev.status == types.StatusNotMet:
				status = types.StatusNotMet
			case ev.status == types.StatusUnclear && status == types.StatusMet:
				status = types.StatusUnclear
			}
		}
		// An analyte without a result keeps the criterion from being MET.
		if len(missing) > 0 {
			contexts = append(contexts, "no "+strings.Join(missing, ", ")+" result")
			if status == types.StatusMet {
				status = types.StatusUnclear
			}
		}
		// A single failing reading decides NOT_MET at its own confidence.
		if status == types.StatusNotMet {
			for _, ev := range evals {
				if ev.status == types.StatusNotMet {
					conf = ev.confidence
					break
				}
			}
		}

		context := strings.Join(contexts, "; ")
		evidence := context
		if status.Resolved() && len(limits) > 0 {
			evidence = fmt.Sprintf("%s; requires %s", context, strings.Join(limits, ", "))
		}
		return Outcome{
			Finding: &types.InternalSearchFinding{
				Source:     "recent_labs/" + field,
				Context:    context,
				Confidence: conf,
			},
			Proposed: status,
			Evidence: evidence,
		}, nil
	}
}

// thresholdFor reads the limit that follows the analyte's mention, so a
// criterion listing several analytes pairs each with its own limit.
func thresholdFor(a analyte, criterion string) (threshold, bool) {
	if loc := a.mention.FindStringIndex(criterion); loc != nil {
		if t, ok := parseThreshold(criterion[loc[0]:]); ok {
			return t, true
		}
	}
	return parseThreshold(criterion)
}

func describeThreshold(t threshold) string {
	v := strconv.FormatFloat(t.value, 'f', -1, 64)
	switch {
	case t.uln:
		return fmt.Sprintf("%s %s x ULN", t.cmp, v)
	case t.unit != "":
		return fmt.Sprintf("%s %s %s", t.cmp, v, t.unit)
	}
	return fmt.Sprintf("%s %s", t.cmp, v)
}
