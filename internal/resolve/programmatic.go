// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// ProgrammaticResolverName identifies internal search in evidence.
const ProgrammaticResolverName = "internal_search"

// ProgrammaticResolver searches the patient record with the target
// catalogue. The highest-scoring target wins; equal scores are logged and
// settled by catalogue order.
type ProgrammaticResolver struct {
	targets []Target
	policy  Policy
	log     *logrus.Logger
}

// NewProgrammaticResolver uses DefaultCatalogue.
func NewProgrammaticResolver(policy Policy, log *logrus.Logger) *ProgrammaticResolver {
	return NewProgrammaticResolverWith(DefaultCatalogue(), policy, log)
}

// NewProgrammaticResolverWith uses a custom catalogue.
func NewProgrammaticResolverWith(targets []Target, policy Policy, log *logrus.Logger) *ProgrammaticResolver {
	return &ProgrammaticResolver{targets: targets, policy: policy, log: logging.OrDiscard(log)}
}

// Name implements CriterionResolver.
func (r *ProgrammaticResolver) Name() string { return ProgrammaticResolverName }

// Select returns the target for criterion, or false when none matches.
func (r *ProgrammaticResolver) Select(criterion string) (Target, bool) {
	t, _, ok := r.selectTarget(criterion)
	return t, ok
}

// selectTarget also reports whether the best score was shared.
func (r *ProgrammaticResolver) selectTarget(criterion string) (Target, bool, bool) {
	best, bestScore := -1, 0
	var tied []string
	for i, t := range r.targets {
		s := t.Score(criterion)
		switch {
		case s == 0:
		case s > bestScore:
			best, bestScore = i, s
			tied = []string{t.Name}
		case s == bestScore:
			tied = append(tied, t.Name)
		}
	}
	if best < 0 {
		return Target{}, false, false
	}
	if len(tied) > 1 {
		r.log.WithFields(logrus.Fields{
			"criterion": criterion,
			"score":     bestScore,
			"targets":   tied,
			"target":    r.targets[best].Name,
		}).Warn("Search targets tied, using catalogue order")
	}
	return r.targets[best], len(tied) > 1, true
}

// labTargets returns every lab target the criterion names. A target whose
// keyword matches all sit inside a longer match of another target is
// dropped, so "creatinine clearance" does not also read serum creatinine.
func (r *ProgrammaticResolver) labTargets(criterion string) []Target {
	type hit struct {
		target Target
		spans  [][]int
	}
	var hits []hit
	for _, t := range r.targets {
		if len(t.analytes) == 0 {
			continue
		}
		if spans := t.spans(criterion); len(spans) > 0 {
			hits = append(hits, hit{target: t, spans: spans})
		}
	}

	inside := func(s []int, self int) bool {
		for j, other := range hits {
			if j == self {
				continue
			}
			for _, o := range other.spans {
				if o[0] <= s[0] && s[1] <= o[1] && o[1]-o[0] > s[1]-s[0] {
					return true
				}
			}
		}
		return false
	}

	var out []Target
	for i, h := range hits {
		covered := true
		for _, s := range h.spans {
			if !inside(s, i) {
				covered = false
				break
			}
		}
		if !covered {
			out = append(out, h.target)
		}
	}
	return out
}

// Resolve implements CriterionResolver. A criterion naming several lab
// targets is read against all of them. Any other tie between targets is
// ambiguous, so its finding is attached without changing the status.
func (r *ProgrammaticResolver) Resolve(_ context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment {
	if a.Status.Resolved() {
		return a
	}
	t, tied, ok := r.selectTarget(a.Criterion.Text)
	if !ok {
		return a
	}

	lookup, name := t.Lookup, t.Name
	if len(t.analytes) > 0 {
		if labs := r.labTargets(a.Criterion.Text); len(labs) > 1 {
			names := make([]string, len(labs))
			groups := make([][]analyte, len(labs))
			for i, l := range labs {
				names[i] = l.Name
				groups[i] = l.analytes
			}
			name = strings.Join(names, "+")
			lookup = labGroupLookup(name, groups)
			tied = false
		}
	}

	entry := r.log.WithFields(logrus.Fields{
		"criterion": a.Criterion.Text,
		"target":    name,
	})

	out, err := lookup(a.Criterion.Text, p)
	if err != nil {
		if !errors.Is(err, types.ErrMissingData) {
			entry.WithError(err).Warn("Search target lookup failed")
		} else {
			entry.WithError(err).Debug("No data for search target")
		}
		out = Outcome{}
	}
	out.Matched = true
	if tied {
		out.Proposed = types.StatusUnclear
	}

	next := r.policy.Apply(a, ProgrammaticResolverName, out)
	if next.Status != a.Status {
		entry.WithField("status", next.Status).Info("Criterion resolved by internal search")
	}
	return next
}
