// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genomic

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// RuleResolverName identifies the table-and-rules resolver in evidence.
const RuleResolverName = "genomic_rule"

// RuleResolver settles genomic criteria from the known-variant table and
// variant-type rules.
type RuleResolver struct {
	policy resolve.Policy
	interp Interpreter
	log    *logrus.Logger
}

// NewRuleResolver returns a resolver applying policy.
func NewRuleResolver(policy resolve.Policy, log *logrus.Logger) *RuleResolver {
	return &RuleResolver{
		policy: policy,
		interp: Interpreter{Classifier: RuleClassifier{}},
		log:    logging.OrDiscard(log),
	}
}

// Name implements resolve.CriterionResolver.
func (r *RuleResolver) Name() string { return RuleResolverName }

// Resolve implements resolve.CriterionResolver.
func (r *RuleResolver) Resolve(ctx context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment {
	if a.Status.Resolved() {
		return a
	}
	out := r.interp.Interpret(ctx, a.Criterion.Text, p.Mutations)
	next := r.policy.Apply(a, RuleResolverName, out)
	logResolution(r.log, RuleResolverName, a, next)
	return next
}

func logResolution(log *logrus.Logger, name string, before, after types.CriterionAssessment) {
	entry := log.WithFields(logrus.Fields{
		"resolver":  name,
		"criterion": before.Criterion.Text,
	})
	switch {
	case after.Status != before.Status:
		entry.WithField("status", after.Status).Info("Genomic criterion resolved")
	case after.SearchAttempted && after.Findings == nil:
		entry.Debug("No mutation data for genomic criterion")
	case after.SearchAttempted:
		entry.Debug("Genomic criterion remains unclear")
	}
}
