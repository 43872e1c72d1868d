// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package suggest turns criteria that no automated stage could settle into
// categorized follow-up actions with drafted text.
package suggest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// rule is the keyword set for one category.
type rule struct {
	category types.SuggestionCategory
	re       *regexp.Regexp
}

func keywords(words ...string) *regexp.Regexp {
	alts := make([]string, len(words))
	for i, w := range words {
		alts[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(alts, "|") + `)(?:$|[^\pL\pN])`)
}

// rules are listed in precedence order: the first matching rule wins.
var rules = []rule{
	{types.CategoryLabOrder, keywords(
		"count", "counts", "level", "levels", "lab", "labs", "laboratory",
		"serum", "plasma", "platelet", "platelets", "hemoglobin", "haemoglobin",
		"creatinine", "clearance", "bilirubin", "anc", "neutrophil", "neutrophils",
		"wbc", "inr", "ast", "alt", "uln", "albumin", "potassium", "magnesium",
		"glucose", "hba1c", "lvef", "qtc",
	)},
	{types.CategoryChartReview, keywords(
		"ecog", "performance status", "history of", "prior", "previous",
		"previously", "diagnosis", "diagnosed", "stage", "metastases",
		"metastasis", "metastatic", "imaging", "pathology", "histologically",
		"cytologically", "biopsy", "medication", "medications", "surgery",
		"radiotherapy", "chemotherapy", "therapy", "treatment",
	)},
	{types.CategoryPatientMessage, keywords(
		"willing", "able to", "consent", "symptoms", "symptom", "pain",
		"pregnancy", "pregnant", "contraception", "breastfeeding",
		"childbearing", "lifestyle", "smoking", "smoker", "alcohol", "travel",
		"comply", "compliance", "caregiver",
	)},
}

// Categorize assigns the category for criterion text and reports the
// keyword that decided it. Genomic criteria are lab orders: the gap is a
// missing or unsummarized molecular test.
func Categorize(criterion types.EligibilityCriterion) (types.SuggestionCategory, string) {
	for _, r := range rules {
		if m := r.re.FindStringSubmatch(criterion.Text); m != nil {
			return r.category, strings.ToLower(m[1])
		}
	}
	if criterion.Kind == types.KindGenomic {
		return types.CategoryLabOrder, "genomic"
	}
	return types.CategoryTask, ""
}

// Engine drafts suggestions.
type Engine struct {
	Logger  *logrus.Logger
	Metrics *metrics.PipelineMetrics
}

// Suggest returns one suggestion per distinct UNCLEAR criterion, in input
// order. MET and NOT_MET assessments never produce a suggestion.
func (e *Engine) Suggest(assessments []types.CriterionAssessment) []types.ActionSuggestion {
	log := logging.OrDiscard(e.Logger)
	seen := make(map[string]bool)
	var out []types.ActionSuggestion
	for _, a := range assessments {
		if a.Status != types.StatusUnclear {
			continue
		}
		key := normalize(a.Criterion.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		s := draft(a)
		e.Metrics.ObserveSuggestion(string(s.Category))
		log.WithFields(logrus.Fields{
			"criterion": a.Criterion.Text,
			"category":  s.Category,
		}).Debug("Drafted follow-up")
		out = append(out, s)
	}
	return out
}

var (
	nonWordRe     = regexp.MustCompile(`[^\pL\pN<>=]+`)
	comparisonRep = strings.NewReplacer("≥", ">=", "≤", "<=", "=>", ">=", "=<", "<=")
)

// normalize folds case, punctuation, and comparison spellings so that
// restatements of one criterion share a key.
func normalize(text string) string {
	s := comparisonRep.Replace(strings.ToLower(text))
	s = nonWordRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func draft(a types.CriterionAssessment) types.ActionSuggestion {
	category, keyword := Categorize(a.Criterion)
	criterion := strings.TrimRight(strings.TrimSpace(a.Criterion.Text), ".")

	var text strings.Builder
	switch category {
	case types.CategoryLabOrder:
		if a.Criterion.Kind == types.KindGenomic && keyword == "genomic" {
			fmt.Fprintf(&text, "Order or retrieve molecular testing results to evaluate: %s.", criterion)
		} else {
			fmt.Fprintf(&text, "Order labs to evaluate: %s.", criterion)
		}
		if a.Findings != nil {
			fmt.Fprintf(&text, " Most recent on file: %s.", a.Findings.Context)
		}
	case types.CategoryChartReview:
		fmt.Fprintf(&text, "Review the chart for documentation of: %s.", criterion)
		if a.Findings != nil {
			fmt.Fprintf(&text, " Possible lead: %s.", a.Findings.Context)
		}
	case types.CategoryPatientMessage:
		fmt.Fprintf(&text, "Hello, as part of screening for a clinical study we need to confirm the following: %s. Could you let us know when you have a moment?", criterion)
	default:
		fmt.Fprintf(&text, "Follow up on eligibility criterion: %s.", criterion)
		if a.Findings != nil {
			fmt.Fprintf(&text, " Related record: %s.", a.Findings.Context)
		}
	}

	return types.ActionSuggestion{
		Criterion: criterion,
		Category:  category,
		DraftText: text.String(),
		Rationale: rationale(a, keyword),
	}
}

func rationale(a types.CriterionAssessment, keyword string) string {
	var parts []string
	switch {
	case !a.SearchAttempted:
		parts = append(parts, "no internal search target applies")
	case a.Findings == nil:
		parts = append(parts, "internal search found no relevant data")
	default:
		parts = append(parts, "internal search found context but could not decide")
	}
	if keyword != "" {
		parts = append(parts, fmt.Sprintf("categorized by %q", keyword))
	}
	return "Criterion remains UNCLEAR: " + strings.Join(parts, "; ")
}

var categoryRank = map[types.SuggestionCategory]int{
	types.CategoryLabOrder:       0,
	types.CategoryChartReview:    1,
	types.CategoryPatientMessage: 2,
	types.CategoryTask:           3,
}

// Prioritize orders suggestions lab orders first, then chart reviews,
// patient messages, and tasks. Order within a category is preserved.
func Prioritize(s []types.ActionSuggestion) []types.ActionSuggestion {
	out := make([]types.ActionSuggestion, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return categoryRank[out[i].Category] < categoryRank[out[j].Category]
	})
	return out
}
