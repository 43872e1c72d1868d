// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genomic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Intent is what a criterion asks of the gene.
type Intent string

const (
	IntentAny        Intent = "ANY_MUTATION"
	IntentPathogenic Intent = "PATHOGENIC"
	IntentActivating Intent = "ACTIVATING"
	IntentLOF        Intent = "LOSS_OF_FUNCTION"
	IntentResistance Intent = "RESISTANCE"
	IntentWildType   Intent = "WILD_TYPE"
)

// Query is the parsed form of a genomic criterion.
type Query struct {
	Genes []string

	// Variants are the normalized protein changes the criterion accepts
	// (e.g. "V600E", "G12", "EXON19DEL", "AMPLIFICATION"), in order of
	// appearance. Any one of them satisfies the criterion.
	Variants []string

	Intent Intent

	// Negated is set for exclusion phrasing ("no known", "without", ...).
	Negated bool
}

var intentPhrases = []struct {
	intent  Intent
	phrases []string
}{
	{IntentWildType, []string{"wild-type", "wild type", "wildtype"}},
	{IntentResistance, []string{"resistance", "resistant"}},
	{IntentLOF, []string{"loss-of-function", "loss of function", "inactivating", "truncating"}},
	{IntentActivating, []string{"activating", "sensitizing", "gain-of-function", "gain of function", "oncogenic"}},
	{IntentPathogenic, []string{"pathogenic", "deleterious", "likely pathogenic"}},
}

var negationPhrases = []string{
	"no known", "without", "absence of", "must not have", "no evidence of",
	"negative for", "does not harbor", "must not harbor",
}

var (
	variantRe        = regexp.MustCompile(`\b(?:p\.)?([ACDEFGHIKLMNPQRSTVWY]\d{1,4}(?:[ACDEFGHIKLMNPQRSTVWY*]|fs|del)?)\b`)
	threeLetterVarRe = regexp.MustCompile(`\bp\.([A-Z][a-z]{2}\d{1,4}(?:[A-Z][a-z]{2})?)`)
	amplificationRe  = regexp.MustCompile(`(?i)amplif`)
	codonOnlyRe      = regexp.MustCompile(`^[A-Z]\d+$`)
)

// variantListMissConfidence is below the default escalation threshold.
const variantListMissConfidence = 0.8

// ParseCriterion extracts genes, a specific variant, the intent, and the
// polarity from criterion text.
func ParseCriterion(text string) Query {
	q := Query{Genes: findGenes(text), Intent: IntentAny}
	lower := strings.ToLower(text)

	for _, ip := range intentPhrases {
		if containsAny(lower, ip.phrases) {
			q.Intent = ip.intent
			break
		}
	}
	q.Negated = containsAny(lower, negationPhrases)
	q.Variants = findVariants(text)
	return q
}

func findVariants(text string) []string {
	var out []string
	add := func(v string) {
		for _, seen := range out {
			if seen == v {
				return
			}
		}
		out = append(out, v)
	}

	for _, m := range exonRe.FindAllString(text, -1) {
		add(normalizeChange("", m))
	}
	for _, m := range threeLetterVarRe.FindAllStringSubmatch(text, -1) {
		add(normalizeChange("", m[1]))
	}
	for _, m := range variantRe.FindAllStringSubmatch(text, -1) {
		v := m[1]
		// A bare codon needs two digits so staging tokens like T3 or N1
		// are not read as variants.
		if codonOnlyRe.MatchString(v) && len(v) < 3 {
			continue
		}
		add(v)
	}
	if amplificationRe.MatchString(text) {
		add("AMPLIFICATION")
	}
	return out
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Interpreter compares a Query with the patient's mutation list.
type Interpreter struct {
	Classifier Classifier
}

type geneVerdict struct {
	status     types.Status
	confidence float64
	evidence   string
}

// Interpret evaluates text against mutations. The outcome is unmatched
// when the criterion names no gene, or names one without asking about its
// genotype (e.g. "Prior EGFR TKI"). An empty mutation list is treated as
// "not tested": the criterion is matched but no finding is produced.
func (in Interpreter) Interpret(ctx context.Context, text string, mutations []types.Mutation) resolve.Outcome {
	q := ParseCriterion(text)
	if len(q.Genes) == 0 {
		return resolve.Outcome{}
	}
	if len(q.Variants) == 0 && !hasGenomicKeyword(strings.ToLower(text)) {
		return resolve.Outcome{}
	}
	if len(mutations) == 0 {
		return resolve.Outcome{Matched: true, Proposed: types.StatusUnclear}
	}

	classifier := in.Classifier
	if classifier == nil {
		classifier = RuleClassifier{}
	}

	verdicts := make([]geneVerdict, 0, len(q.Genes))
	for _, gene := range q.Genes {
		verdicts = append(verdicts, in.evaluateGene(ctx, classifier, q, gene, mutations))
	}

	v := aggregate(verdicts, q.Intent == IntentWildType)
	if q.Negated {
		v.status = invert(v.status)
	}
	return resolve.Outcome{
		Matched: true,
		Finding: &types.InternalSearchFinding{
			Source:     "mutations/" + strings.Join(q.Genes, ","),
			Context:    v.evidence,
			Confidence: v.confidence,
		},
		Proposed: v.status,
		Evidence: v.evidence,
	}
}

func (in Interpreter) evaluateGene(ctx context.Context, c Classifier, q Query, gene string, mutations []types.Mutation) geneVerdict {
	var onGene []types.Mutation
	for _, m := range mutations {
		if canonicalGene(m.Gene) == gene {
			onGene = append(onGene, m)
		}
	}

	if len(onGene) == 0 {
		v := geneVerdict{
			status:     types.StatusNotMet,
			confidence: ruleConfidence(RuleNoVariant),
			evidence:   fmt.Sprintf("%s: no variant reported, classified %s by %s", gene, ClassWildType, RuleNoVariant),
		}
		if q.Intent == IntentWildType && len(q.Variants) == 0 {
			v.status = types.StatusMet
		}
		return v
	}

	if len(q.Variants) > 0 {
		return matchVariant(q, gene, onGene)
	}

	// Fold per-mutation results: for the wild-type intent a single damaging
	// variant decides NOT_MET, otherwise a single qualifying variant decides
	// MET. Uncertainty wins over the default.
	var best *geneVerdict
	for _, m := range onGene {
		class, rule := c.Classify(ctx, m)
		v := geneVerdict{
			status:     compare(q.Intent, class),
			confidence: ruleConfidence(rule),
			evidence:   fmt.Sprintf("%s %s (%s) classified %s by %s", gene, displayChange(m), m.VariantType, class, rule),
		}
		if q.Intent == IntentAny && class != ClassBenign {
			v.confidence = 0.95
		}
		best = pick(best, v, q.Intent == IntentWildType)
	}
	return *best
}

// decisive is the status that settles a fold on its own.
func decisive(all bool) types.Status {
	if all {
		return types.StatusNotMet
	}
	return types.StatusMet
}

func pick(cur *geneVerdict, next geneVerdict, all bool) *geneVerdict {
	rank := func(s types.Status) int {
		switch s {
		case decisive(all):
			return 2
		case types.StatusUnclear:
			return 1
		}
		return 0
	}
	if cur == nil || rank(next.status) > rank(cur.status) {
		return &next
	}
	return cur
}

// aggregate combines gene verdicts with OR semantics, or AND when all is
// set (wild-type criteria require every gene to be wild-type).
func aggregate(vs []geneVerdict, all bool) geneVerdict {
	var best *geneVerdict
	for _, v := range vs {
		best = pick(best, v, all)
	}
	if len(vs) > 1 && best.status != decisive(all) {
		evidence := make([]string, len(vs))
		conf := 1.0
		for i, v := range vs {
			evidence[i] = v.evidence
			if v.confidence < conf {
				conf = v.confidence
			}
		}
		best.evidence = strings.Join(evidence, "; ")
		best.confidence = conf
	}
	return *best
}

// matchVariant is MET when any requested variant is on the gene. A miss
// is definite only for a criterion naming a single variant; a list of
// alternatives may be partial, so the miss stays below escalation.
func matchVariant(q Query, gene string, onGene []types.Mutation) geneVerdict {
	var seen []string
	for _, m := range onGene {
		change := normalizeChange(gene, m.ProteinChange)
		for _, want := range q.Variants {
			hit := change == want ||
				strings.EqualFold(m.VariantType, want) ||
				(codonOnlyRe.MatchString(want) && strings.HasPrefix(change, want))
			if hit {
				return geneVerdict{
					status:     types.StatusMet,
					confidence: ruleConfidence(RuleKnownVariant),
					evidence:   fmt.Sprintf("%s %s matches requested %s", gene, displayChange(m), want),
				}
			}
		}
		seen = append(seen, displayChange(m))
	}
	conf := ruleConfidence(RuleVariantType)
	if len(q.Variants) > 1 {
		conf = variantListMissConfidence
	}
	return geneVerdict{
		status:     types.StatusNotMet,
		confidence: conf,
		evidence:   fmt.Sprintf("%s %s reported; requested %s not found", gene, strings.Join(seen, ", "), strings.Join(q.Variants, " or ")),
	}
}

// compare maps a classification onto an intent.
func compare(intent Intent, c Classification) types.Status {
	if c == ClassVUS {
		if intent == IntentAny {
			return types.StatusMet
		}
		return types.StatusUnclear
	}
	switch intent {
	case IntentAny:
		if c == ClassBenign {
			return types.StatusNotMet
		}
		return types.StatusMet
	case IntentActivating:
		return metIf(c == ClassActivating)
	case IntentResistance:
		return metIf(c == ClassResistance)
	case IntentLOF:
		return metIf(c == ClassLOF || c == ClassPathogenic)
	case IntentPathogenic:
		return metIf(c.damaging())
	case IntentWildType:
		return metIf(!c.damaging())
	}
	return types.StatusUnclear
}

func metIf(ok bool) types.Status {
	if ok {
		return types.StatusMet
	}
	return types.StatusNotMet
}

func invert(s types.Status) types.Status {
	switch s {
	case types.StatusMet:
		return types.StatusNotMet
	case types.StatusNotMet:
		return types.StatusMet
	}
	return s
}

func canonicalGene(g string) string {
	g = strings.ToUpper(strings.TrimSpace(g))
	if alias, ok := geneAliases[g]; ok {
		return alias
	}
	return g
}

func displayChange(m types.Mutation) string {
	if s := strings.TrimSpace(m.ProteinChange); s != "" {
		return strings.TrimPrefix(s, "p.")
	}
	return m.VariantType
}
