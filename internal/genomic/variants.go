// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genomic

import (
	"context"
	"regexp"
	"strings"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// Classification is the predicted functional effect of a variant.
type Classification string

const (
	ClassActivating Classification = "PREDICTED_ACTIVATING"
	ClassResistance Classification = "PREDICTED_RESISTANCE"
	ClassPathogenic Classification = "PREDICTED_PATHOGENIC"
	ClassLOF        Classification = "PREDICTED_LOF"
	ClassVUS        Classification = "PREDICTED_VUS"
	ClassBenign     Classification = "PREDICTED_BENIGN"
	ClassWildType   Classification = "WILD_TYPE"
)

// Rule names recorded in evidence strings.
const (
	RuleKnownVariant = "known-variant table"
	RuleVariantType  = "variant-type rule"
	RuleNoVariant    = "no variant on gene"
	RuleExternalVEP  = "external VEP"
)

// knownVariants keys are GENE:CHANGE with the change normalized by
// normalizeChange.
var knownVariants = map[string]Classification{
	"BRAF:V600E": ClassActivating, "BRAF:V600K": ClassActivating,
	"BRAF:V600D": ClassActivating, "BRAF:V600R": ClassActivating,

	"KRAS:G12C": ClassActivating, "KRAS:G12D": ClassActivating,
	"KRAS:G12V": ClassActivating, "KRAS:G12A": ClassActivating,
	"KRAS:G12R": ClassActivating, "KRAS:G13D": ClassActivating,
	"KRAS:Q61H": ClassActivating,

	"NRAS:Q61K": ClassActivating, "NRAS:Q61R": ClassActivating,
	"NRAS:Q61L": ClassActivating, "NRAS:G12D": ClassActivating,

	"EGFR:L858R": ClassActivating, "EGFR:EXON19DEL": ClassActivating,
	"EGFR:L861Q": ClassActivating, "EGFR:G719S": ClassActivating,
	"EGFR:EXON20INS": ClassActivating,
	"EGFR:T790M": ClassResistance, "EGFR:C797S": ClassResistance,

	"PIK3CA:H1047R": ClassActivating, "PIK3CA:E545K": ClassActivating,
	"PIK3CA:E542K": ClassActivating,

	"IDH1:R132H": ClassActivating, "IDH1:R132C": ClassActivating,
	"IDH2:R140Q": ClassActivating, "IDH2:R172K": ClassActivating,

	"ERBB2:AMPLIFICATION": ClassActivating,
	"MET:EXON14SKIPPING":  ClassActivating,
	"KIT:D816V":           ClassActivating,

	"ESR1:D538G": ClassResistance, "ESR1:Y537S": ClassResistance,
	"ALK:L1196M": ClassResistance,

	"TP53:R175H": ClassPathogenic, "TP53:R248Q": ClassPathogenic,
	"TP53:R248W": ClassPathogenic, "TP53:R273H": ClassPathogenic,
	"BRCA1:C61G": ClassPathogenic,
}

// variantTypeRules apply when the table has no entry.
var variantTypeRules = map[string]Classification{
	"frame_shift_del":   ClassLOF,
	"frame_shift_ins":   ClassLOF,
	"nonsense_mutation": ClassLOF,
	"splice_site":       ClassLOF,
	"nonstop_mutation":  ClassLOF,
	"missense_mutation": ClassVUS,
	"in_frame_del":      ClassVUS,
	"in_frame_ins":      ClassVUS,
	"amplification":     ClassVUS,
}

var threeLetter = map[string]string{
	"ALA": "A", "ARG": "R", "ASN": "N", "ASP": "D", "CYS": "C", "GLN": "Q",
	"GLU": "E", "GLY": "G", "HIS": "H", "ILE": "I", "LEU": "L", "LYS": "K",
	"MET": "M", "PHE": "F", "PRO": "P", "SER": "S", "THR": "T", "TRP": "W",
	"TYR": "Y", "VAL": "V", "TER": "*",
}

var (
	threeLetterRe = regexp.MustCompile(`(?i)(Ala|Arg|Asn|Asp|Cys|Gln|Glu|Gly|His|Ile|Leu|Lys|Met|Phe|Pro|Ser|Thr|Trp|Tyr|Val|Ter)`)
	exonRe        = regexp.MustCompile(`(?i)exon\s*(\d+)\s*(deletion|del|insertion|ins|skipping|skip)`)
	egfrExon19Re  = regexp.MustCompile(`^[A-Z]7(?:4[5-9]|5\d)_[A-Z]7(?:4[5-9]|5\d)(?:DEL|DELINS)`)
)

// normalizeChange maps protein-change spellings to one form: upper case,
// no "p." prefix, one-letter amino acids, and EXON<n>DEL / EXON<n>INS /
// EXON<n>SKIPPING for exon-level events.
func normalizeChange(gene, change string) string {
	s := strings.TrimSpace(change)
	if s == "" {
		return ""
	}
	if m := exonRe.FindStringSubmatch(s); m != nil {
		kind := strings.ToLower(m[2])
		switch {
		case strings.HasPrefix(kind, "del"):
			return "EXON" + m[1] + "DEL"
		case strings.HasPrefix(kind, "ins"):
			return "EXON" + m[1] + "INS"
		default:
			return "EXON" + m[1] + "SKIPPING"
		}
	}

	s = strings.TrimPrefix(strings.TrimPrefix(s, "p."), "P.")
	s = threeLetterRe.ReplaceAllStringFunc(s, func(aa string) string {
		return threeLetter[strings.ToUpper(aa)]
	})
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))

	if gene == "EGFR" && egfrExon19Re.MatchString(s) {
		return "EXON19DEL"
	}
	return s
}

// Classifier assigns a classification and the rule that produced it.
type Classifier interface {
	Classify(ctx context.Context, m types.Mutation) (Classification, string)
}

// RuleClassifier uses the known-variant table, then variant-type rules.
type RuleClassifier struct{}

// Classify implements Classifier.
func (RuleClassifier) Classify(_ context.Context, m types.Mutation) (Classification, string) {
	gene := strings.ToUpper(strings.TrimSpace(m.Gene))
	if c, ok := knownVariants[gene+":"+normalizeChange(gene, m.ProteinChange)]; ok {
		return c, RuleKnownVariant
	}
	if c, ok := knownVariants[gene+":"+strings.ToUpper(m.VariantType)]; ok {
		return c, RuleKnownVariant
	}
	if c, ok := variantTypeRules[strings.ToLower(strings.TrimSpace(m.VariantType))]; ok {
		return c, RuleVariantType
	}
	return ClassVUS, RuleVariantType
}

// damaging reports whether c indicates a functional alteration.
func (c Classification) damaging() bool {
	switch c {
	case ClassActivating, ClassResistance, ClassPathogenic, ClassLOF:
		return true
	}
	return false
}

// ruleConfidence is the finding confidence for a classification rule.
func ruleConfidence(rule string) float64 {
	if rule == RuleKnownVariant {
		return 0.95
	}
	return 0.9
}
