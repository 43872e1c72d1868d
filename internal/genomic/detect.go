// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package genomic interprets gene and variant criteria against the
// patient's mutation list. Classification uses a known-variant table and
// variant-type rules; an optional external variant-effect predictor
// refines variants of uncertain significance.
package genomic

import (
	"regexp"
	"strings"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// knownGenes are matched case-sensitively as whole words.
var knownGenes = map[string]bool{
	"AKT1": true, "ALK": true, "APC": true, "ARID1A": true, "ATM": true,
	"BRAF": true, "BRCA1": true, "BRCA2": true, "CDKN2A": true, "CTNNB1": true,
	"EGFR": true, "ERBB2": true, "ESR1": true, "FGFR1": true, "FGFR2": true,
	"FGFR3": true, "FLT3": true, "HRAS": true, "IDH1": true, "IDH2": true,
	"JAK2": true, "KEAP1": true, "KIT": true, "KRAS": true, "MAP2K1": true,
	"MET": true, "MYC": true, "NF1": true, "NPM1": true, "NRAS": true,
	"NTRK1": true, "NTRK2": true, "NTRK3": true, "PALB2": true, "PDGFRA": true,
	"PIK3CA": true, "PTEN": true, "RET": true, "ROS1": true, "SMAD4": true,
	"STK11": true, "TP53": true,
}

// geneAliases maps clinical shorthand to HGNC symbols.
var geneAliases = map[string]string{
	"HER2": "ERBB2",
	"NEU":  "ERBB2",
}

// ambiguousGenes are also ordinary words or status labels and count only
// next to a genomic keyword.
var ambiguousGenes = map[string]bool{"MET": true}

var genomicKeywords = []string{
	"mutation", "mutant", "mutated", "variant", "wild-type", "wild type",
	"wildtype", "activating", "fusion", "rearrangement", "amplification",
	"amplified", "resistance mutation", "pathogenic", "loss-of-function",
	"loss of function", "germline", "somatic", "deleterious", "exon",
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// DetectKind tags text as genomic when it names a known gene or uses
// mutation vocabulary.
func DetectKind(text string) types.CriterionKind {
	if len(findGenes(text)) > 0 || hasGenomicKeyword(strings.ToLower(text)) {
		return types.KindGenomic
	}
	return types.KindGeneral
}

func hasGenomicKeyword(lower string) bool {
	for _, kw := range genomicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hgncNearKeyword captures gene-shaped tokens directly before a mutation
// keyword, for genes outside the known list.
var hgncNearKeyword = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,7})\s+(?:gene\s+)?(?:mutations?|mutant|variants?|fusions?|amplification|alterations?|rearrangements?)\b`)

// proteinChangeRe matches variant shorthand such as L858R or G12 that
// precedes a mutation keyword the same way a gene symbol does.
var proteinChangeRe = regexp.MustCompile(`^[A-Z]\d+[A-Z*]?$`)

var notGenes = map[string]bool{
	"DNA": true, "RNA": true, "ECOG": true, "CNS": true, "HIV": true, "ULN": true,
	"ANY": true, "NO": true, "AND": true, "OR": true, "NOT": true, "WITH": true,
}

// findGenes returns the HGNC symbols named in text, in order of first
// appearance, without duplicates.
func findGenes(text string) []string {
	keyword := hasGenomicKeyword(strings.ToLower(text))
	seen := map[string]bool{}
	var out []string
	add := func(g string) {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}

	for _, w := range wordRe.FindAllString(text, -1) {
		if alias, ok := geneAliases[strings.ToUpper(w)]; ok {
			add(alias)
			continue
		}
		if !knownGenes[w] {
			continue
		}
		if ambiguousGenes[w] && !keyword {
			continue
		}
		add(w)
	}
	for _, m := range hgncNearKeyword.FindAllStringSubmatch(text, -1) {
		if g := m[1]; !notGenes[g] && !seen[g] && !proteinChangeRe.MatchString(g) {
			if _, alias := geneAliases[g]; !alias {
				add(g)
			}
		}
	}
	return out
}
