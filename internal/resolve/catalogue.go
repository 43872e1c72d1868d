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

// Finding confidences for record-text targets. Free text is context, not
// proof, except where a definite value is read (ECOG score, age, sex, a
// named medication or allergen).
const (
	confDefinite   = 0.95
	confNoteValue  = 0.9
	confAbsentList = 0.8
	confMention    = 0.7
	confWeak       = 0.5
)

// DefaultCatalogue returns the built-in search targets. Catalogue order
// only breaks exact score ties.
func DefaultCatalogue() []Target {
	return []Target{
		labTarget("platelet", 5,
			[]string{"platelet", "platelets", "platelet count", "plt", "thrombocytes"},
			newAnalyte("Platelet", measureCount, 0, "platelet", "platelets", "platelet count", "plt")),
		labTarget("anc", 5,
			[]string{"anc", "absolute neutrophil count", "neutrophil", "neutrophils", "neutrophil count"},
			newAnalyte("ANC", measureCount, 0, "anc", "absolute neutrophil count", "neutrophils", "neutrophil count", "neutrophils absolute")),
		labTarget("hemoglobin", 5,
			[]string{"hemoglobin", "haemoglobin", "hgb", "hb"},
			newAnalyte("Hemoglobin", measureHemoglobin, 0, "hemoglobin", "haemoglobin", "hgb", "hb")),
		labTarget("wbc", 5,
			[]string{"wbc", "white blood cell", "white blood cells", "white blood cell count", "leukocyte", "leukocytes"},
			newAnalyte("WBC", measureCount, 0, "wbc", "white blood cell count", "white blood cells", "leukocytes")),
		labTarget("creatinine_clearance", 6,
			[]string{"creatinine clearance", "crcl", "clearance"},
			newAnalyte("CrCl", measureClearance, 0, "creatinine clearance", "crcl", "estimated crcl")),
		labTarget("creatinine", 5,
			[]string{"creatinine", "serum creatinine", "cr"},
			newAnalyte("Creatinine", measureCreatinine, 1.2, "creatinine", "serum creatinine", "cr")),
		labTarget("bilirubin", 5,
			[]string{"bilirubin", "total bilirubin", "tbili"},
			newAnalyte("Bilirubin", measureBilirubin, 1.2, "bilirubin", "total bilirubin", "bilirubin, total", "tbili")),
		labTarget("liver_enzymes", 5,
			[]string{"ast", "alt", "sgot", "sgpt", "aminotransferase", "transaminase", "transaminases", "liver enzymes"},
			newAnalyte("AST", measureEnzyme, 40, "ast", "sgot", "aspartate aminotransferase"),
			newAnalyte("ALT", measureEnzyme, 40, "alt", "sgpt", "alanine aminotransferase")),
		labTarget("inr", 5,
			[]string{"inr", "international normalized ratio", "pt/inr"},
			newAnalyte("INR", measureRatio, 1.1, "inr", "pt/inr", "international normalized ratio")),
		NewTarget("weight_loss", "weight_loss", 7,
			[]string{"weight loss", "lost weight", "cachexia", "unintentional weight loss", "unintended weight loss"},
			textLookup("weight_loss", weightLossRe, confMention)),
		NewTarget("ecog", "ecog", 6,
			[]string{"ecog", "performance status", "zubrod"},
			ecogLookup),
		NewTarget("cyp3a4_pgp", "cyp3a4_pgp", 6,
			[]string{"p-gp", "p-glycoprotein", "cyp3a4", "cyp3a", "inhibitor", "inhibitors", "inducer", "inducers"},
			medicationClassLookup("cyp3a4_pgp", "P-gp/CYP3A4 inhibitor or inducer", cyp3a4PgpDrugs)),
		NewTarget("anticoagulant", "anticoagulant", 6,
			[]string{"anticoagulant", "anticoagulants", "anticoagulation", "blood thinner", "blood thinners", "warfarin", "heparin", "doac", "doacs"},
			medicationClassLookup("anticoagulant", "anticoagulant", anticoagulantDrugs)),
		NewTarget("brain_metastases", "brain_metastases", 6,
			[]string{"brain metastases", "brain metastasis", "cns metastases", "brain mets", "leptomeningeal", "intracranial"},
			textLookup("brain_metastases", brainMetsRe, confMention)),
		NewTarget("pregnancy", "pregnancy", 5,
			[]string{"pregnant", "pregnancy", "breastfeeding", "breast-feeding", "lactating", "childbearing"},
			pregnancyLookup),
		NewTarget("allergy", "allergy", 5,
			[]string{"allergy", "allergies", "allergic", "hypersensitivity", "anaphylaxis"},
			allergyLookup),
		NewTarget("age", "age", 3,
			[]string{"age", "years of age", "aged", "years old"},
			ageLookup),
		NewTarget("diagnosis", "diagnosis", 2,
			[]string{"histologically", "cytologically", "confirmed diagnosis", "diagnosis", "diagnosed", "stage", "carcinoma", "adenocarcinoma"},
			diagnosisLookup),
		NewTarget("prior_therapy", "prior_therapy", 2,
			[]string{"prior", "previous", "previously", "received", "therapy", "treatment", "chemotherapy", "regimen", "line of therapy", "lines of therapy"},
			keywordLookup("prior_therapy", 1, confMention)),
		NewTarget("notes", "notes", 1,
			[]string{"history of", "documented", "evidence of", "known"},
			keywordLookup("notes", 2, confWeak)),
	}
}

var (
	weightLossRe = regexp.MustCompile(`(?i)\b(?:weight loss|lost weight|lost \d+(?:\.\d+)?\s*(?:lb|lbs|pounds|kg)|cachexi\w*)`)
	brainMetsRe  = regexp.MustCompile(`(?i)\b(?:(?:brain|cns|cerebral|intracranial)\s+(?:metastas[ei]s|mets|lesions?)|leptomeningeal)`)
	pregnancyRe  = regexp.MustCompile(`(?i)\b(?:pregnan\w*|breast-?feeding|lactating|postmenopausal|post-menopausal|hysterectomy)\b`)
	negationRe   = regexp.MustCompile(`(?i)\b(?:no|not|non|without|must not|prohibited|excluded|avoid|negative)\b`)
	ecogScoreRe  = regexp.MustCompile(`(?i)\b(?:ecog|zubrod)(?:\s+(?:performance\s+status|ps|score|status|of|is|was|currently|now))*\s*[:=]?\s*([0-5])\b`)
	ageOrRe      = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:years?|yrs?)?(?:\s+of\s+age)?\s+(?:or|and)\s+(older|over|above|greater|younger|under|below|less)`)
	ageBetweenRe = regexp.MustCompile(`(?i)between\s+(\d{1,3})\s+and\s+(\d{1,3})`)
	sentenceRe   = regexp.MustCompile(`[^.;\n]+`)
)

var cyp3a4PgpDrugs = []string{
	"ketoconazole", "itraconazole", "voriconazole", "posaconazole",
	"clarithromycin", "erythromycin", "ritonavir", "cobicistat",
	"verapamil", "diltiazem", "amiodarone", "cyclosporine", "quinidine",
	"rifampin", "rifampicin", "carbamazepine", "phenytoin", "phenobarbital",
	"st john's wort", "grapefruit",
}

var anticoagulantDrugs = []string{
	"warfarin", "apixaban", "rivaroxaban", "dabigatran", "edoxaban",
	"enoxaparin", "dalteparin", "heparin", "fondaparinux",
}

// recordLine is one searchable piece of free text in the profile.
type recordLine struct {
	source string
	date   string
	text   string
}

func (l recordLine) cite(excerpt string) string {
	if l.date != "" {
		return fmt.Sprintf("%q (%s, %s)", excerpt, l.source, l.date)
	}
	return fmt.Sprintf("%q (%s)", excerpt, l.source)
}

// recordLines lists notes newest first, then medical history entries.
func recordLines(p types.PatientProfile) []recordLine {
	notes := make([]types.ClinicalNote, len(p.Notes))
	copy(notes, p.Notes)
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Date > notes[j].Date })

	lines := make([]recordLine, 0, len(notes)+len(p.MedicalHistory))
	for _, n := range notes {
		lines = append(lines, recordLine{source: "notes", date: n.Date, text: n.Text})
	}
	for _, h := range p.MedicalHistory {
		lines = append(lines, recordLine{source: "medical_history", text: h})
	}
	return lines
}

// sentenceAt returns the sentence of text containing offset.
func sentenceAt(text string, offset int) string {
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if offset >= loc[0] && offset < loc[1] {
			return strings.TrimSpace(text[loc[0]:loc[1]])
		}
	}
	return strings.TrimSpace(text)
}

// textLookup reports the first record sentence matching re as context.
func textLookup(field string, re *regexp.Regexp, conf float64) LookupFunc {
	return func(_ string, p types.PatientProfile) (Outcome, error) {
		for _, l := range recordLines(p) {
			if loc := re.FindStringIndex(l.text); loc != nil {
				context := l.cite(sentenceAt(l.text, loc[0]))
				return Outcome{
					Finding:  &types.InternalSearchFinding{Source: l.source + "/" + field, Context: context, Confidence: conf},
					Proposed: types.StatusUnclear,
				}, nil
			}
		}
		return Outcome{}, fmt.Errorf("%w: no %s mention in notes or history", types.ErrMissingData, field)
	}
}

var stopwords = map[string]bool{
	"with": true, "that": true, "have": true, "must": true, "from": true,
	"than": true, "more": true, "least": true, "within": true, "prior": true,
	"previous": true, "previously": true, "received": true, "therapy": true,
	"treatment": true, "patients": true, "patient": true, "history": true,
	"documented": true, "evidence": true, "known": true, "including": true,
	"line": true, "lines": true, "regimen": true, "days": true, "weeks": true,
	"months": true, "years": true, "before": true, "after": true, "other": true,
	"this": true, "study": true, "trial": true, "enrollment": true, "any": true,
	"which": true, "been": true, "were": true, "should": true, "will": true,
}

var contentWordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9-]{3,}`)

func contentWords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range contentWordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// keywordLookup finds the record line sharing the most content words with
// the criterion, requiring at least minHits. Current medications are
// searched too.
func keywordLookup(field string, minHits int, conf float64) LookupFunc {
	return func(criterion string, p types.PatientProfile) (Outcome, error) {
		words := contentWords(criterion)
		if len(words) == 0 {
			return Outcome{}, fmt.Errorf("%w: criterion has no searchable terms", types.ErrMissingData)
		}

		lines := recordLines(p)
		for _, m := range p.CurrentMedications {
			lines = append(lines, recordLine{source: "current_medications", text: describeMedication(m)})
		}

		var best recordLine
		bestHits, bestOffset := 0, 0
		for _, l := range lines {
			lower := strings.ToLower(l.text)
			hits, first := 0, -1
			for _, w := range words {
				if i := strings.Index(lower, w); i >= 0 {
					hits++
					if first < 0 || i < first {
						first = i
					}
				}
			}
			if hits > bestHits {
				best, bestHits, bestOffset = l, hits, first
			}
		}
		if bestHits < minHits {
			return Outcome{}, fmt.Errorf("%w: no record mentions %s", types.ErrMissingData, strings.Join(words, ", "))
		}
		return Outcome{
			Finding: &types.InternalSearchFinding{
				Source:     best.source + "/" + field,
				Context:    best.cite(sentenceAt(best.text, bestOffset)),
				Confidence: conf,
			},
			Proposed: types.StatusUnclear,
		}, nil
	}
}

func describeMedication(m types.Medication) string {
	detail := strings.TrimSpace(m.Dosage + " " + m.Frequency)
	if detail == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, detail)
}

// medicationClassLookup checks current medications against a drug class.
// Criteria phrased as a prohibition are MET when no drug of the class is
// taken; otherwise the criterion describes use of the class.
func medicationClassLookup(field, class string, drugs []string) LookupFunc {
	return func(criterion string, p types.PatientProfile) (Outcome, error) {
		if len(p.CurrentMedications) == 0 {
			return Outcome{}, fmt.Errorf("%w: no current medications", types.ErrMissingData)
		}
		prohibited := negationRe.MatchString(criterion)

		var hits []string
		for _, m := range p.CurrentMedications {
			name := strings.ToLower(m.Name)
			for _, d := range drugs {
				if strings.Contains(name, d) {
					hits = append(hits, describeMedication(m))
					break
				}
			}
		}

		if len(hits) > 0 {
			context := fmt.Sprintf("Current medication %s is a %s", strings.Join(hits, ", "), class)
			return Outcome{
				Finding:  &types.InternalSearchFinding{Source: "current_medications/" + field, Context: context, Confidence: confDefinite},
				Proposed: metIf(!prohibited),
				Evidence: context,
			}, nil
		}
		// The drug lists are not exhaustive, so absence stays below the
		// escalation threshold.
		context := fmt.Sprintf("No %s among %d current medications", class, len(p.CurrentMedications))
		return Outcome{
			Finding:  &types.InternalSearchFinding{Source: "current_medications/" + field, Context: context, Confidence: confAbsentList},
			Proposed: metIf(prohibited),
			Evidence: context,
		}, nil
	}
}

func ecogLookup(criterion string, p types.PatientProfile) (Outcome, error) {
	for _, l := range recordLines(p) {
		m := ecogScoreRe.FindStringSubmatchIndex(l.text)
		if m == nil {
			continue
		}
		score, _ := strconv.Atoi(l.text[m[2]:m[3]])
		context := fmt.Sprintf("ECOG %d in %s", score, l.source)
		if l.date != "" {
			context += " on " + l.date
		}

		out := Outcome{
			Finding:  &types.InternalSearchFinding{Source: l.source + "/ecog", Context: context, Confidence: confMention},
			Proposed: types.StatusUnclear,
		}
		if r, ok := parseECOGRange(criterion); ok {
			out.Finding.Confidence = confNoteValue
			out.Proposed = metIf(r.contains(score))
			out.Evidence = fmt.Sprintf("%s; requires ECOG %d-%d", context, r.lo, r.hi)
		}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("%w: no ECOG score in notes or history", types.ErrMissingData)
}

func ageLookup(criterion string, p types.PatientProfile) (Outcome, error) {
	age := p.Demographics.Age
	if age <= 0 {
		return Outcome{}, fmt.Errorf("%w: no age in demographics", types.ErrMissingData)
	}
	context := fmt.Sprintf("Age %d", age)
	out := Outcome{
		Finding:  &types.InternalSearchFinding{Source: "demographics/age", Context: context, Confidence: confMention},
		Proposed: types.StatusUnclear,
	}

	decide := func(ok bool, requirement string) (Outcome, error) {
		out.Finding.Confidence = confDefinite
		out.Proposed = metIf(ok)
		out.Evidence = fmt.Sprintf("%s; requires %s", context, requirement)
		return out, nil
	}
	if m := ageBetweenRe.FindStringSubmatch(criterion); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return decide(age >= lo && age <= hi, fmt.Sprintf("age %d-%d", lo, hi))
	}
	if m := ageOrRe.FindStringSubmatch(criterion); m != nil {
		limit, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "older", "over", "above", "greater":
			return decide(age >= limit, fmt.Sprintf("age >= %d", limit))
		default:
			return decide(age <= limit, fmt.Sprintf("age <= %d", limit))
		}
	}
	if t, ok := parseThreshold(criterion); ok && (t.unit == "years" || t.unit == "") && t.value < 130 {
		return decide(t.cmp.holds(float64(age), t.value), "age "+describeThreshold(t))
	}
	return out, nil
}

func pregnancyLookup(criterion string, p types.PatientProfile) (Outcome, error) {
	sex := strings.ToLower(strings.TrimSpace(p.Demographics.Sex))
	if sex == "male" || sex == "m" {
		context := "Patient sex is male"
		return Outcome{
			Finding:  &types.InternalSearchFinding{Source: "demographics/sex", Context: context, Confidence: confDefinite},
			Proposed: metIf(negationRe.MatchString(criterion)),
			Evidence: context,
		}, nil
	}
	return textLookup("pregnancy", pregnancyRe, confMention)(criterion, p)
}

func allergyLookup(criterion string, p types.PatientProfile) (Outcome, error) {
	if len(p.Allergies) == 0 {
		return Outcome{}, fmt.Errorf("%w: no allergies recorded", types.ErrMissingData)
	}
	lower := strings.ToLower(criterion)
	for _, a := range p.Allergies {
		name := strings.ToLower(strings.TrimSpace(a))
		if name != "" && strings.Contains(lower, name) {
			context := "Documented allergy: " + a
			return Outcome{
				Finding:  &types.InternalSearchFinding{Source: "allergies/allergy", Context: context, Confidence: confDefinite},
				Proposed: metIf(!negationRe.MatchString(criterion)),
				Evidence: context,
			}, nil
		}
	}
	return Outcome{
		Finding: &types.InternalSearchFinding{
			Source:     "allergies/allergy",
			Context:    "Documented allergies: " + strings.Join(p.Allergies, ", "),
			Confidence: confWeak,
		},
		Proposed: types.StatusUnclear,
	}, nil
}

func diagnosisLookup(_ string, p types.PatientProfile) (Outcome, error) {
	d := p.Diagnosis
	if strings.TrimSpace(d.Primary) == "" {
		return Outcome{}, fmt.Errorf("%w: no primary diagnosis", types.ErrMissingData)
	}
	parts := []string{d.Primary}
	if d.Stage != "" {
		parts = append(parts, "stage "+d.Stage)
	}
	if d.Histology != "" {
		parts = append(parts, d.Histology)
	}
	context := "Diagnosis: " + strings.Join(parts, ", ")
	if d.DiagnosisDate != "" {
		context += " (diagnosed " + d.DiagnosisDate + ")"
	}
	return Outcome{
		Finding:  &types.InternalSearchFinding{Source: "diagnosis/primary", Context: context, Confidence: 0.75},
		Proposed: types.StatusUnclear,
	}, nil
}
