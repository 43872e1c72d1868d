// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// analysisPromptTmpl asks the model for the header-delimited plain-text
// answer that Parse reads.
var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a clinical trial eligibility screener. Compare the patient profile with every inclusion and exclusion criterion of the trial below.

Classify each criterion you can extract as exactly one of:
- MET: the profile shows the patient satisfies it (for an exclusion criterion: the patient does NOT have the excluding condition)
- UNMET: the profile shows the patient fails it (for an exclusion criterion: the patient HAS the excluding condition)
- UNCLEAR: the profile does not contain enough information to decide

Respond in plain text using exactly these headers, in this order, and nothing else. Do not use JSON.

SUMMARY:
<two to four sentences on overall fit>
OVERALL ELIGIBILITY: <one of: Likely eligible, Possibly eligible, Likely ineligible>
MET CRITERIA:
- [INCLUSION] <criterion text> — <reasoning citing profile values>
UNMET CRITERIA:
- [EXCLUSION] <criterion text> — <reasoning citing profile values>
UNCLEAR CRITERIA:
- [INCLUSION] <criterion text> — <what information is missing>

Start every criterion with [INCLUSION] or [EXCLUSION] for the list it comes from, and copy its text from the trial.
List every criterion once, under one header only. Write "- None" under a header with no criteria.

TRIAL {{.Trial.ID}}: {{.Trial.Title}}
{{- if .Trial.Phase}}
Phase: {{.Trial.Phase}}
{{- end}}

{{.Criteria}}

PATIENT PROFILE:
{{.Profile}}
`))

// FormatProfile renders p as YAML. Lab components appear in sorted order,
// so identical profiles render identically.
func FormatProfile(p types.PatientProfile) (string, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling patient profile: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// RenderPrompt builds the analysis prompt for one trial.
func RenderPrompt(trial types.TrialRecord, profile types.PatientProfile) (string, error) {
	formatted, err := FormatProfile(profile)
	if err != nil {
		return "", err
	}
	criteria := trial.EligibilityText()
	if criteria == "" {
		return "", fmt.Errorf("trial %s has no eligibility criteria text", trial.ID)
	}

	var buf bytes.Buffer
	err = analysisPromptTmpl.Execute(&buf, struct {
		Trial    types.TrialRecord
		Criteria string
		Profile  string
	}{Trial: trial, Criteria: criteria, Profile: formatted})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}
