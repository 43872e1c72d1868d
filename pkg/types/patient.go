// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// PatientProfile is the structured patient record the engine matches
// against. It is supplied by the caller and never mutated.
type PatientProfile struct {
	PatientID          string         `json:"patient_id" yaml:"patient_id"`
	Demographics       Demographics   `json:"demographics" yaml:"demographics"`
	Diagnosis          Diagnosis      `json:"diagnosis" yaml:"diagnosis"`
	MedicalHistory     []string       `json:"medical_history" yaml:"medical_history"`
	CurrentMedications []Medication   `json:"current_medications" yaml:"current_medications"`
	Allergies          []string       `json:"allergies" yaml:"allergies"`
	RecentLabs         []LabPanel     `json:"recent_labs" yaml:"recent_labs"`
	Notes              []ClinicalNote `json:"notes" yaml:"notes"`
	Mutations          []Mutation     `json:"mutations" yaml:"mutations"`
}

// Demographics holds the identifying and physical attributes of a patient.
type Demographics struct {
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Age       int     `json:"age,omitempty" yaml:"age,omitempty"`
	Sex       string  `json:"sex,omitempty" yaml:"sex,omitempty"`
	WeightKg  float64 `json:"weight_kg,omitempty" yaml:"weight_kg,omitempty"`
	HeightCm  float64 `json:"height_cm,omitempty" yaml:"height_cm,omitempty"`
	Ethnicity string  `json:"ethnicity,omitempty" yaml:"ethnicity,omitempty"`
}

// Diagnosis describes the primary oncologic diagnosis.
type Diagnosis struct {
	Primary       string `json:"primary" yaml:"primary"`
	Stage         string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Histology     string `json:"histology,omitempty" yaml:"histology,omitempty"`
	DiagnosisDate string `json:"diagnosis_date,omitempty" yaml:"diagnosis_date,omitempty"`
}

// Medication is one active prescription.
type Medication struct {
	Name      string `json:"name" yaml:"name"`
	Dosage    string `json:"dosage,omitempty" yaml:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
}

// LabPanel groups lab components resulted together on one date.
type LabPanel struct {
	// Name is the panel name (e.g. "CBC with Differential").
	Name string `json:"name" yaml:"name"`

	// Date is the result date in YYYY-MM-DD format.
	Date string `json:"date" yaml:"date"`

	// Components maps the component name (e.g. "Platelet") to its result.
	Components map[string]LabComponent `json:"components" yaml:"components"`
}

// LabComponent is a single resulted lab value.
type LabComponent struct {
	Value float64 `json:"value" yaml:"value"`
	Unit  string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Flag  string  `json:"flag,omitempty" yaml:"flag,omitempty"`
}

// ClinicalNote is a dated free-text note from a provider.
type ClinicalNote struct {
	Date     string `json:"date" yaml:"date"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Text     string `json:"text" yaml:"text"`
}

// Mutation is one somatic or germline variant reported for the patient.
// VariantType uses MAF vocabulary (Missense_Mutation, Nonsense_Mutation,
// Frame_Shift_Del, ...).
type Mutation struct {
	Gene          string `json:"gene" yaml:"gene"`
	VariantType   string `json:"variant_type" yaml:"variant_type"`
	ProteinChange string `json:"protein_change,omitempty" yaml:"protein_change,omitempty"`
}
