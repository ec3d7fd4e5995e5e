// Package domain contains core domain types for the Emergensee simulation server.
package domain

// Vitals is a snapshot of patient vital signs taken at scenario start.
type Vitals struct {
	BPSystolic   int    `json:"bp_systolic"`
	BPDiastolic  int    `json:"bp_diastolic"`
	HeartRate    int    `json:"heart_rate"`
	O2Saturation int    `json:"o2_saturation"`
	O2Source     string `json:"o2_source"`
	PainScore    int    `json:"pain_score"`
}

// PatientHistory summarizes the patient's background as presented to the learner.
type PatientHistory struct {
	AgeSex          string `json:"age_sex"`
	ChiefComplaint  string `json:"chief_complaint"`
	KnownConditions string `json:"known_conditions"`
	Allergies       string `json:"allergies"`
}

// PatientCase is the immutable case sheet bound to a session at creation.
// Cases are owned by the catalog and shared read-only; sessions hold a
// reference, never a mutable copy.
type PatientCase struct {
	Name    string         `json:"name"`
	Age     int            `json:"age"`
	Vitals  Vitals         `json:"vitals"`
	History PatientHistory `json:"history"`
}
