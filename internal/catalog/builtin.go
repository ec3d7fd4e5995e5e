package catalog

import (
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// Stage identifiers shared by the emergency-triage scenarios, ordered from
// first contact to debrief.
var triageStages = []string{
	"initial-stabilization",
	"diagnostic-confirmation",
	"critical-consultation",
	"senior-handover",
	"debriefing",
}

// Protocol flag names.
const (
	FlagECGOrdered         = "ecg_ordered"
	FlagVasoOrAnalgesic    = "vasopressor_or_analgesic_given"
	FlagDiagnosisConfirmed = "diagnosis_confirmed"
	FlagHandoverCompleted  = "handover_completed"
)

func triageFlags() []domain.FlagDef {
	return []domain.FlagDef{
		{Name: FlagECGOrdered, Label: "12-lead ECG ordered", StageIndex: 0, Signal: "ecg,ekg,electrocardiogram,12-lead"},
		{Name: FlagVasoOrAnalgesic, Label: "Vasopressor or analgesic given", StageIndex: 0, Signal: "nitro,nitroglycerin,morphine,analgesia,pressor"},
		{Name: FlagDiagnosisConfirmed, Label: "Working diagnosis confirmed", StageIndex: 1, Signal: "diagnosis,stemi,confirm"},
		{Name: FlagHandoverCompleted, Label: "Senior handover completed", StageIndex: 3, Signal: "handover,report,summary,sbar"},
	}
}

// triageGates gates stage 0 on the two stabilization actions and stage 1 on a
// confirmed diagnosis. The consultation and debriefing stages have empty
// gates and advance after one exchange.
func triageGates() [][]string {
	return [][]string{
		{FlagECGOrdered, FlagVasoOrAnalgesic},
		{FlagDiagnosisConfirmed},
		{},
		{FlagHandoverCompleted},
		{},
	}
}

// BuiltIn returns the catalog of shipped scenarios.
func BuiltIn() (*Catalog, error) {
	return New(
		&domain.ScenarioDef{
			ModuleID:       "emergency-triage",
			ScenarioID:     1,
			Title:          "Multi-Vehicle Accident Victims",
			Description:    "Triage a trauma patient from a highway accident",
			Stages:         triageStages,
			Flags:          triageFlags(),
			Gates:          triageGates(),
			TargetDuration: 8 * time.Minute,
			Patient: domain.PatientCase{
				Name: "Sarah Johnson",
				Age:  34,
				Vitals: domain.Vitals{
					BPSystolic:   90,
					BPDiastolic:  60,
					HeartRate:    110,
					O2Saturation: 92,
					O2Source:     "Room Air",
					PainScore:    8,
				},
				History: domain.PatientHistory{
					AgeSex:          "34-year-old female",
					ChiefComplaint:  "Motor vehicle accident with chest pain and difficulty breathing",
					KnownConditions: "Asthma, Previous appendectomy",
					Allergies:       "Penicillin",
				},
			},
			OpeningLine: "Doctor, I was in a car accident about 30 minutes ago. My chest really hurts and I'm having trouble breathing. The airbag hit me pretty hard.",
		},
		&domain.ScenarioDef{
			ModuleID:       "emergency-triage",
			ScenarioID:     2,
			Title:          "Crushing Chest Pain",
			Description:    "Manage a suspected STEMI presentation",
			Stages:         triageStages,
			Flags:          triageFlags(),
			Gates:          triageGates(),
			TargetDuration: 10 * time.Minute,
			Patient: domain.PatientCase{
				Name: "Brandon Hancock",
				Age:  55,
				Vitals: domain.Vitals{
					BPSystolic:   118,
					BPDiastolic:  75,
					HeartRate:    105,
					O2Saturation: 94,
					O2Source:     "Room Air",
					PainScore:    8,
				},
				History: domain.PatientHistory{
					AgeSex:          "55-year-old male",
					ChiefComplaint:  "Crushing substernal chest pain",
					KnownConditions: "Hypertension, Smoker",
					Allergies:       "None known",
				},
			},
			OpeningLine: "It feels like an elephant is sitting on my chest. It started about an hour ago and it's not letting up.",
		},
	)
}
