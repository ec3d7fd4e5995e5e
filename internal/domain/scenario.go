package domain

import "time"

// FlagDef describes one protocol flag: a boolean checklist item representing
// a required clinical action. Signal is the keyword/intent hint forwarded to
// the agent backend; the server never does intent detection itself.
type FlagDef struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	StageIndex int    `json:"stage_index"`
	Signal     string `json:"signal"`
}

// ScenarioDef is the static definition of one training scenario: the ordered
// stage list, the protocol flags, the per-stage gates, and the bound patient
// case. Definitions are built once at catalog load and never mutated.
type ScenarioDef struct {
	ModuleID    string `json:"module_id"`
	ScenarioID  int    `json:"scenario_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Stages []string  `json:"stages"`
	Flags  []FlagDef `json:"flags"`

	// Gates[i] lists the flag names that must all be true before stage i may
	// advance. An empty gate means the stage advances after one exchange.
	Gates [][]string `json:"gates"`

	TargetDuration time.Duration `json:"target_duration"`
	Patient        PatientCase   `json:"patient"`

	// OpeningLine is the patient's first utterance, appended to the transcript
	// when a session is created.
	OpeningLine string `json:"opening_line"`
}

// RequiredFlags returns the gate for the given stage index, or nil when the
// index is out of range.
func (d *ScenarioDef) RequiredFlags(stageIndex int) []string {
	if stageIndex < 0 || stageIndex >= len(d.Gates) {
		return nil
	}
	return d.Gates[stageIndex]
}

// HasFlag reports whether the scenario defines a flag with the given name.
func (d *ScenarioDef) HasFlag(name string) bool {
	for _, f := range d.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// NewFlagSet returns a fresh flag map with every defined flag set false.
func (d *ScenarioDef) NewFlagSet() map[string]bool {
	flags := make(map[string]bool, len(d.Flags))
	for _, f := range d.Flags {
		flags[f.Name] = false
	}
	return flags
}
