package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

func validDef() *domain.ScenarioDef {
	return &domain.ScenarioDef{
		ModuleID:   "test-module",
		ScenarioID: 1,
		Title:      "Test Scenario",
		Stages:     []string{"one", "two"},
		Flags: []domain.FlagDef{
			{Name: "f1", Label: "Flag One", StageIndex: 0},
		},
		Gates:          [][]string{{"f1"}, {}},
		TargetDuration: 5 * time.Minute,
		Patient:        domain.PatientCase{Name: "Test Patient", Age: 40},
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ScenarioDef)
	}{
		{"empty module id", func(d *domain.ScenarioDef) { d.ModuleID = "" }},
		{"no stages", func(d *domain.ScenarioDef) { d.Stages = nil; d.Gates = nil }},
		{"gate count mismatch", func(d *domain.ScenarioDef) { d.Gates = [][]string{{"f1"}} }},
		{"gate references undefined flag", func(d *domain.ScenarioDef) { d.Gates[1] = []string{"ghost"} }},
		{"flag stage out of range", func(d *domain.ScenarioDef) { d.Flags[0].StageIndex = 5 }},
		{"non-positive duration", func(d *domain.ScenarioDef) { d.TargetDuration = 0 }},
		{"missing patient name", func(d *domain.ScenarioDef) { d.Patient.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.mutate(def)
			if _, err := New(def); err == nil {
				t.Error("New() accepted invalid definition")
			}
		})
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	if _, err := New(validDef(), validDef()); err == nil {
		t.Error("New() accepted duplicate (module, scenario) pair")
	}
}

func TestLookup(t *testing.T) {
	c, err := New(validDef())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	def, err := c.Lookup("test-module", 1)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if def.Title != "Test Scenario" {
		t.Errorf("Lookup() title = %q", def.Title)
	}

	if _, err := c.Lookup("missing-module", 1); !errors.Is(err, domain.ErrUnknownCase) {
		t.Errorf("Lookup(missing module) error = %v, want ErrUnknownCase", err)
	}
	if _, err := c.Lookup("test-module", 99); !errors.Is(err, domain.ErrUnknownCase) {
		t.Errorf("Lookup(missing scenario) error = %v, want ErrUnknownCase", err)
	}
}

func TestBuiltIn(t *testing.T) {
	c, err := BuiltIn()
	if err != nil {
		t.Fatalf("BuiltIn() error = %v", err)
	}

	def, err := c.Lookup("emergency-triage", 1)
	if err != nil {
		t.Fatalf("Lookup(emergency-triage, 1) error = %v", err)
	}
	if def.Patient.Name != "Sarah Johnson" {
		t.Errorf("patient = %q, want Sarah Johnson", def.Patient.Name)
	}
	if len(def.Stages) != 5 {
		t.Errorf("stages = %d, want 5", len(def.Stages))
	}
	if def.Stages[0] != "initial-stabilization" || def.Stages[4] != "debriefing" {
		t.Errorf("unexpected stage order: %v", def.Stages)
	}
	if got := def.RequiredFlags(0); len(got) != 2 {
		t.Errorf("stage 0 gate = %v, want two flags", got)
	}
	if got := def.RequiredFlags(2); len(got) != 0 {
		t.Errorf("stage 2 gate = %v, want empty", got)
	}
	if def.OpeningLine == "" {
		t.Error("opening line is empty")
	}

	summaries := c.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("Summaries() = %d entries, want 2", len(summaries))
	}
	if summaries[0].ScenarioID != 1 || summaries[1].ScenarioID != 2 {
		t.Errorf("Summaries() not in scenario order: %+v", summaries)
	}
}

func TestNewFlagSet(t *testing.T) {
	def := validDef()
	flags := def.NewFlagSet()
	if len(flags) != 1 {
		t.Fatalf("NewFlagSet() = %d flags, want 1", len(flags))
	}
	if flags["f1"] {
		t.Error("fresh flag set has a true flag")
	}
}
