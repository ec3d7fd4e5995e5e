package simulation

import (
	"errors"
	"testing"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

func testDef() *domain.ScenarioDef {
	return &domain.ScenarioDef{
		ModuleID:   "test-module",
		ScenarioID: 1,
		Stages:     []string{"one", "two", "three"},
		Flags: []domain.FlagDef{
			{Name: "f1", StageIndex: 0},
			{Name: "f2", StageIndex: 2},
		},
		Gates:          [][]string{{"f1"}, {}, {"f2"}},
		TargetDuration: 5 * time.Minute,
		Patient:        domain.PatientCase{Name: "Test Patient"},
	}
}

func sessionFor(def *domain.ScenarioDef) *domain.Session {
	return &domain.Session{
		ID:            "s1",
		Stages:        def.Stages,
		ProtocolFlags: def.NewFlagSet(),
		Status:        domain.StatusActive,
	}
}

func TestStageSatisfied(t *testing.T) {
	def := testDef()

	s := sessionFor(def)
	if StageSatisfied(def, s) {
		t.Error("gate satisfied with flag unset")
	}
	s.ProtocolFlags["f1"] = true
	if !StageSatisfied(def, s) {
		t.Error("gate not satisfied with flag set")
	}

	// Empty gate needs at least one exchange in the stage.
	s = sessionFor(def)
	s.CurrentStageIndex = 1
	if StageSatisfied(def, s) {
		t.Error("empty gate satisfied before any exchange")
	}
	s.StageExchanges = 1
	if !StageSatisfied(def, s) {
		t.Error("empty gate not satisfied after an exchange")
	}
}

func TestAdvance(t *testing.T) {
	def := testDef()
	s := sessionFor(def)

	advanced, err := Advance(def, s)
	if advanced || err != nil {
		t.Errorf("Advance(unsatisfied) = %v, %v; want false, nil", advanced, err)
	}
	if s.CurrentStageIndex != 0 {
		t.Errorf("stage index = %d, want 0", s.CurrentStageIndex)
	}

	s.ProtocolFlags["f1"] = true
	s.StageExchanges = 3
	advanced, err = Advance(def, s)
	if !advanced || err != nil {
		t.Errorf("Advance(satisfied) = %v, %v; want true, nil", advanced, err)
	}
	if s.CurrentStageIndex != 1 {
		t.Errorf("stage index = %d, want 1", s.CurrentStageIndex)
	}
	if s.StageExchanges != 0 {
		t.Errorf("exchanges = %d, want reset to 0", s.StageExchanges)
	}
}

func TestAdvanceTerminalStage(t *testing.T) {
	def := testDef()
	s := sessionFor(def)
	s.CurrentStageIndex = 2
	s.ProtocolFlags["f2"] = true

	advanced, err := Advance(def, s)
	if advanced {
		t.Error("advanced past the terminal stage")
	}
	if !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Errorf("Advance(terminal) error = %v, want ErrAlreadyTerminal", err)
	}
	if s.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}

	// Repeated terminal-gate checks stay completed and keep signaling.
	advanced, err = Advance(def, s)
	if advanced || !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Errorf("second Advance(terminal) = %v, %v", advanced, err)
	}
	if s.Status != domain.StatusCompleted {
		t.Errorf("status changed on repeat: %q", s.Status)
	}
}

func TestTimer(t *testing.T) {
	s := &domain.Session{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	now := s.CreatedAt.Add(7 * time.Minute)

	if got := Elapsed(s, now); got != 7*time.Minute {
		t.Errorf("Elapsed() = %v, want 7m", got)
	}
	if IsOvertime(s, 8*time.Minute, now) {
		t.Error("overtime at 7m of an 8m target")
	}
	if !IsOvertime(s, 8*time.Minute, s.CreatedAt.Add(9*time.Minute)) {
		t.Error("not overtime at 9m of an 8m target")
	}
}
