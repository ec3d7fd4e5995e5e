package domain

import (
	"testing"
	"time"
)

func newTestSession() *Session {
	now := time.Now()
	return &Session{
		ID:                "sess-1",
		UserID:            "user-1",
		ModuleID:          "emergency-triage",
		ScenarioID:        1,
		Stages:            []string{"a", "b", "c"},
		CurrentStageIndex: 0,
		ProtocolFlags:     map[string]bool{"x": false, "y": false},
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := newTestSession()
	c := s.Clone()

	c.ProtocolFlags["x"] = true
	c.Stages[0] = "mutated"
	c.CurrentStageIndex = 2

	if s.ProtocolFlags["x"] {
		t.Error("mutating clone flags affected original")
	}
	if s.Stages[0] != "a" {
		t.Error("mutating clone stages affected original")
	}
	if s.CurrentStageIndex != 0 {
		t.Error("mutating clone index affected original")
	}
}

func TestClosed(t *testing.T) {
	s := newTestSession()
	if s.Closed() {
		t.Error("active session reported closed")
	}
	s.Status = StatusCompleted
	if !s.Closed() {
		t.Error("completed session not reported closed")
	}
	s.Status = StatusAbandoned
	if !s.Closed() {
		t.Error("abandoned session not reported closed")
	}
}

func TestCurrentStage(t *testing.T) {
	s := newTestSession()
	if got := s.CurrentStage(); got != "a" {
		t.Errorf("CurrentStage() = %q, want %q", got, "a")
	}
	s.CurrentStageIndex = 2
	if got := s.CurrentStage(); got != "c" {
		t.Errorf("CurrentStage() = %q, want %q", got, "c")
	}
	if !s.AtTerminalStage() {
		t.Error("last stage not reported terminal")
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(prev, next *Session)
		wantErr bool
	}{
		{
			name:   "no change",
			mutate: func(prev, next *Session) {},
		},
		{
			name: "single step advance",
			mutate: func(prev, next *Session) {
				next.CurrentStageIndex = 1
			},
		},
		{
			name: "flag set",
			mutate: func(prev, next *Session) {
				next.ProtocolFlags["x"] = true
			},
		},
		{
			name: "completion at terminal stage",
			mutate: func(prev, next *Session) {
				prev.CurrentStageIndex = 2
				next.CurrentStageIndex = 2
				next.Status = StatusCompleted
			},
		},
		{
			name: "id change",
			mutate: func(prev, next *Session) {
				next.ID = "other"
			},
			wantErr: true,
		},
		{
			name: "stage list mutated",
			mutate: func(prev, next *Session) {
				next.Stages[1] = "z"
			},
			wantErr: true,
		},
		{
			name: "stage index decreased",
			mutate: func(prev, next *Session) {
				prev.CurrentStageIndex = 2
				next.CurrentStageIndex = 1
			},
			wantErr: true,
		},
		{
			name: "stage skipped",
			mutate: func(prev, next *Session) {
				next.CurrentStageIndex = 2
			},
			wantErr: true,
		},
		{
			name: "stage index out of range",
			mutate: func(prev, next *Session) {
				prev.CurrentStageIndex = 2
				next.CurrentStageIndex = 3
			},
			wantErr: true,
		},
		{
			name: "flag removed",
			mutate: func(prev, next *Session) {
				delete(next.ProtocolFlags, "y")
			},
			wantErr: true,
		},
		{
			name: "flag reverted",
			mutate: func(prev, next *Session) {
				prev.ProtocolFlags["x"] = true
				next.ProtocolFlags["x"] = false
			},
			wantErr: true,
		},
		{
			name: "flag added",
			mutate: func(prev, next *Session) {
				next.ProtocolFlags["z"] = true
			},
			wantErr: true,
		},
		{
			name: "terminal status changed",
			mutate: func(prev, next *Session) {
				prev.Status = StatusCompleted
				prev.CurrentStageIndex = 2
				next.CurrentStageIndex = 2
				next.Status = StatusAbandoned
			},
			wantErr: true,
		},
		{
			name: "completed before terminal stage",
			mutate: func(prev, next *Session) {
				next.Status = StatusCompleted
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := newTestSession()
			next := prev.Clone()
			tt.mutate(prev, next)

			err := ValidateTransition(prev, next)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
