package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// StatusActive means the learner may still exchange messages.
	StatusActive SessionStatus = "active"
	// StatusCompleted means the terminal stage's gate was satisfied.
	StatusCompleted SessionStatus = "completed"
	// StatusAbandoned means the learner exited or the session timed out.
	StatusAbandoned SessionStatus = "abandoned"
)

// Session is one learner's run through a scenario. The stage index only ever
// increases one step at a time, and flags never revert to false once set.
type Session struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	ModuleID   string `json:"module_id"`
	ScenarioID int    `json:"scenario_id"`

	Stages            []string        `json:"stages"`
	CurrentStageIndex int             `json:"current_stage_index"`
	ProtocolFlags     map[string]bool `json:"protocol_flags"`

	// StageExchanges counts completed learner/agent exchanges within the
	// current stage. Reset to zero on every stage advance. Empty-gate stages
	// require at least one exchange before auto-advancing.
	StageExchanges int `json:"stage_exchanges"`

	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Stages = slices.Clone(s.Stages)
	c.ProtocolFlags = maps.Clone(s.ProtocolFlags)
	return &c
}

// Closed reports whether the session no longer accepts exchanges.
func (s *Session) Closed() bool {
	return s.Status != StatusActive
}

// AtTerminalStage reports whether the session sits on its last stage.
func (s *Session) AtTerminalStage() bool {
	return s.CurrentStageIndex == len(s.Stages)-1
}

// CurrentStage returns the identifier of the current stage.
func (s *Session) CurrentStage() string {
	if s.CurrentStageIndex < 0 || s.CurrentStageIndex >= len(s.Stages) {
		return ""
	}
	return s.Stages[s.CurrentStageIndex]
}

// ValidateTransition checks the session invariants for an update from prev to
// next. It returns a descriptive error on the first violation; callers commit
// the update only when it returns nil.
func ValidateTransition(prev, next *Session) error {
	if prev.ID != next.ID {
		return fmt.Errorf("session id changed from %q to %q", prev.ID, next.ID)
	}
	if !slices.Equal(prev.Stages, next.Stages) {
		return fmt.Errorf("stage list mutated for session %s", next.ID)
	}
	if next.CurrentStageIndex < 0 || next.CurrentStageIndex >= len(next.Stages) {
		return fmt.Errorf("stage index %d out of range [0,%d)", next.CurrentStageIndex, len(next.Stages))
	}
	if next.CurrentStageIndex < prev.CurrentStageIndex {
		return fmt.Errorf("stage index decreased from %d to %d", prev.CurrentStageIndex, next.CurrentStageIndex)
	}
	if next.CurrentStageIndex > prev.CurrentStageIndex+1 {
		return fmt.Errorf("stage index skipped from %d to %d", prev.CurrentStageIndex, next.CurrentStageIndex)
	}
	for name, was := range prev.ProtocolFlags {
		now, ok := next.ProtocolFlags[name]
		if !ok {
			return fmt.Errorf("flag %q removed", name)
		}
		if was && !now {
			return fmt.Errorf("flag %q reverted to false", name)
		}
	}
	if len(next.ProtocolFlags) != len(prev.ProtocolFlags) {
		return fmt.Errorf("flag set changed size from %d to %d", len(prev.ProtocolFlags), len(next.ProtocolFlags))
	}
	if prev.Closed() && prev.Status != next.Status {
		return fmt.Errorf("status changed from terminal %q to %q", prev.Status, next.Status)
	}
	if next.Status == StatusCompleted && !next.AtTerminalStage() {
		return fmt.Errorf("completed at stage index %d of %d", next.CurrentStageIndex, len(next.Stages)-1)
	}
	return nil
}
