package simulation

import "github.com/emergensee/emergensee-server/internal/domain"

// StageSatisfied reports whether the gate for the session's current stage
// holds. It is a pure predicate over the session snapshot and never mutates
// state.
//
// A stage with no required flags is satisfied only after at least one
// exchange has happened within it; without that rule an empty-gate stage
// would advance immediately and cascade through the sequence.
func StageSatisfied(def *domain.ScenarioDef, s *domain.Session) bool {
	required := def.RequiredFlags(s.CurrentStageIndex)
	if len(required) == 0 {
		return s.StageExchanges > 0
	}
	for _, name := range required {
		if !s.ProtocolFlags[name] {
			return false
		}
	}
	return true
}
