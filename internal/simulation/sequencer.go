package simulation

import "github.com/emergensee/emergensee-server/internal/domain"

// Advance moves the session one stage forward if its current gate is
// satisfied. Transitions are strictly sequential: from stage i the only
// reachable stage is i+1.
//
// On the terminal stage a satisfied gate completes the session instead of
// advancing, exactly once; the returned error is domain.ErrAlreadyTerminal, a
// soft signal callers log but never propagate as a request failure.
func Advance(def *domain.ScenarioDef, s *domain.Session) (advanced bool, err error) {
	if !StageSatisfied(def, s) {
		return false, nil
	}
	if s.AtTerminalStage() {
		if s.Status == domain.StatusActive {
			s.Status = domain.StatusCompleted
		}
		return false, domain.ErrAlreadyTerminal
	}
	s.CurrentStageIndex++
	s.StageExchanges = 0
	return true, nil
}
