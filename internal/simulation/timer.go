package simulation

import (
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// Elapsed returns the wall-clock time since session start. It is a pure
// derivation from the creation timestamp; nothing ticks and nothing is
// stored, so display polling cannot drift.
func Elapsed(s *domain.Session, now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// IsOvertime reports whether the session has run past the scenario's target
// duration. It is a read signal only; overtime never closes a session.
func IsOvertime(s *domain.Session, target time.Duration, now time.Time) bool {
	return Elapsed(s, now) > target
}
