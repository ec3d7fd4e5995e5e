package domain

import "errors"

// Error taxonomy surfaced by the session engine. Handlers map these to HTTP
// status codes; everything else is treated as an internal error.
var (
	// ErrUnknownCase means no patient case exists for the (module, scenario) pair.
	ErrUnknownCase = errors.New("unknown case")

	// ErrAlreadyActiveSession means an active session already exists for the
	// (user, module, scenario) triple.
	ErrAlreadyActiveSession = errors.New("session already active")

	// ErrSessionNotFound means no session exists with the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed means the session is completed or abandoned and accepts
	// no further exchanges or transcript entries.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvariantViolation means an update would have broken a session
	// invariant. The offending update is discarded; nothing is committed.
	ErrInvariantViolation = errors.New("session invariant violation")

	// ErrAlreadyTerminal is the soft signal that an advance was attempted from
	// the terminal stage. It is never surfaced as a request failure.
	ErrAlreadyTerminal = errors.New("already at terminal stage")

	// ErrAgentUnavailable means the conversational backend could not be
	// reached or did not answer within the dispatch timeout.
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrMalformedAgentResponse means the backend answered but the reply could
	// not be parsed. The session stays active; the learner may retry.
	ErrMalformedAgentResponse = errors.New("malformed agent response")
)
