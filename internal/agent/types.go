// Package agent defines the contract with the external conversational
// backend and its HTTP implementation.
package agent

import "github.com/emergensee/emergensee-server/internal/domain"

// Personas a learner may address. The backend may answer as a different
// persona (e.g. route a question to a specialist); the reply carries the
// persona that actually answered.
const (
	PersonaAttendingPhysician = "attending-physician"
	PersonaNurse              = "nurse"
	PersonaCoordinatingAgent  = "coordinating-agent"
)

// ValidPersona reports whether p is a persona a learner may request.
func ValidPersona(p string) bool {
	switch p {
	case PersonaAttendingPhysician, PersonaNurse, PersonaCoordinatingAgent:
		return true
	}
	return false
}

// Request is one outbound exchange to the conversational backend. It carries
// everything the backend needs to reason about the scenario: the learner's
// text, the requested persona, the stage, the protocol flag snapshot, and the
// patient case. No internal session identifiers are exposed.
type Request struct {
	Message       string             `json:"message"`
	Persona       string             `json:"persona"`
	Stage         string             `json:"stage"`
	StageIndex    int                `json:"stage_index"`
	ProtocolFlags map[string]bool    `json:"protocol_flags"`
	Patient       domain.PatientCase `json:"patient"`
}

// Reply is the backend's parsed answer. StageIndex and FlagDeltas are
// advisory proposals; the session engine decides what to apply.
type Reply struct {
	Text       string
	Persona    string
	StageIndex *int
	FlagDeltas map[string]bool
}
