package agent

import "context"

// Backend is the pluggable conversational backend. The real implementation
// talks HTTP/JSON to the agent service; tests substitute a deterministic stub
// implementing the same request→reply contract.
type Backend interface {
	// Converse sends one exchange and returns the parsed reply. It fails with
	// domain.ErrAgentUnavailable when the backend cannot be reached within
	// the bounded timeout, and domain.ErrMalformedAgentResponse when the
	// answer cannot be parsed.
	Converse(ctx context.Context, req Request) (*Reply, error)
}
