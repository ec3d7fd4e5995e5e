// Package store provides session and transcript persistence.
package store

import (
	"context"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// Repository persists sessions and their transcripts. Each method is atomic;
// partial writes are never observable to readers. Per-session write
// serialization is the engine's job (it holds a lock per session id), so
// implementations only need to make individual operations safe.
type Repository interface {
	// CreateSession inserts a new session. Fails with ErrAlreadyActiveSession
	// if an active session already exists for the same
	// (user, module, scenario) triple.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session by id, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// PutSession overwrites an existing session's state, or ErrSessionNotFound.
	// Invariants are validated by the engine before calling this.
	PutSession(ctx context.Context, s *domain.Session) error

	// FindActiveSession returns the active session for the triple, or
	// ErrSessionNotFound when none exists.
	FindActiveSession(ctx context.Context, userID, moduleID string, scenarioID int) (*domain.Session, error)

	// AppendTranscript appends one entry, assigning the next per-session
	// sequence number to entry.Seq. Fails with ErrSessionNotFound for unknown
	// sessions and ErrSessionClosed once the session is completed or
	// abandoned, so a late agent reply can never land in a closed session.
	AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error

	// ListTranscript returns entries with Seq > afterSeq in sequence order.
	// Pass afterSeq 0 for the full transcript. Reads are stable: repeated
	// calls without intervening writes return identical results.
	ListTranscript(ctx context.Context, sessionID string, afterSeq int64) ([]*domain.TranscriptEntry, error)

	// GetExpiredSessions returns active sessions with no update for at least
	// idle. Used by the abandonment sweeper.
	GetExpiredSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error)

	// Ping verifies backing-store connectivity.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}
