package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// MemoryStore implements Repository with in-process maps. Suitable for a
// single-process deployment and for tests.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.Session
	active      map[string]string // (user,module,scenario) key -> session id
	transcripts map[string][]*domain.TranscriptEntry
}

var _ Repository = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*domain.Session),
		active:      make(map[string]string),
		transcripts: make(map[string][]*domain.TranscriptEntry),
	}
}

func tripleKey(userID, moduleID string, scenarioID int) string {
	return fmt.Sprintf("%s|%s|%d", userID, moduleID, scenarioID)
}

// CreateSession inserts a new session, enforcing one active session per triple.
func (m *MemoryStore) CreateSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tripleKey(s.UserID, s.ModuleID, s.ScenarioID)
	if existingID, ok := m.active[key]; ok {
		return fmt.Errorf("%w: session %s", domain.ErrAlreadyActiveSession, existingID)
	}
	m.sessions[s.ID] = s.Clone()
	m.active[key] = s.ID
	return nil
}

// GetSession retrieves a session by id.
func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return s.Clone(), nil
}

// PutSession overwrites an existing session's state.
func (m *MemoryStore) PutSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, s.ID)
	}
	m.sessions[s.ID] = s.Clone()

	// Leaving the active status frees the triple for a new session.
	if prev.Status == domain.StatusActive && s.Status != domain.StatusActive {
		delete(m.active, tripleKey(s.UserID, s.ModuleID, s.ScenarioID))
	}
	return nil
}

// FindActiveSession returns the active session for the triple.
func (m *MemoryStore) FindActiveSession(ctx context.Context, userID, moduleID string, scenarioID int) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[tripleKey(userID, moduleID, scenarioID)]
	if !ok {
		return nil, fmt.Errorf("%w: no active session for %s/%s/%d", domain.ErrSessionNotFound, userID, moduleID, scenarioID)
	}
	return m.sessions[id].Clone(), nil
}

// AppendTranscript appends one entry with the next sequence number.
func (m *MemoryStore) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[entry.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, entry.SessionID)
	}
	if s.Closed() {
		return fmt.Errorf("%w: %s", domain.ErrSessionClosed, entry.SessionID)
	}
	entry.Seq = int64(len(m.transcripts[entry.SessionID])) + 1
	e := *entry
	m.transcripts[entry.SessionID] = append(m.transcripts[entry.SessionID], &e)
	return nil
}

// ListTranscript returns entries after the given sequence number.
func (m *MemoryStore) ListTranscript(ctx context.Context, sessionID string, afterSeq int64) ([]*domain.TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	var out []*domain.TranscriptEntry
	for _, e := range m.transcripts[sessionID] {
		if e.Seq > afterSeq {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// GetExpiredSessions returns active sessions idle for at least the given duration.
func (m *MemoryStore) GetExpiredSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threshold := time.Now().Add(-idle)
	var out []*domain.Session
	for _, id := range m.active {
		s := m.sessions[id]
		if s.UpdatedAt.Before(threshold) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
