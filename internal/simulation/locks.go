package simulation

import "sync"

// sessionLocks serializes updates per session id. A UI double-submit must not
// interleave two dispatches on the same session; different sessions proceed
// in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for the session id and returns its unlock func.
func (l *sessionLocks) Acquire(sessionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
