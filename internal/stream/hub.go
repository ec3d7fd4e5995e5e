// Package stream provides WebSocket-based live transcript streaming.
package stream

import (
	"log/slog"
	"sync"

	"github.com/emergensee/emergensee-server/internal/domain"
)

const subscriberBuffer = 64

// Hub fans out transcript entries to WebSocket subscribers per session.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []*domain.TranscriptEntry]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan []*domain.TranscriptEntry]struct{}),
	}
}

// Subscribe registers a listener for a session's transcript. The returned
// cancel func must be called when the listener is done.
func (h *Hub) Subscribe(sessionID string) (<-chan []*domain.TranscriptEntry, func()) {
	ch := make(chan []*domain.TranscriptEntry, subscriberBuffer)

	h.mu.Lock()
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[chan []*domain.TranscriptEntry]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers new transcript entries to every subscriber of a session.
// Slow subscribers are skipped rather than blocking the exchange path.
func (h *Hub) Publish(sessionID string, entries []*domain.TranscriptEntry) {
	if len(entries) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- entries:
		default:
			slog.Warn("transcript subscriber lagging, dropping update", "session_id", sessionID)
		}
	}
}

// SubscriberCount reports how many listeners a session currently has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
