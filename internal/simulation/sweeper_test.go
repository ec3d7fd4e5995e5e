package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

func TestSweeperAbandonsIdleSessions(t *testing.T) {
	engine := newTestEngine(t, &stubBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.now = func() time.Time { return time.Now().Add(-time.Hour) }
	sess, err := engine.CreateSession(ctx, "u1", "emergency-triage", 1)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	engine.now = time.Now

	StartSweeper(ctx, engine, 30*time.Minute, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		snap, err := engine.Snapshot(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if snap.Session.Status == domain.StatusAbandoned {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session still %q after sweep window", snap.Session.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
