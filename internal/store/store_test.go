package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/redis/go-redis/v9"
)

// backends returns one freshly initialized repository per backend so every
// test case runs against all of them.
func backends(t *testing.T) map[string]Repository {
	t.Helper()

	sqliteStore, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := sqliteStore.Close(); err != nil {
			t.Errorf("close sqlite store: %v", err)
		}
	})

	mr := miniredis.RunT(t)
	redisStore, err := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func testSession(id, userID string) *domain.Session {
	now := time.Now().Truncate(time.Second)
	return &domain.Session{
		ID:                id,
		UserID:            userID,
		ModuleID:          "emergency-triage",
		ScenarioID:        1,
		Stages:            []string{"one", "two", "three"},
		CurrentStageIndex: 0,
		ProtocolFlags:     map[string]bool{"f1": false, "f2": false},
		Status:            domain.StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func testEntry(sessionID, text string) *domain.TranscriptEntry {
	return &domain.TranscriptEntry{
		ID:        fmt.Sprintf("entry-%s-%d", sessionID, time.Now().UnixNano()),
		SessionID: sessionID,
		Author:    domain.AuthorLearner,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testSession("s1", "u1")

			if err := repo.CreateSession(ctx, want); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			got, err := repo.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if got.ID != want.ID || got.UserID != want.UserID || got.ModuleID != want.ModuleID {
				t.Errorf("GetSession() = %+v, want %+v", got, want)
			}
			if len(got.Stages) != 3 || got.Stages[1] != "two" {
				t.Errorf("stages = %v", got.Stages)
			}
			if len(got.ProtocolFlags) != 2 || got.ProtocolFlags["f1"] {
				t.Errorf("flags = %v", got.ProtocolFlags)
			}
			if got.Status != domain.StatusActive {
				t.Errorf("status = %q", got.Status)
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.GetSession(context.Background(), "ghost"); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("GetSession(ghost) error = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestCreateSessionEnforcesSingleActive(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.CreateSession(ctx, testSession("s1", "u1")); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			err := repo.CreateSession(ctx, testSession("s2", "u1"))
			if !errors.Is(err, domain.ErrAlreadyActiveSession) {
				t.Fatalf("second CreateSession() error = %v, want ErrAlreadyActiveSession", err)
			}

			// A different learner's session coexists.
			if err := repo.CreateSession(ctx, testSession("s3", "u2")); err != nil {
				t.Errorf("CreateSession(other user) error = %v", err)
			}
		})
	}
}

func TestClosingSessionFreesActiveSlot(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := testSession("s1", "u1")
			if err := repo.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			s.Status = domain.StatusAbandoned
			if err := repo.PutSession(ctx, s); err != nil {
				t.Fatalf("PutSession() error = %v", err)
			}

			if _, err := repo.FindActiveSession(ctx, "u1", "emergency-triage", 1); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("FindActiveSession() after close error = %v, want ErrSessionNotFound", err)
			}
			if err := repo.CreateSession(ctx, testSession("s2", "u1")); err != nil {
				t.Errorf("CreateSession() after close error = %v", err)
			}
		})
	}
}

func TestFindActiveSession(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.CreateSession(ctx, testSession("s1", "u1")); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			got, err := repo.FindActiveSession(ctx, "u1", "emergency-triage", 1)
			if err != nil {
				t.Fatalf("FindActiveSession() error = %v", err)
			}
			if got.ID != "s1" {
				t.Errorf("FindActiveSession() id = %q, want s1", got.ID)
			}

			if _, err := repo.FindActiveSession(ctx, "u1", "emergency-triage", 2); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("FindActiveSession(no match) error = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestPutSessionNotFound(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.PutSession(context.Background(), testSession("ghost", "u1"))
			if !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("PutSession(ghost) error = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestTranscriptAppendAndList(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.CreateSession(ctx, testSession("s1", "u1")); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			for i, text := range []string{"first", "second", "third"} {
				e := testEntry("s1", text)
				e.ID = fmt.Sprintf("e%d", i+1)
				if err := repo.AppendTranscript(ctx, e); err != nil {
					t.Fatalf("AppendTranscript(%q) error = %v", text, err)
				}
				if e.Seq != int64(i+1) {
					t.Errorf("entry %q seq = %d, want %d", text, e.Seq, i+1)
				}
			}

			all, err := repo.ListTranscript(ctx, "s1", 0)
			if err != nil {
				t.Fatalf("ListTranscript() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("ListTranscript() = %d entries, want 3", len(all))
			}
			for i, e := range all {
				if e.Seq != int64(i+1) {
					t.Errorf("entry %d seq = %d", i, e.Seq)
				}
			}
			if all[0].Text != "first" || all[2].Text != "third" {
				t.Errorf("entries out of order: %q, %q", all[0].Text, all[2].Text)
			}

			tail, err := repo.ListTranscript(ctx, "s1", 1)
			if err != nil {
				t.Fatalf("ListTranscript(after=1) error = %v", err)
			}
			if len(tail) != 2 || tail[0].Text != "second" {
				t.Errorf("ListTranscript(after=1) = %d entries, first %q", len(tail), tail[0].Text)
			}
		})
	}
}

func TestTranscriptRejectsClosedSession(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := testSession("s1", "u1")
			if err := repo.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}
			s.Status = domain.StatusCompleted
			s.CurrentStageIndex = 2
			if err := repo.PutSession(ctx, s); err != nil {
				t.Fatalf("PutSession() error = %v", err)
			}

			err := repo.AppendTranscript(ctx, testEntry("s1", "too late"))
			if !errors.Is(err, domain.ErrSessionClosed) {
				t.Errorf("AppendTranscript(closed) error = %v, want ErrSessionClosed", err)
			}
		})
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.AppendTranscript(ctx, testEntry("ghost", "hi")); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("AppendTranscript(ghost) error = %v, want ErrSessionNotFound", err)
			}
			if _, err := repo.ListTranscript(ctx, "ghost", 0); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("ListTranscript(ghost) error = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestGetExpiredSessions(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stale := testSession("stale", "u1")
			stale.CreatedAt = time.Now().Add(-2 * time.Hour).Truncate(time.Second)
			stale.UpdatedAt = stale.CreatedAt
			if err := repo.CreateSession(ctx, stale); err != nil {
				t.Fatalf("CreateSession(stale) error = %v", err)
			}

			fresh := testSession("fresh", "u2")
			if err := repo.CreateSession(ctx, fresh); err != nil {
				t.Fatalf("CreateSession(fresh) error = %v", err)
			}

			expired, err := repo.GetExpiredSessions(ctx, time.Hour)
			if err != nil {
				t.Fatalf("GetExpiredSessions() error = %v", err)
			}
			if len(expired) != 1 || expired[0].ID != "stale" {
				t.Errorf("GetExpiredSessions() = %+v, want only the stale session", expired)
			}
		})
	}
}

func TestPing(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := repo.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}
