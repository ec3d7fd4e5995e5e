package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Repository on Redis: sessions as JSON values, the
// transcript as a per-session list, and a SETNX key per
// (user, module, scenario) triple as the active-session guard.
type RedisStore struct {
	client *redis.Client
}

var _ Repository = (*RedisStore)(nil)

// NewRedis creates a Redis-backed repository using the given client.
func NewRedis(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client}, nil
}

func sessionKey(id string) string    { return "session:" + id }
func transcriptKey(id string) string { return "transcript:" + id }
func activeIndexKey(userID, moduleID string, scenarioID int) string {
	return fmt.Sprintf("active:%s:%s:%d", userID, moduleID, scenarioID)
}

const activeSetKey = "sessions:active"

// CreateSession inserts a new session, claiming the triple's active slot.
func (r *RedisStore) CreateSession(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	indexKey := activeIndexKey(s.UserID, s.ModuleID, s.ScenarioID)
	claimed, err := r.client.SetNX(ctx, indexKey, s.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim active slot: %w", err)
	}
	if !claimed {
		existingID, _ := r.client.Get(ctx, indexKey).Result()
		return fmt.Errorf("%w: session %s", domain.ErrAlreadyActiveSession, existingID)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, 0)
	pipe.SAdd(ctx, activeSetKey, s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		// Roll back the claim so a retry is possible.
		r.client.Del(ctx, indexKey)
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// PutSession overwrites an existing session's state.
func (r *RedisStore) PutSession(ctx context.Context, s *domain.Session) error {
	prev, err := r.GetSession(ctx, s.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, 0)
	if prev.Status == domain.StatusActive && s.Status != domain.StatusActive {
		pipe.Del(ctx, activeIndexKey(s.UserID, s.ModuleID, s.ScenarioID))
		pipe.SRem(ctx, activeSetKey, s.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// FindActiveSession returns the active session for the triple.
func (r *RedisStore) FindActiveSession(ctx context.Context, userID, moduleID string, scenarioID int) (*domain.Session, error) {
	id, err := r.client.Get(ctx, activeIndexKey(userID, moduleID, scenarioID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no active session for %s/%s/%d", domain.ErrSessionNotFound, userID, moduleID, scenarioID)
	}
	if err != nil {
		return nil, fmt.Errorf("load active index: %w", err)
	}
	return r.GetSession(ctx, id)
}

// AppendTranscript appends one entry with the next sequence number.
func (r *RedisStore) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	s, err := r.GetSession(ctx, entry.SessionID)
	if err != nil {
		return err
	}
	if s.Closed() {
		return fmt.Errorf("%w: %s", domain.ErrSessionClosed, entry.SessionID)
	}

	length, err := r.client.LLen(ctx, transcriptKey(entry.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("transcript length: %w", err)
	}
	entry.Seq = length + 1

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	if err := r.client.RPush(ctx, transcriptKey(entry.SessionID), data).Err(); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// ListTranscript returns entries after the given sequence number in order.
func (r *RedisStore) ListTranscript(ctx context.Context, sessionID string, afterSeq int64) ([]*domain.TranscriptEntry, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	// Seq numbers are list positions + 1, so the tail after afterSeq starts
	// at list index afterSeq.
	raw, err := r.client.LRange(ctx, transcriptKey(sessionID), afterSeq, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	entries := make([]*domain.TranscriptEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.TranscriptEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode transcript entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// GetExpiredSessions returns active sessions idle for at least the given duration.
func (r *RedisStore) GetExpiredSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load active set: %w", err)
	}

	threshold := time.Now().Add(-idle)
	var out []*domain.Session
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Stale set member; drop it.
			r.client.SRem(ctx, activeSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Status == domain.StatusActive && s.UpdatedAt.Before(threshold) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Ping verifies Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
