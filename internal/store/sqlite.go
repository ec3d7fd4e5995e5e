package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/emergensee/emergensee-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes multi-statement writes to prevent SQLITE_BUSY
}

const (
	writeMaxRetries = 3
	writeBaseDelay  = 50 * time.Millisecond
)

// withWriteRetry runs fn, retrying with exponential backoff when SQLite
// reports the database busy or locked. Other errors return immediately.
func withWriteRetry(fn func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < writeMaxRetries-1 {
			delay := writeBaseDelay * time.Duration(1<<i)
			slog.Debug("sqlite write busy, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("write failed after %d attempts: %w", writeMaxRetries, err)
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		module_id TEXT NOT NULL,
		scenario_id INTEGER NOT NULL,
		stages_json TEXT NOT NULL,
		current_stage INTEGER NOT NULL,
		flags_json TEXT NOT NULL,
		stage_exchanges INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active
		ON sessions(user_id, module_id, scenario_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS transcript (
		entry_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		stage_index INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session row. The partial unique index on active
// sessions enforces one active session per (user, module, scenario) triple.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stagesJSON, flagsJSON, err := encodeSessionJSON(sess)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO sessions (
		session_id, user_id, module_id, scenario_id, stages_json,
		current_stage, flags_json, stage_exchanges, status, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = withWriteRetry(func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sess.ID, sess.UserID, sess.ModuleID, sess.ScenarioID, stagesJSON,
			sess.CurrentStageIndex, flagsJSON, sess.StageExchanges, string(sess.Status),
			sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		if shared.IsUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s/%s/%d", domain.ErrAlreadyActiveSession, sess.UserID, sess.ModuleID, sess.ScenarioID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, module_id, scenario_id, stages_json,
		       current_stage, flags_json, stage_exchanges, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// PutSession overwrites an existing session's mutable state.
func (s *SQLiteStore) PutSession(ctx context.Context, sess *domain.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, flagsJSON, err := encodeSessionJSON(sess)
	if err != nil {
		return err
	}

	query := `
	UPDATE sessions SET
		current_stage = ?, flags_json = ?, stage_exchanges = ?, status = ?, updated_at = ?
	WHERE session_id = ?`

	var rows int64
	err = withWriteRetry(func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			sess.CurrentStageIndex, flagsJSON, sess.StageExchanges, string(sess.Status),
			sess.UpdatedAt.Unix(), sess.ID,
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sess.ID)
	}
	return nil
}

// FindActiveSession returns the active session for the triple.
func (s *SQLiteStore) FindActiveSession(ctx context.Context, userID, moduleID string, scenarioID int) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, module_id, scenario_id, stages_json,
		       current_stage, flags_json, stage_exchanges, status, created_at, updated_at
		FROM sessions WHERE user_id = ? AND module_id = ? AND scenario_id = ? AND status = 'active'`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, userID, moduleID, scenarioID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active session for %s/%s/%d", domain.ErrSessionNotFound, userID, moduleID, scenarioID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// AppendTranscript appends one entry inside a transaction, assigning the next
// per-session sequence number.
func (s *SQLiteStore) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript append: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("transcript append rollback failed", "error", rbErr)
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE session_id = ?`, entry.SessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, entry.SessionID)
	}
	if err != nil {
		return fmt.Errorf("check session status: %w", err)
	}
	if domain.SessionStatus(status) != domain.StatusActive {
		return fmt.Errorf("%w: %s", domain.ErrSessionClosed, entry.SessionID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript WHERE session_id = ?`, entry.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next transcript seq: %w", err)
	}
	entry.Seq = seq

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcript (entry_id, session_id, seq, author, body, stage_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.Seq, entry.Author, entry.Text,
		entry.StageIndex, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert transcript entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript append: %w", err)
	}
	return nil
}

// ListTranscript returns entries after the given sequence number in order.
func (s *SQLiteStore) ListTranscript(ctx context.Context, sessionID string, afterSeq int64) ([]*domain.TranscriptEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `
		SELECT entry_id, session_id, seq, author, body, stage_index, created_at
		FROM transcript WHERE session_id = ? AND seq > ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var entries []*domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Author, &e.Text, &e.StageIndex, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return entries, nil
}

// GetExpiredSessions returns active sessions idle for at least the given duration.
func (s *SQLiteStore) GetExpiredSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	threshold := time.Now().Add(-idle).Unix()
	query := `
		SELECT session_id, user_id, module_id, scenario_id, stages_json,
		       current_stage, flags_json, stage_exchanges, status, created_at, updated_at
		FROM sessions WHERE status = 'active' AND updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var stagesJSON, flagsJSON, status string
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.ModuleID, &sess.ScenarioID, &stagesJSON,
		&sess.CurrentStageIndex, &flagsJSON, &sess.StageExchanges, &status,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stagesJSON), &sess.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &sess.ProtocolFlags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	sess.Status = domain.SessionStatus(status)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

func encodeSessionJSON(sess *domain.Session) (stages string, flags string, err error) {
	stagesBytes, err := json.Marshal(sess.Stages)
	if err != nil {
		return "", "", fmt.Errorf("encode stages: %w", err)
	}
	flagsBytes, err := json.Marshal(sess.ProtocolFlags)
	if err != nil {
		return "", "", fmt.Errorf("encode flags: %w", err)
	}
	return string(stagesBytes), string(flagsBytes), nil
}
