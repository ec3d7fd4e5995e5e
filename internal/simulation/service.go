// Package simulation implements the scenario session state machine: session
// creation, stage sequencing, protocol gates, message dispatch through the
// conversational backend, and the append-only transcript.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emergensee/emergensee-server/internal/agent"
	"github.com/emergensee/emergensee-server/internal/catalog"
	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/emergensee/emergensee-server/internal/observability/metrics"
	"github.com/emergensee/emergensee-server/internal/store"
	"github.com/google/uuid"
)

// Service is the session engine. All session mutations flow through it, under
// a per-session lock, with invariants re-validated before every commit.
type Service struct {
	repo    store.Repository
	catalog *catalog.Catalog
	backend agent.Backend
	metrics *metrics.SimulationMetrics
	locks   *sessionLocks
	now     func() time.Time
}

// New creates the session engine. metrics may be nil.
func New(repo store.Repository, cat *catalog.Catalog, backend agent.Backend, m *metrics.SimulationMetrics) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		backend: backend,
		metrics: m,
		locks:   newSessionLocks(),
		now:     time.Now,
	}
}

// Snapshot is the session state returned to the UI.
type Snapshot struct {
	Session    *domain.Session           `json:"session"`
	Patient    domain.PatientCase        `json:"patient"`
	Transcript []*domain.TranscriptEntry `json:"transcript"`
	Elapsed    time.Duration             `json:"-"`
	Overtime   bool                      `json:"overtime"`
}

// DispatchResult is the outcome of one successful learner/agent exchange.
type DispatchResult struct {
	ReplyText  string                    `json:"reply"`
	Persona    string                    `json:"persona"`
	StageIndex int                       `json:"stage_index"`
	Flags      map[string]bool           `json:"flags"`
	Completed  bool                      `json:"completed"`
	Entries    []*domain.TranscriptEntry `json:"entries"`
}

// CreateSession creates a session bound to the (module, scenario) patient
// case, at stage 0 with every protocol flag false. An active session for the
// same (user, module, scenario) triple fails with ErrAlreadyActiveSession.
func (s *Service) CreateSession(ctx context.Context, userID, moduleID string, scenarioID int) (*domain.Session, error) {
	def, err := s.catalog.Lookup(moduleID, scenarioID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &domain.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		ModuleID:          moduleID,
		ScenarioID:        scenarioID,
		Stages:            def.Stages,
		CurrentStageIndex: 0,
		ProtocolFlags:     def.NewFlagSet(),
		Status:            domain.StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if def.OpeningLine != "" {
		opening := s.newEntry(sess, domain.AuthorPatient, def.OpeningLine)
		if err := s.repo.AppendTranscript(ctx, opening); err != nil {
			return nil, fmt.Errorf("append opening line: %w", err)
		}
	}

	s.metrics.ObserveSessionCreated(moduleID)
	slog.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"module_id", moduleID,
		"scenario_id", scenarioID,
		"patient", def.Patient.Name,
	)
	return sess.Clone(), nil
}

// Snapshot returns the session, its patient case, the full transcript, and
// the timer signals.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.catalog.Lookup(sess.ModuleID, sess.ScenarioID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.repo.ListTranscript(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &Snapshot{
		Session:    sess,
		Patient:    def.Patient,
		Transcript: transcript,
		Elapsed:    Elapsed(sess, now),
		Overtime:   IsOvertime(sess, def.TargetDuration, now),
	}, nil
}

// TranscriptSince returns transcript entries after the given sequence number.
func (s *Service) TranscriptSince(ctx context.Context, sessionID string, afterSeq int64) ([]*domain.TranscriptEntry, error) {
	return s.repo.ListTranscript(ctx, sessionID, afterSeq)
}

// Dispatch routes one learner message to the conversational backend and folds
// the reply back into the session: transcript entries for both sides of the
// exchange, flag deltas, and a stage-advance check.
//
// On backend failure the learner's entry is kept (the record reflects what
// was attempted), no reply entry is appended, and flags are unchanged. No
// retries happen here; retry policy belongs to the caller.
func (s *Service) Dispatch(ctx context.Context, sessionID, persona, learnerText string) (*DispatchResult, error) {
	if learnerText == "" {
		return nil, fmt.Errorf("learner text is empty")
	}
	if !agent.ValidPersona(persona) {
		return nil, fmt.Errorf("unknown persona %q", persona)
	}

	unlock := s.locks.Acquire(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, sessionID, sess.Status)
	}
	def, err := s.catalog.Lookup(sess.ModuleID, sess.ScenarioID)
	if err != nil {
		return nil, err
	}

	learnerEntry := s.newEntry(sess, domain.AuthorLearner, learnerText)
	if err := s.repo.AppendTranscript(ctx, learnerEntry); err != nil {
		return nil, err
	}

	reply, err := s.backend.Converse(ctx, agent.Request{
		Message:       learnerText,
		Persona:       persona,
		Stage:         sess.CurrentStage(),
		StageIndex:    sess.CurrentStageIndex,
		ProtocolFlags: sess.Clone().ProtocolFlags,
		Patient:       def.Patient,
	})
	if err != nil {
		s.metrics.ObserveDispatch(dispatchOutcome(err))
		slog.Warn("agent exchange failed",
			"session_id", sessionID,
			"persona", persona,
			"error", err,
		)
		return nil, err
	}

	replyEntry := s.newEntry(sess, reply.Persona, reply.Text)
	if err := s.repo.AppendTranscript(ctx, replyEntry); err != nil {
		return nil, err
	}

	prev := sess.Clone()
	s.applyFlagDeltas(def, sess, reply.FlagDeltas)
	sess.StageExchanges++

	advanced, advErr := Advance(def, sess)
	if advanced {
		s.metrics.ObserveStageAdvance()
		slog.Info("stage advanced",
			"session_id", sessionID,
			"stage_index", sess.CurrentStageIndex,
			"stage", sess.CurrentStage(),
		)
	}
	if errors.Is(advErr, domain.ErrAlreadyTerminal) && sess.Status == domain.StatusCompleted {
		slog.Info("session completed", "session_id", sessionID)
	}
	if reply.StageIndex != nil && *reply.StageIndex != sess.CurrentStageIndex {
		// The backend's stage proposal is advisory; the sequencer owns transitions.
		slog.Warn("backend stage proposal ignored",
			"session_id", sessionID,
			"proposed", *reply.StageIndex,
			"actual", sess.CurrentStageIndex,
		)
	}

	sess.UpdatedAt = s.now()
	if err := domain.ValidateTransition(prev, sess); err != nil {
		s.metrics.ObserveDispatch("invariant_violation")
		return nil, fmt.Errorf("%w: %v", domain.ErrInvariantViolation, err)
	}
	if err := s.repo.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Status == domain.StatusCompleted {
		s.metrics.ObserveSessionClosed(string(domain.StatusCompleted))
	}
	s.metrics.ObserveDispatch("ok")

	return &DispatchResult{
		ReplyText:  reply.Text,
		Persona:    replyEntry.Author,
		StageIndex: sess.CurrentStageIndex,
		Flags:      sess.Clone().ProtocolFlags,
		Completed:  sess.Status == domain.StatusCompleted,
		Entries:    []*domain.TranscriptEntry{learnerEntry, replyEntry},
	}, nil
}

// Abandon marks an active session abandoned (explicit learner exit or the
// timeout sweeper). Repeated calls fail with ErrSessionClosed.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	unlock := s.locks.Acquire(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Closed() {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, sessionID, sess.Status)
	}

	prev := sess.Clone()
	sess.Status = domain.StatusAbandoned
	sess.UpdatedAt = s.now()
	if err := domain.ValidateTransition(prev, sess); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvariantViolation, err)
	}
	if err := s.repo.PutSession(ctx, sess); err != nil {
		return err
	}
	s.metrics.ObserveSessionClosed(string(domain.StatusAbandoned))
	slog.Info("session abandoned", "session_id", sessionID)
	return nil
}

// AbandonExpired marks every active session idle past the given duration as
// abandoned. Returns how many sessions were closed.
func (s *Service) AbandonExpired(ctx context.Context, idle time.Duration) (int, error) {
	expired, err := s.repo.GetExpiredSessions(ctx, idle)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, sess := range expired {
		if err := s.Abandon(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				continue // raced with completion or an explicit exit
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// applyFlagDeltas folds backend flag proposals into the session. Flags are a
// monotonic checklist: deltas that would un-set a flag, or that name a flag
// the scenario does not define, are dropped with a warning rather than
// failing the exchange.
func (s *Service) applyFlagDeltas(def *domain.ScenarioDef, sess *domain.Session, deltas map[string]bool) {
	for name, value := range deltas {
		if !def.HasFlag(name) {
			slog.Warn("backend proposed unknown flag", "session_id", sess.ID, "flag", name)
			continue
		}
		if !value {
			if sess.ProtocolFlags[name] {
				slog.Warn("backend proposed flag revert", "session_id", sess.ID, "flag", name)
			}
			continue
		}
		sess.ProtocolFlags[name] = true
	}
}

func (s *Service) newEntry(sess *domain.Session, author, text string) *domain.TranscriptEntry {
	return &domain.TranscriptEntry{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		Author:     author,
		Text:       text,
		StageIndex: sess.CurrentStageIndex,
		CreatedAt:  s.now(),
	}
}

func dispatchOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAgentUnavailable):
		return "agent_unavailable"
	case errors.Is(err, domain.ErrMalformedAgentResponse):
		return "malformed_response"
	default:
		return "error"
	}
}
