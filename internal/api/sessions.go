package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emergensee/emergensee-server/internal/catalog"
	"github.com/emergensee/emergensee-server/internal/domain"
	"github.com/emergensee/emergensee-server/internal/identity"
	"github.com/emergensee/emergensee-server/internal/simulation"
	"github.com/go-chi/chi/v5"
)

const maxMessageLength = 4096

// SessionHandler exposes the session engine over HTTP.
type SessionHandler struct {
	engine  *simulation.Service
	catalog *catalog.Catalog
	publish func(sessionID string, entries []*domain.TranscriptEntry)
}

// NewSessionHandler creates a new session handler. publish may be nil when no
// live streaming is wired.
func NewSessionHandler(engine *simulation.Service, cat *catalog.Catalog, publish func(string, []*domain.TranscriptEntry)) *SessionHandler {
	return &SessionHandler{
		engine:  engine,
		catalog: cat,
		publish: publish,
	}
}

// RegisterRoutes registers the session API routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/messages", h.PostMessage)
			r.Get("/transcript", h.GetTranscript)
			r.Post("/abandon", h.Abandon)
		})
	})
}

// GetCatalog lists the available patient cases.
func (h *SessionHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"modules": h.catalog.Summaries()})
}

type createSessionRequest struct {
	ModuleID   string `json:"module_id"`
	ScenarioID int    `json:"scenario_id"`
}

// CreateSession starts a new scenario session for the calling learner.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModuleID == "" || req.ScenarioID <= 0 {
		Error(w, http.StatusBadRequest, "module_id and scenario_id are required")
		return
	}

	sess, err := h.engine.CreateSession(r.Context(), userID, req.ModuleID, req.ScenarioID)
	if err != nil {
		slog.Warn("session creation failed",
			"user_id", userID,
			"module_id", req.ModuleID,
			"scenario_id", req.ScenarioID,
			"error", err,
		)
		engineError(w, err)
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), sess.ID)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusCreated, snapshotResponse(snap))
}

// GetSession returns the session state, patient case, and transcript.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, snapshotResponse(snap))
}

type postMessageRequest struct {
	Persona string `json:"persona"`
	Message string `json:"message"`
}

// PostMessage routes one learner message through the conversational backend.
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		Error(w, http.StatusBadRequest, "message exceeds maximum length")
		return
	}
	if req.Persona == "" {
		Error(w, http.StatusBadRequest, "persona is required")
		return
	}

	result, err := h.engine.Dispatch(r.Context(), sessionID, req.Persona, req.Message)
	if err != nil {
		if status := statusForError(err); status == http.StatusInternalServerError &&
			!errors.Is(err, domain.ErrInvariantViolation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		engineError(w, err)
		return
	}

	if h.publish != nil {
		h.publish(sessionID, result.Entries)
	}
	JSON(w, http.StatusOK, result)
}

// GetTranscript returns transcript entries, optionally after a sequence
// number given by the "after" query parameter.
func (h *SessionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	afterSeq := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		afterSeq = n
	}

	entries, err := h.engine.TranscriptSince(r.Context(), sessionID, afterSeq)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Abandon marks an active session abandoned.
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.engine.Abandon(r.Context(), sessionID); err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusAbandoned)})
}

// sessionView is the wire shape for a session snapshot.
type sessionView struct {
	Session    *domain.Session           `json:"session"`
	Patient    domain.PatientCase        `json:"patient"`
	Transcript []*domain.TranscriptEntry `json:"transcript"`
	ElapsedSec float64                   `json:"elapsed_seconds"`
	Overtime   bool                      `json:"overtime"`
}

func snapshotResponse(snap *simulation.Snapshot) sessionView {
	return sessionView{
		Session:    snap.Session,
		Patient:    snap.Patient,
		Transcript: snap.Transcript,
		ElapsedSec: snap.Elapsed.Round(time.Second).Seconds(),
		Overtime:   snap.Overtime,
	}
}
