// Package api provides HTTP handlers for the EmergenSee API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusForError maps engine errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownCase),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyActiveSession),
		errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAgentUnavailable),
		errors.Is(err, domain.ErrMalformedAgentResponse):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// engineError writes the JSON error response for an engine failure.
func engineError(w http.ResponseWriter, err error) {
	Error(w, statusForError(err), err.Error())
}
