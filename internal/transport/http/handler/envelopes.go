package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-shop-api/internal/domain"
)

const maxBodyBytes = 1 << 20

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UserEnvelope wraps a single sanitized account.
type UserEnvelope struct {
	Message string          `json:"message,omitempty"`
	User    *domain.Account `json:"user"`
}

// AuthEnvelope wraps login and refresh responses.
type AuthEnvelope struct {
	Message string            `json:"message,omitempty"`
	User    *domain.Account   `json:"user"`
	Tokens  *domain.TokenPair `json:"tokens"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// decodeJSON reads a bounded JSON body into v and answers 400 when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err == nil {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// decodeJSONQuiet is decodeJSON for endpoints that must never fail on a
// bad body.
func decodeJSONQuiet(r *http.Request, v interface{}) bool {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v) == nil
}

type errorMapping struct {
	target  error
	status  int
	message string // empty means err.Error() is safe to show
}

// errorMappings is ordered; the first sentinel matched by errors.Is wins.
var errorMappings = []errorMapping{
	{domain.ErrValidation, http.StatusUnprocessableEntity, ""},
	{domain.ErrDuplicate, http.StatusUnprocessableEntity, domain.ErrDuplicate.Error()},
	{domain.ErrInvalidCredentials, http.StatusBadRequest, domain.ErrInvalidCredentials.Error()},
	{domain.ErrInvalidOTP, http.StatusBadRequest, domain.ErrInvalidOTP.Error()},
	{domain.ErrInvalidToken, http.StatusUnauthorized, domain.ErrInvalidToken.Error()},
	{domain.ErrAccountNotActivated, http.StatusForbidden, "account is not activated, please verify your email"},
	{domain.ErrAccountDeactivated, http.StatusForbidden, domain.ErrAccountDeactivated.Error()},
	{domain.ErrNotFound, http.StatusNotFound, ""},
	{domain.ErrForbidden, http.StatusForbidden, domain.ErrForbidden.Error()},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, domain.ErrUnauthenticated.Error()},
	{domain.ErrNotification, http.StatusInternalServerError, "Failed to send verification email. Please try again."},
}

// writeServiceError maps domain sentinels to a status and a stable message.
// Anything unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		writeError(w, m.status, msg)
		return
	}
	slog.ErrorContext(r.Context(), "unexpected error", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
