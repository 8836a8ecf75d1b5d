package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-shop-api/internal/application/session"
	"github.com/go-shop-api/internal/transport/http/cookie"
)

// SessionHandler handles login, token refresh and logout. Successful login
// and refresh write both auth cookies in addition to the JSON body.
type SessionHandler struct {
	svc     session.Service
	cookies cookie.Policy
}

func NewSessionHandler(svc session.Service, cookies cookie.Policy) *SessionHandler {
	return &SessionHandler{svc: svc, cookies: cookies}
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Authenticate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.respond(w, res, "Login successful")
}

// Refresh takes the path-scoped cookie first and falls back to the body.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Refresh(r.Context(), tok)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.respond(w, res, "Token refreshed successfully")
}

// Logout always clears cookies and answers 200, even for unknown tokens.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tok, _ := cookie.RefreshToken(r)
	if tok == "" {
		var body refreshBody
		if decodeJSONQuiet(r, &body) {
			tok = body.RefreshToken
		}
	}
	if err := h.svc.Logout(r.Context(), tok); err != nil {
		slog.WarnContext(r.Context(), "logout could not revoke refresh token", "err", err)
	}
	h.cookies.ClearAllAuthCookies(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Logged out successfully"})
}

func (h *SessionHandler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if tok, ok := cookie.RefreshToken(r); ok {
		return tok, true
	}
	// An unreadable body is the same as no token: refresh only fails with 401.
	var body refreshBody
	if !decodeJSONQuiet(r, &body) || body.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return "", false
	}
	return body.RefreshToken, true
}

func (h *SessionHandler) respond(w http.ResponseWriter, res *session.AuthResult, msg string) {
	h.cookies.SetAuthCookies(w, res.Tokens.AccessToken, res.Tokens.RefreshToken, res.Tokens.ExpiresIn)
	writeJSON(w, http.StatusOK, AuthEnvelope{Message: msg, User: res.Account, Tokens: res.Tokens})
}
