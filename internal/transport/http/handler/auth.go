package handler

import (
	"net/http"

	"github.com/go-shop-api/internal/application/auth"
)

// AuthHandler serves registration and email verification. The OTP produced
// by the service is never written to a response.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pending, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserEnvelope{
		Message: "Registration successful. Please check your email for the verification code.",
		User:    pending.Account.Sanitized(),
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Email verified successfully", User: acc})
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.ResendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.svc.ResendOTP(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "A new verification code has been sent to your email"})
}
