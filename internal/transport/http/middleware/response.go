package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody matches handler.MessageEnvelope when only Error is set.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSONError rejects the request before it reaches a handler. Rejections
// depend on credentials or client address, so they are never cached.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
