package handler

import (
	"encoding/json"
	"net/http"
)

// TokenHandler accepts push token rotation announcements and feeds them
// to the token lifecycle bridge, one event per announcement.
type TokenHandler struct {
	rotations chan<- string
	fcmToken  TokenSink
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(rotations chan<- string, fcmToken TokenSink) *TokenHandler {
	return &TokenHandler{
		rotations: rotations,
		fcmToken:  fcmToken,
	}
}

// TokenRequest is the JSON body for POST /token.
type TokenRequest struct {
	Token string `json:"token"`
}

// TokenResponse is the JSON response for POST /token.
type TokenResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// HandleToken handles POST /token requests. The new token takes effect
// for topic operations immediately; the sync with the session backend
// happens asynchronously in the lifecycle bridge.
//
// HTTP Status Codes:
//   - 202 Accepted: rotation queued for sync
//   - 400 Bad Request: malformed body or empty token
//   - 503 Service Unavailable: agent shutting down before the event was queued
func (h *TokenHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, &TokenResponse{
			Accepted: false,
			Message:  "token is required",
		})
		return
	}

	h.fcmToken.SetToken(req.Token)

	select {
	case h.rotations <- req.Token:
		writeJSON(w, http.StatusAccepted, &TokenResponse{Accepted: true})
	case <-r.Context().Done():
		writeJSON(w, http.StatusServiceUnavailable, &TokenResponse{
			Accepted: false,
			Message:  "rotation not queued",
		})
	}
}
