package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// SubscriptionManager defines the topic operations the session handler needs.
type SubscriptionManager interface {
	ApplyForRole(ctx context.Context, role string) error
	ClearAll(ctx context.Context) error
	Current() []string
}

// RoleSource provides the authenticated session's role when the login
// announcement does not carry one.
type RoleSource interface {
	CurrentRole(ctx context.Context) (string, error)
}

// TokenSink receives the push token topic operations are performed with.
type TokenSink interface {
	SetToken(token string)
}

// TokenReporter forwards a push token to the session backend.
type TokenReporter interface {
	OnRotation(ctx context.Context, newToken string)
}

// SessionHandler reacts to login and logout announcements from the
// session layer.
type SessionHandler struct {
	topics   SubscriptionManager
	roles    RoleSource
	fcmToken TokenSink
	reporter TokenReporter
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(topics SubscriptionManager, roles RoleSource, fcmToken TokenSink, reporter TokenReporter) *SessionHandler {
	return &SessionHandler{
		topics:   topics,
		roles:    roles,
		fcmToken: fcmToken,
		reporter: reporter,
	}
}

// LoginRequest is the JSON body for POST /session/login.
type LoginRequest struct {
	Role  string `json:"role,omitempty"`
	Token string `json:"token,omitempty"`
}

// LoginResponse is the JSON response for POST /session/login.
type LoginResponse struct {
	Role    string   `json:"role"`
	Topics  []string `json:"topics"`
	Message string   `json:"message,omitempty"`
}

// HandleLogin handles POST /session/login requests.
// It applies the topic subscriptions for the session's role and syncs the
// push token with the session backend. A missing role is looked up from
// the backend.
//
// HTTP Status Codes:
//   - 200 OK: subscriptions applied
//   - 400 Bad Request: malformed body
//   - 502 Bad Gateway: role lookup or subscription call failed
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token != "" {
		h.fcmToken.SetToken(req.Token)
		h.reporter.OnRotation(ctx, req.Token)
	}

	role := req.Role
	if role == "" {
		fetched, err := h.roles.CurrentRole(ctx)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, &LoginResponse{
				Message: "role lookup failed: " + err.Error(),
			})
			return
		}
		role = fetched
	}

	if err := h.topics.ApplyForRole(ctx, role); err != nil {
		writeJSON(w, http.StatusBadGateway, &LoginResponse{
			Role:    role,
			Topics:  h.topics.Current(),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, &LoginResponse{
		Role:   role,
		Topics: h.topics.Current(),
	})
}

// LogoutResponse is the JSON response for POST /session/logout.
type LogoutResponse struct {
	OK      bool     `json:"ok"`
	Topics  []string `json:"topics"`
	Message string   `json:"message,omitempty"`
}

// HandleLogout handles POST /session/logout requests. Subscriptions are
// cleared while the push token is still valid; the caller drops the
// session only after this returns.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.topics.ClearAll(ctx); err != nil {
		writeJSON(w, http.StatusBadGateway, &LogoutResponse{
			OK:      false,
			Topics:  h.topics.Current(),
			Message: err.Error(),
		})
		return
	}

	h.fcmToken.SetToken("")

	writeJSON(w, http.StatusOK, &LogoutResponse{
		OK:     true,
		Topics: h.topics.Current(),
	})
}
