package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openpark/push-agent/internal/notify"
	"github.com/openpark/push-agent/internal/route"
)

// Alert action names accepted by POST /alerts/{action}.
const (
	AlertActionConfirm = "confirm"
	AlertActionReject  = "reject"
)

// TapHandler resolves tapped notifications and drives the
// alert-confirmation terminal actions.
type TapHandler struct {
	resolver *route.Resolver
	flow     *route.AlertFlow
}

// NewTapHandler creates a new TapHandler.
func NewTapHandler(resolver *route.Resolver, flow *route.AlertFlow) *TapHandler {
	return &TapHandler{
		resolver: resolver,
		flow:     flow,
	}
}

// TapRequest is the JSON body for POST /tap.
type TapRequest struct {
	Target string `json:"target"`
}

// HandleTap handles POST /tap requests. The body carries the serialized
// ActionTarget of the tapped notification; the response is the navigation
// intent the device should activate.
//
// A target that cannot be decoded resolves to the default entry rather
// than an error. Tapping a notification must always lead somewhere.
func (h *TapHandler) HandleTap(w http.ResponseWriter, r *http.Request) {
	var req TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	target, err := notify.DecodeTarget(req.Target)
	if err != nil {
		log.Printf("WARNING: undecodable tap target, falling back to default entry: %v", err)
		target = notify.ActionTarget{Route: notify.RouteDefault}
	}

	intent := h.resolver.Resolve(target)
	writeJSON(w, http.StatusOK, intent)
}

// AlertActionRequest is the JSON body for POST /alerts/{action}.
type AlertActionRequest struct {
	LicensePlate string `json:"license_plate"`
}

// AlertActionResponse is the JSON response for POST /alerts/{action}.
type AlertActionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// HandleAlertAction handles POST /alerts/{action} requests, where action
// is "confirm" or "reject". Each invocation is a single call against the
// session backend; on failure the caller retries by invoking it again.
//
// HTTP Status Codes:
//   - 200 OK: action reported to the parking service
//   - 400 Bad Request: unknown action or missing license plate
//   - 502 Bad Gateway: parking service call failed
func (h *TapHandler) HandleAlertAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	var call func(context.Context, string) error
	switch action {
	case AlertActionConfirm:
		call = h.flow.Confirm
	case AlertActionReject:
		call = h.flow.Reject
	default:
		http.Error(w, "unknown alert action", http.StatusBadRequest)
		return
	}

	var req AlertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := call(r.Context(), req.LicensePlate); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, route.ErrNoLicensePlate) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, &AlertActionResponse{
			OK:      false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, &AlertActionResponse{OK: true})
}
