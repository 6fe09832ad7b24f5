package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/openpark/push-agent/internal/store"
)

// StatusHandler handles delivery record queries.
type StatusHandler struct {
	store store.Store
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(st store.Store) *StatusHandler {
	return &StatusHandler{
		store: st,
	}
}

// StatusResponse is the JSON response for GET /notifications/{id}.
type StatusResponse struct {
	State     string `json:"state"`                // "posted", "suppressed", "failed"
	Kind      string `json:"kind"`                 // "alert", "broadcast", "generic"
	Title     string `json:"title"`                // Presented notification title
	Error     string `json:"error,omitempty"`      // Error message if failed
	CreatedAt int64  `json:"created_at"`           // Unix timestamp (seconds)
	ExpiresAt int64  `json:"expires_at,omitempty"` // Unix timestamp (seconds) when record expires
}

// HandleGetStatus handles GET /notifications/{id} requests.
// Returns JSON with the delivery record for the given delivery ID.
//
// HTTP Status Codes:
//   - 200 OK: Record found
//   - 400 Bad Request: Missing delivery ID
//   - 404 Not Found: Delivery ID not found or expired
//   - 500 Internal Server Error: Database error
func (h *StatusHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "id")
	if deliveryID == "" {
		http.Error(w, "missing delivery ID", http.StatusBadRequest)
		return
	}

	d, err := h.store.GetDelivery(r.Context(), deliveryID)
	if err != nil {
		if strings.Contains(err.Error(), "delivery not found") {
			http.Error(w, "delivery not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &StatusResponse{
		State:     d.State,
		Kind:      d.Kind,
		Title:     d.Title,
		Error:     d.Error,
		CreatedAt: d.CreatedAt.Unix(),
		ExpiresAt: d.ExpiresAt.Unix(),
	})
}
