// Package handler provides HTTP request handlers for the push agent.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/openpark/push-agent/internal/classify"
)

// MessagePipeline defines the ingestion operations the inbound handler needs.
// This interface allows for easy testing with mock implementations.
type MessagePipeline interface {
	Handle(ctx context.Context, raw classify.RawPush) (string, error)
}

// InboundHandler handles raw push messages delivered by the push transport.
type InboundHandler struct {
	pipeline MessagePipeline
}

// NewInboundHandler creates a new InboundHandler.
func NewInboundHandler(pipeline MessagePipeline) *InboundHandler {
	return &InboundHandler{
		pipeline: pipeline,
	}
}

// InboundResponse is the JSON response for POST /inbound.
type InboundResponse struct {
	Accepted   bool   `json:"accepted"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// HandleInbound handles POST /inbound requests.
// It runs the full ingestion pipeline:
// 1. Parse the JSON push payload  -> 400 on failure
// 2. Classify and present         -> delivery recorded either way
// 3. Return the delivery id       -> 200 on success, 502 on presentation failure
func (h *InboundHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	raw, err := h.parseRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &InboundResponse{
			Accepted: false,
			Message:  err.Error(),
		})
		return
	}

	deliveryID, err := h.pipeline.Handle(r.Context(), raw)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, &InboundResponse{
			Accepted:   false,
			DeliveryID: deliveryID,
			Message:    "delivery failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, &InboundResponse{
		Accepted:   true,
		DeliveryID: deliveryID,
	})
}

// parseRequest reads and parses the JSON push payload from the request body.
func (h *InboundHandler) parseRequest(r *http.Request) (classify.RawPush, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return classify.RawPush{}, &requestError{message: "invalid content type, expected application/json"}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return classify.RawPush{}, &requestError{message: "failed to read request body"}
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return classify.RawPush{}, &requestError{message: "empty request body"}
	}

	var raw classify.RawPush
	if err := json.Unmarshal(body, &raw); err != nil {
		return classify.RawPush{}, &requestError{message: "failed to unmarshal push payload"}
	}

	return raw, nil
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestError represents a validation error in the request.
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}
