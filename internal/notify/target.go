package notify

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// RouteID names an in-app destination a tapped notification can activate.
type RouteID string

const (
	// RouteAlert is the security alert-confirmation screen.
	RouteAlert RouteID = "alert"
	// RouteDefault is the normal app entry point.
	RouteDefault RouteID = "default"
)

// ActionTarget is the payload embedded in a notification's tap intent. It
// is opaque to the OS and interpreted only by the routing resolver.
type ActionTarget struct {
	Route            RouteID           `json:"route"`
	ForceNavigation  bool              `json:"force_navigation"`
	Extras           map[string]string `json:"extras,omitempty"`
	CreatedAtEpochMs int64             `json:"created_at_epoch_ms"`
}

// EncodeTarget serializes an ActionTarget for embedding in a tap intent.
// The encoding is base64 over JSON so the bridge can carry it as a plain
// string extra.
func EncodeTarget(t ActionTarget) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshaling action target: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTarget parses a tap-intent payload back into an ActionTarget.
func DecodeTarget(encoded string) (ActionTarget, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ActionTarget{}, fmt.Errorf("decoding action target: %w", err)
	}

	var t ActionTarget
	if err := json.Unmarshal(raw, &t); err != nil {
		return ActionTarget{}, fmt.Errorf("unmarshaling action target: %w", err)
	}
	return t, nil
}
