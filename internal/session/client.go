// Package session provides a client for the OpenPark parking backend's
// session-scoped operations used by the push agent.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client wraps the parking backend's REST API. It implements the
// collaborator interfaces consumed by the token bridge (UpdateFCMToken),
// the alert flow (ConfirmCheckOut/ReportCheckOut) and the login flow
// (CurrentRole).
type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a new session backend client.
// The baseURL should be in the form "http://host:port".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetAuthToken installs the session bearer token used on subsequent calls.
// Cleared (set empty) on logout.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// HealthCheck verifies the parking backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// UpdateFCMToken reports a new registration token to the backend so it can
// target this device.
func (c *Client) UpdateFCMToken(ctx context.Context, token string) error {
	body := map[string]string{"fcm_token": token}
	return c.doJSON(ctx, http.MethodPut, "/api/devices/fcm-token", body, nil)
}

// CurrentRole returns the authenticated session's role.
func (c *Client) CurrentRole(ctx context.Context) (string, error) {
	var out struct {
		Role string `json:"role"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/session/role", nil, &out); err != nil {
		return "", err
	}
	if out.Role == "" {
		return "", fmt.Errorf("session backend returned empty role")
	}
	return out.Role, nil
}

// ConfirmCheckOut reports a vehicle check-out as confirmed by the owner.
// Returns false when the backend refuses the confirmation.
func (c *Client) ConfirmCheckOut(ctx context.Context, licensePlate string) (bool, error) {
	return c.checkOutCall(ctx, "/api/parking/check-out/confirm", licensePlate)
}

// ReportCheckOut flags a vehicle check-out as not performed by the owner.
func (c *Client) ReportCheckOut(ctx context.Context, licensePlate string) (bool, error) {
	return c.checkOutCall(ctx, "/api/parking/check-out/report", licensePlate)
}

func (c *Client) checkOutCall(ctx context.Context, path, licensePlate string) (bool, error) {
	body := map[string]string{"license_plate": licensePlate}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// doJSON performs a JSON request against the backend, decoding the
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	authToken := c.authToken
	c.mu.RUnlock()
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}
