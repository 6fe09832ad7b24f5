// Package bridge provides the HTTP client for the device bridge, the
// process that owns the OS notification surface on behalf of the agent.
// It implements wake.Locker, channel.Registry and notify.Poster.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/openpark/push-agent/internal/channel"
	"github.com/openpark/push-agent/internal/notify"
	"github.com/openpark/push-agent/internal/wake"
)

// Client talks to the device bridge's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a device bridge client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// heldLock is a wake lock held at the bridge, released by id.
type heldLock struct {
	client *Client
	id     string
}

// Release releases the lock. Release failures are logged only: the bridge
// enforces the timeout regardless, so a lost release degrades to waiting
// out the timeout rather than holding power forever.
func (l *heldLock) Release() {
	req, err := http.NewRequest(http.MethodDelete, l.client.baseURL+"/wake-locks/"+l.id, nil)
	if err != nil {
		log.Printf("WARNING: building wake lock release request: %v", err)
		return
	}

	resp, err := l.client.http.Do(req)
	if err != nil {
		log.Printf("WARNING: releasing wake lock %s: %v", l.id, err)
		return
	}
	resp.Body.Close()
}

// Acquire obtains a fresh wake lock from the bridge. Each call returns an
// independent lock instance.
func (c *Client) Acquire(ctx context.Context, tag string, timeout time.Duration) (wake.Lock, error) {
	body := map[string]interface{}{
		"tag":        tag,
		"timeout_ms": timeout.Milliseconds(),
	}

	var out struct {
		LockID string `json:"lock_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/wake-locks", body, &out); err != nil {
		return nil, fmt.Errorf("acquiring wake lock: %w", err)
	}
	if out.LockID == "" {
		return nil, fmt.Errorf("bridge returned empty lock id")
	}

	return &heldLock{client: c, id: out.LockID}, nil
}

// GetChannel returns the bridge's current view of a notification channel.
func (c *Client) GetChannel(ctx context.Context, id string) (channel.Spec, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/channels/"+id, nil)
	if err != nil {
		return channel.Spec{}, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return channel.Spec{}, false, fmt.Errorf("querying channel %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return channel.Spec{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return channel.Spec{}, false, fmt.Errorf("querying channel %s: status %d", id, resp.StatusCode)
	}

	var spec channel.Spec
	if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
		return channel.Spec{}, false, fmt.Errorf("decoding channel %s: %w", id, err)
	}
	return spec, true, nil
}

// CreateChannel materializes a channel on the OS.
func (c *Client) CreateChannel(ctx context.Context, spec channel.Spec) error {
	return c.doJSON(ctx, http.MethodPut, "/channels/"+spec.ID, spec, nil)
}

// DeleteChannel removes a channel from the OS.
func (c *Client) DeleteChannel(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/channels/"+id, nil, nil)
}

// Post enqueues a notification in the device tray. A 403 from the bridge
// means the user revoked notification permission and maps to
// notify.ErrPermissionDenied.
func (c *Client) Post(ctx context.Context, n notify.PlatformNotification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return notify.ErrPermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("posting notification: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// HealthCheck verifies the bridge is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge health check failed: status %d", resp.StatusCode)
	}
	return nil
}

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
