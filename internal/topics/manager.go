// Package topics maintains the device's push-topic subscriptions.
package topics

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/openpark/push-agent/internal/store"
)

// Topic names the device can subscribe to.
const (
	TopicAlert     = "security_alerts"
	TopicBroadcast = "parking_broadcasts"
)

// RoleSecurity is the privileged role whose devices receive security alerts.
const RoleSecurity = "security"

// Client performs topic subscribe/unsubscribe calls against the push backend.
type Client interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
}

// Manager derives the topic set from the session role and keeps it applied.
//
// Subscription changes happen only on session transitions, never on the
// message path. The caller must serialize login/logout transitions; the
// internal mutex protects the state set, not the transition ordering.
type Manager struct {
	client Client
	store  store.Store

	mu         sync.Mutex
	subscribed map[string]bool
}

// NewManager creates a Manager. Persisted subscriptions from a previous run
// are loaded so a restart does not forget what the device is receiving.
func NewManager(ctx context.Context, client Client, st store.Store) (*Manager, error) {
	m := &Manager{
		client:     client,
		store:      st,
		subscribed: make(map[string]bool),
	}

	persisted, err := st.LoadSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persisted subscriptions: %w", err)
	}
	for _, topic := range persisted {
		m.subscribed[topic] = true
	}

	return m, nil
}

// ApplyForRole reconciles subscriptions for an authenticated session.
//
// Broadcast is always (re)subscribed; alert is subscribed for the security
// role and unsubscribed for everyone else. Both legs are awaited in order,
// and a failure on either surfaces to the caller, which owns the decision
// to retry or proceed degraded.
func (m *Manager) ApplyForRole(ctx context.Context, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.client.Subscribe(ctx, TopicBroadcast); err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicBroadcast, err)
	}
	m.subscribed[TopicBroadcast] = true
	m.persistLocked(ctx)

	if role == RoleSecurity {
		if err := m.client.Subscribe(ctx, TopicAlert); err != nil {
			return fmt.Errorf("subscribing to %s: %w", TopicAlert, err)
		}
		m.subscribed[TopicAlert] = true
	} else {
		if err := m.client.Unsubscribe(ctx, TopicAlert); err != nil {
			return fmt.Errorf("unsubscribing from %s: %w", TopicAlert, err)
		}
		delete(m.subscribed, TopicAlert)
	}
	m.persistLocked(ctx)

	log.Printf("INFO: topic subscriptions applied for role %q: %v", role, m.currentLocked())
	return nil
}

// ClearAll unsubscribes from both topics. Called as part of logout, before
// the session token is cleared, so a stale device never keeps receiving a
// revoked session's topic traffic. Both legs are attempted even if the
// first fails.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, topic := range []string{TopicAlert, TopicBroadcast} {
		if err := m.client.Unsubscribe(ctx, topic); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("unsubscribing from %s: %w", topic, err)
			}
			continue
		}
		delete(m.subscribed, topic)
	}
	m.persistLocked(ctx)

	if firstErr != nil {
		return firstErr
	}

	log.Printf("INFO: all topic subscriptions cleared")
	return nil
}

// Current returns the sorted set of currently subscribed topics.
func (m *Manager) Current() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

func (m *Manager) currentLocked() []string {
	topics := make([]string, 0, len(m.subscribed))
	for topic := range m.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// persistLocked writes the state set through to the store. Persistence is
// bookkeeping, not correctness; a write failure is logged and the
// in-memory state stays authoritative.
func (m *Manager) persistLocked(ctx context.Context) {
	if err := m.store.SaveSubscriptions(ctx, m.currentLocked()); err != nil {
		log.Printf("WARNING: failed to persist subscription state: %v", err)
	}
}
