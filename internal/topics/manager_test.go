package topics

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/openpark/push-agent/internal/store"
)

// mockClient records topic calls and fails configured topics.
type mockClient struct {
	mu           sync.Mutex
	subscribes   []string
	unsubscribes []string
	failTopics   map[string]error
}

func (m *mockClient) Subscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failTopics[topic]; err != nil {
		return err
	}
	m.subscribes = append(m.subscribes, topic)
	return nil
}

func (m *mockClient) Unsubscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failTopics[topic]; err != nil {
		return err
	}
	m.unsubscribes = append(m.unsubscribes, topic)
	return nil
}

func createTestStore(t *testing.T) (store.Store, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "topics-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	st, err := store.New(store.Config{Path: tmpFile.Name()})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	return st, func() {
		st.Close()
		os.Remove(tmpFile.Name())
	}
}

func newTestManager(t *testing.T) (*Manager, *mockClient, func()) {
	t.Helper()

	st, cleanup := createTestStore(t)
	client := &mockClient{failTopics: make(map[string]error)}

	m, err := NewManager(context.Background(), client, st)
	if err != nil {
		cleanup()
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, client, cleanup
}

func equalTopics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyForRole_Security(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()

	if err := m.ApplyForRole(context.Background(), "security"); err != nil {
		t.Fatalf("ApplyForRole() error = %v", err)
	}

	// Current() returns sorted topics: parking_broadcasts < security_alerts.
	want := []string{TopicBroadcast, TopicAlert}
	if got := m.Current(); !equalTopics(got, want) {
		t.Errorf("Current() = %v, want %v", got, want)
	}
}

func TestApplyForRole_RegularUser(t *testing.T) {
	m, client, cleanup := newTestManager(t)
	defer cleanup()

	if err := m.ApplyForRole(context.Background(), "user"); err != nil {
		t.Fatalf("ApplyForRole() error = %v", err)
	}

	got := m.Current()
	if !equalTopics(got, []string{TopicBroadcast}) {
		t.Errorf("Current() = %v, want [%s]", got, TopicBroadcast)
	}

	// The alert leg must be an explicit unsubscribe, not a skip.
	if len(client.unsubscribes) != 1 || client.unsubscribes[0] != TopicAlert {
		t.Errorf("expected explicit alert unsubscribe, got %v", client.unsubscribes)
	}
}

func TestApplyForRole_SecurityToUserTransition(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()

	ctx := context.Background()
	if err := m.ApplyForRole(ctx, "security"); err != nil {
		t.Fatalf("ApplyForRole(security) error = %v", err)
	}
	if err := m.ApplyForRole(ctx, "user"); err != nil {
		t.Fatalf("ApplyForRole(user) error = %v", err)
	}

	got := m.Current()
	if !equalTopics(got, []string{TopicBroadcast}) {
		t.Errorf("after re-login as user: Current() = %v, want [%s]", got, TopicBroadcast)
	}
}

func TestClearAll(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()

	ctx := context.Background()
	_ = m.ApplyForRole(ctx, "security")

	if err := m.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if got := m.Current(); len(got) != 0 {
		t.Errorf("Current() after ClearAll = %v, want empty", got)
	}
}

func TestApplyForRole_BroadcastFailurePropagates(t *testing.T) {
	m, client, cleanup := newTestManager(t)
	defer cleanup()

	client.failTopics[TopicBroadcast] = errors.New("transport unavailable")

	if err := m.ApplyForRole(context.Background(), "security"); err == nil {
		t.Fatal("expected error when broadcast leg fails")
	}

	// The alert leg must not run after the broadcast leg failed.
	if len(client.subscribes) != 0 {
		t.Errorf("expected no subscribes after first-leg failure, got %v", client.subscribes)
	}
}

func TestApplyForRole_AlertFailurePropagates(t *testing.T) {
	m, client, cleanup := newTestManager(t)
	defer cleanup()

	client.failTopics[TopicAlert] = errors.New("transport unavailable")

	err := m.ApplyForRole(context.Background(), "security")
	if err == nil {
		t.Fatal("expected error when alert leg fails")
	}

	// The broadcast leg completed before the failure.
	if !equalTopics(m.Current(), []string{TopicBroadcast}) {
		t.Errorf("expected broadcast to remain subscribed, got %v", m.Current())
	}
}

func TestClearAll_AttemptsBothLegsOnFailure(t *testing.T) {
	m, client, cleanup := newTestManager(t)
	defer cleanup()

	ctx := context.Background()
	_ = m.ApplyForRole(ctx, "security")

	client.failTopics[TopicAlert] = errors.New("transport unavailable")

	err := m.ClearAll(ctx)
	if err == nil {
		t.Fatal("expected error when a leg fails")
	}

	// Broadcast must still have been unsubscribed despite the alert failure.
	found := false
	for _, topic := range client.unsubscribes {
		if topic == TopicBroadcast {
			found = true
		}
	}
	if !found {
		t.Error("expected broadcast unsubscribe to be attempted after alert failure")
	}
	if !equalTopics(m.Current(), []string{TopicAlert}) {
		t.Errorf("expected only the failed topic to remain, got %v", m.Current())
	}
}

func TestManager_StateSurvivesRestart(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	client := &mockClient{failTopics: make(map[string]error)}
	ctx := context.Background()

	m1, err := NewManager(ctx, client, st)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	_ = m1.ApplyForRole(ctx, "security")

	// Fresh manager over the same store, e.g. after an agent restart.
	m2, err := NewManager(ctx, client, st)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if len(m2.Current()) != 2 {
		t.Errorf("expected restored subscription state, got %v", m2.Current())
	}
}
