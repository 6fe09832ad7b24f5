package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// createTestStore creates a temporary SQLite store for testing.
func createTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "agent-store-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	st, err := New(Config{Path: tmpFile.Name()})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		st.Close()
		os.Remove(tmpFile.Name())
	}

	return st, cleanup
}

func TestSubscriptions_SaveAndLoad(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := st.SaveSubscriptions(ctx, []string{"parking_broadcasts", "security_alerts"}); err != nil {
		t.Fatalf("SaveSubscriptions() error = %v", err)
	}

	topics, err := st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("LoadSubscriptions() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if topics[0] != "parking_broadcasts" || topics[1] != "security_alerts" {
		t.Errorf("unexpected topics: %v", topics)
	}
}

func TestSubscriptions_SaveReplacesPrevious(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_ = st.SaveSubscriptions(ctx, []string{"parking_broadcasts", "security_alerts"})
	if err := st.SaveSubscriptions(ctx, []string{"parking_broadcasts"}); err != nil {
		t.Fatalf("SaveSubscriptions() error = %v", err)
	}

	topics, err := st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("LoadSubscriptions() error = %v", err)
	}
	if len(topics) != 1 || topics[0] != "parking_broadcasts" {
		t.Errorf("expected only parking_broadcasts, got %v", topics)
	}
}

func TestSubscriptions_SaveEmptyClears(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_ = st.SaveSubscriptions(ctx, []string{"parking_broadcasts"})
	if err := st.SaveSubscriptions(ctx, nil); err != nil {
		t.Fatalf("SaveSubscriptions(nil) error = %v", err)
	}

	topics, err := st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("LoadSubscriptions() error = %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("expected empty topic set, got %v", topics)
	}
}

func TestTokenSync_RoundTrip(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, found, err := st.LoadTokenSync(ctx)
	if err != nil {
		t.Fatalf("LoadTokenSync() error = %v", err)
	}
	if found {
		t.Error("expected no token sync in fresh store")
	}

	syncedAt := time.Now().Truncate(time.Second)
	if err := st.SaveTokenSync(ctx, TokenSync{Token: "fcm-token-1", SyncedAt: syncedAt}); err != nil {
		t.Fatalf("SaveTokenSync() error = %v", err)
	}

	sync, found, err := st.LoadTokenSync(ctx)
	if err != nil {
		t.Fatalf("LoadTokenSync() error = %v", err)
	}
	if !found {
		t.Fatal("expected token sync to be found")
	}
	if sync.Token != "fcm-token-1" {
		t.Errorf("token = %q, want %q", sync.Token, "fcm-token-1")
	}
	if !sync.SyncedAt.Equal(syncedAt) {
		t.Errorf("synced_at = %v, want %v", sync.SyncedAt, syncedAt)
	}

	// A rotation overwrites the single row.
	if err := st.SaveTokenSync(ctx, TokenSync{Token: "fcm-token-2", SyncedAt: time.Now()}); err != nil {
		t.Fatalf("SaveTokenSync() error = %v", err)
	}
	sync, _, _ = st.LoadTokenSync(ctx)
	if sync.Token != "fcm-token-2" {
		t.Errorf("token after rotation = %q, want %q", sync.Token, "fcm-token-2")
	}
}

func TestDeliveries_RecordAndGet(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	d := Delivery{
		ID:        "req-1",
		Kind:      "alert",
		Title:     "Attention!",
		State:     DeliveryPosted,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := st.RecordDelivery(ctx, d); err != nil {
		t.Fatalf("RecordDelivery() error = %v", err)
	}

	got, err := st.GetDelivery(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetDelivery() error = %v", err)
	}
	if got.Kind != "alert" || got.State != DeliveryPosted || got.Title != "Attention!" {
		t.Errorf("unexpected delivery: %+v", got)
	}
}

func TestDeliveries_GetMissing(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	if _, err := st.GetDelivery(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing delivery")
	}
}

func TestDeliveries_CleanupExpired(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	_ = st.RecordDelivery(ctx, Delivery{
		ID: "old", Kind: "generic", Title: "t", State: DeliveryPosted,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	})
	_ = st.RecordDelivery(ctx, Delivery{
		ID: "fresh", Kind: "generic", Title: "t", State: DeliveryPosted,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})

	deleted, err := st.CleanupExpiredDeliveries(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredDeliveries() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted record, got %d", deleted)
	}

	if _, err := st.GetDelivery(ctx, "old"); err == nil {
		t.Error("expected expired delivery to be gone")
	}
	if _, err := st.GetDelivery(ctx, "fresh"); err != nil {
		t.Errorf("fresh delivery should survive cleanup: %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "agent-store-reopen-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	dbPath := tmpFile.Name()
	defer os.Remove(dbPath)

	st1, err := New(Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_ = st1.SaveSubscriptions(context.Background(), []string{"security_alerts"})
	st1.Close()

	st2, err := New(Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer st2.Close()

	topics, err := st2.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("LoadSubscriptions() error = %v", err)
	}
	if len(topics) != 1 || topics[0] != "security_alerts" {
		t.Errorf("expected persisted subscription to survive reopen, got %v", topics)
	}
}
