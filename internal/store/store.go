// Package store provides SQLite-based persistence for agent state and the delivery log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Delivery states for handled inbound messages.
const (
	DeliveryPosted     = "posted"
	DeliverySuppressed = "suppressed"
	DeliveryFailed     = "failed"
)

// Delivery is the record of one handled inbound message.
type Delivery struct {
	ID        string
	Kind      string
	Title     string
	State     string
	Error     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenSync records the last push token reported to the session backend.
type TokenSync struct {
	Token    string
	SyncedAt time.Time
}

// Store defines the persistence operations the agent needs.
type Store interface {
	SaveSubscriptions(ctx context.Context, topics []string) error
	LoadSubscriptions(ctx context.Context) ([]string, error)

	SaveTokenSync(ctx context.Context, sync TokenSync) error
	LoadTokenSync(ctx context.Context) (TokenSync, bool, error)

	RecordDelivery(ctx context.Context, d Delivery) error
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	CleanupExpiredDeliveries(ctx context.Context) (int64, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writes
}

// Config holds SQLite store configuration.
type Config struct {
	Path string
}

// New creates a new SQLiteStore.
func New(cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT version FROM schema_version ORDER BY version DESC LIMIT 1
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		version = 0
	}

	if version < 1 {
		if err := s.migrateV1(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) migrateV1(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			topic TEXT PRIMARY KEY,
			subscribed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS token_sync (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			synced_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_expires ON deliveries(expires_at)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}

	return tx.Commit()
}

// SaveSubscriptions replaces the persisted topic set with the given one.
func (s *SQLiteStore) SaveSubscriptions(ctx context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, topic := range topics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (topic, subscribed_at) VALUES (?, ?)
		`, topic, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSubscriptions returns the persisted topic set.
func (s *SQLiteStore) LoadSubscriptions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic FROM subscriptions ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}

	return topics, rows.Err()
}

// SaveTokenSync records the last token reported to the session backend.
func (s *SQLiteStore) SaveTokenSync(ctx context.Context, sync TokenSync) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO token_sync (id, token, synced_at)
		VALUES (1, ?, ?)
	`, sync.Token, sync.SyncedAt.Unix())

	return err
}

// LoadTokenSync returns the last recorded token sync, if any.
func (s *SQLiteStore) LoadTokenSync(ctx context.Context) (TokenSync, bool, error) {
	var (
		token    string
		syncedAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT token, synced_at FROM token_sync WHERE id = 1
	`).Scan(&token, &syncedAt)
	if err == sql.ErrNoRows {
		return TokenSync{}, false, nil
	}
	if err != nil {
		return TokenSync{}, false, err
	}

	return TokenSync{Token: token, SyncedAt: time.Unix(syncedAt, 0)}, true, nil
}

// RecordDelivery persists the record of a handled inbound message.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO deliveries (id, kind, title, state, error, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Kind, d.Title, d.State, d.Error, d.CreatedAt.Unix(), d.ExpiresAt.Unix())

	return err
}

// GetDelivery retrieves a delivery record by id.
func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	var (
		d         Delivery
		errMsg    sql.NullString
		createdAt int64
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, title, state, error, created_at, expires_at
		FROM deliveries WHERE id = ?
	`, id).Scan(&d.ID, &d.Kind, &d.Title, &d.State, &errMsg, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return Delivery{}, fmt.Errorf("delivery not found: %s", id)
	}
	if err != nil {
		return Delivery{}, err
	}

	if errMsg.Valid {
		d.Error = errMsg.String
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	d.ExpiresAt = time.Unix(expiresAt, 0)

	return d, nil
}

// CleanupExpiredDeliveries removes expired delivery records.
func (s *SQLiteStore) CleanupExpiredDeliveries(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM deliveries WHERE expires_at < ?
	`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
