// Device bridge stub server for integration testing.
// This stub plays the process that owns the OS notification surface: it
// hands out wake locks, stores notification channels and captures posted
// notifications, and can be switched into a "permission revoked" mode
// where every post is rejected with 403.
//
// # Usage
//
//	bridge-stub -port 9090
//
// The stub exposes:
//   - POST /wake-locks - acquire a wake lock, returns a lock id
//   - DELETE /wake-locks/{id} - release a wake lock
//   - GET/PUT/DELETE /channels/{id} - notification channel registry
//   - POST /notifications - captures posted notifications
//   - GET /captured - returns all captured notifications as JSON
//   - DELETE /captured - clears captured notifications
//   - POST /permission - set {"granted": false} to reject posts with 403
//   - GET /locks - returns currently held and released lock counts
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CapturedNotification represents a captured notification post.
type CapturedNotification struct {
	Notification json.RawMessage `json:"notification"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ChannelRecord is a stored notification channel.
type ChannelRecord struct {
	ID                 string  `json:"id"`
	DisplayName        string  `json:"display_name"`
	Importance         int     `json:"importance"`
	VibrationPatternMs []int64 `json:"vibration_pattern_ms,omitempty"`
	SoundRef           string  `json:"sound_ref,omitempty"`
	BypassDoNotDisturb bool    `json:"bypass_do_not_disturb,omitempty"`
}

// BridgeStub captures and responds to device bridge requests.
type BridgeStub struct {
	mu            sync.Mutex
	notifications []CapturedNotification
	channels      map[string]ChannelRecord
	heldLocks     map[string]string // lock id -> tag
	released      int

	permissionGranted bool
}

func NewBridgeStub() *BridgeStub {
	return &BridgeStub{
		notifications:     make([]CapturedNotification, 0),
		channels:          make(map[string]ChannelRecord),
		heldLocks:         make(map[string]string),
		permissionGranted: true,
	}
}

// HandleAcquireLock handles POST /wake-locks.
func (s *BridgeStub) HandleAcquireLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag       string `json:"tag"`
		TimeoutMs int64  `json:"timeout_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lockID := uuid.New().String()
	s.heldLocks[lockID] = req.Tag

	log.Printf("Bridge stub: acquired lock %s tag=%s timeout=%dms", lockID, req.Tag, req.TimeoutMs)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"lock_id": lockID})
}

// HandleReleaseLock handles DELETE /wake-locks/{id}.
func (s *BridgeStub) HandleReleaseLock(w http.ResponseWriter, r *http.Request) {
	lockID := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.heldLocks[lockID]; !ok {
		http.Error(w, "unknown lock", http.StatusNotFound)
		return
	}
	delete(s.heldLocks, lockID)
	s.released++

	log.Printf("Bridge stub: released lock %s", lockID)
	w.WriteHeader(http.StatusOK)
}

// HandleGetLocks returns lock accounting for test assertions.
func (s *BridgeStub) HandleGetLocks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"held":     len(s.heldLocks),
		"released": s.released,
	})
}

// HandleGetChannel handles GET /channels/{id}.
func (s *BridgeStub) HandleGetChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ch)
}

// HandlePutChannel handles PUT /channels/{id}.
func (s *BridgeStub) HandlePutChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var ch ChannelRecord
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	ch.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels[id] = ch

	log.Printf("Bridge stub: created channel %s importance=%d", id, ch.Importance)
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteChannel handles DELETE /channels/{id}.
func (s *BridgeStub) HandleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.channels, id)

	log.Printf("Bridge stub: deleted channel %s", id)
	w.WriteHeader(http.StatusOK)
}

// HandlePostNotification handles POST /notifications.
func (s *BridgeStub) HandlePostNotification(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.permissionGranted {
		log.Printf("Bridge stub: rejecting notification, permission revoked")
		http.Error(w, "notification permission not granted", http.StatusForbidden)
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.notifications = append(s.notifications, CapturedNotification{
		Notification: raw,
		Timestamp:    time.Now(),
	})

	log.Printf("Bridge stub: captured notification #%d", len(s.notifications))
	w.WriteHeader(http.StatusOK)
}

// HandleGetCaptured returns all captured notifications.
func (s *BridgeStub) HandleGetCaptured(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":         len(s.notifications),
		"notifications": s.notifications,
	})
}

// HandleClearCaptured clears all captured notifications.
func (s *BridgeStub) HandleClearCaptured(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.notifications)
	s.notifications = make([]CapturedNotification, 0)

	log.Printf("Bridge stub: cleared %d captured notifications", count)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"cleared": count})
}

// HandleSetPermission configures whether posts are accepted.
func (s *BridgeStub) HandleSetPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Granted bool `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.permissionGranted = req.Granted

	log.Printf("Bridge stub: notification permission granted=%t", req.Granted)
	w.WriteHeader(http.StatusOK)
}

func main() {
	port := flag.Int("port", 9090, "HTTP server port")
	flag.Parse()

	stub := NewBridgeStub()

	r := chi.NewRouter()

	// Bridge API endpoints
	r.Post("/wake-locks", stub.HandleAcquireLock)
	r.Delete("/wake-locks/{id}", stub.HandleReleaseLock)
	r.Get("/channels/{id}", stub.HandleGetChannel)
	r.Put("/channels/{id}", stub.HandlePutChannel)
	r.Delete("/channels/{id}", stub.HandleDeleteChannel)
	r.Post("/notifications", stub.HandlePostNotification)

	// Test control endpoints
	r.Get("/captured", stub.HandleGetCaptured)
	r.Delete("/captured", stub.HandleClearCaptured)
	r.Post("/permission", stub.HandleSetPermission)
	r.Get("/locks", stub.HandleGetLocks)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		srv.Close()
	}()

	log.Printf("Bridge stub listening on :%d", *port)
	log.Printf("  POST /wake-locks - acquire wake lock")
	log.Printf("  POST /notifications - capture posted notifications")
	log.Printf("  GET  /captured - get captured notifications")
	log.Printf("  POST /permission - toggle notification permission")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
