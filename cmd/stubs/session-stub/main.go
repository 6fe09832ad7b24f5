// Session backend stub server for integration testing.
// This stub plays the OpenPark parking backend: it captures FCM token
// updates and check-out confirmations/reports, and serves a configurable
// session role.
//
// # Usage
//
//	session-stub -port 8081 -role security
//
// The stub exposes:
//   - GET /api/health - health check
//   - PUT /api/devices/fcm-token - captures token updates
//   - GET /api/session/role - returns the configured role
//   - POST /api/parking/check-out/confirm - captures confirmations
//   - POST /api/parking/check-out/report - captures reports
//   - POST /role - reconfigure the served role
//   - POST /fail-next - fail the next backend call
//   - GET /captured - returns captured tokens and check-out calls
//   - DELETE /captured - clears captured state
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
)

// CheckOutCall is a captured confirm or report invocation.
type CheckOutCall struct {
	Action       string    `json:"action"` // "confirm" or "report"
	LicensePlate string    `json:"license_plate"`
	Timestamp    time.Time `json:"timestamp"`
}

// SessionStub captures and responds to parking backend requests.
type SessionStub struct {
	mu        sync.Mutex
	role      string
	tokens    []string
	checkOuts []CheckOutCall

	failNext bool
}

func NewSessionStub(role string) *SessionStub {
	return &SessionStub{
		role:      role,
		tokens:    make([]string, 0),
		checkOuts: make([]CheckOutCall, 0),
	}
}

// shouldFail consumes a configured one-shot failure.
func (s *SessionStub) shouldFail() bool {
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// HandleUpdateToken handles PUT /api/devices/fcm-token.
func (s *SessionStub) HandleUpdateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FCMToken string `json:"fcm_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldFail() {
		log.Printf("Session stub: failing token update")
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	s.tokens = append(s.tokens, req.FCMToken)

	log.Printf("Session stub: captured token update #%d", len(s.tokens))
	w.WriteHeader(http.StatusOK)
}

// HandleGetRole handles GET /api/session/role.
func (s *SessionStub) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldFail() {
		log.Printf("Session stub: failing role lookup")
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"role": s.role})
}

// HandleCheckOut handles POST /api/parking/check-out/{action}.
func (s *SessionStub) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if action != "confirm" && action != "report" {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}

	var req struct {
		LicensePlate string `json:"license_plate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldFail() {
		log.Printf("Session stub: failing check-out %s", action)
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	s.checkOuts = append(s.checkOuts, CheckOutCall{
		Action:       action,
		LicensePlate: req.LicensePlate,
		Timestamp:    time.Now(),
	})

	log.Printf("Session stub: captured check-out %s for %s", action, req.LicensePlate)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// HandleSetRole reconfigures the served role.
func (s *SessionStub) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.role = req.Role

	log.Printf("Session stub: role set to %s", req.Role)
	w.WriteHeader(http.StatusOK)
}

// HandleSetFailNext configures the next backend call to fail.
func (s *SessionStub) HandleSetFailNext(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = true

	log.Printf("Session stub: configured to fail next request")
	w.WriteHeader(http.StatusOK)
}

// HandleGetCaptured returns all captured state.
func (s *SessionStub) HandleGetCaptured(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tokens":     s.tokens,
		"check_outs": s.checkOuts,
	})
}

// HandleClearCaptured clears all captured state.
func (s *SessionStub) HandleClearCaptured(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make([]string, 0)
	s.checkOuts = make([]CheckOutCall, 0)

	log.Printf("Session stub: cleared captured state")
	w.WriteHeader(http.StatusOK)
}

func main() {
	port := flag.Int("port", 8081, "HTTP server port")
	role := flag.String("role", "driver", "session role to serve")
	flag.Parse()

	stub := NewSessionStub(*role)

	r := chi.NewRouter()

	// Backend API endpoints
	r.Put("/api/devices/fcm-token", stub.HandleUpdateToken)
	r.Get("/api/session/role", stub.HandleGetRole)
	r.Post("/api/parking/check-out/{action}", stub.HandleCheckOut)
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Test control endpoints
	r.Post("/role", stub.HandleSetRole)
	r.Post("/fail-next", stub.HandleSetFailNext)
	r.Get("/captured", stub.HandleGetCaptured)
	r.Delete("/captured", stub.HandleClearCaptured)

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

	log.Printf("Session stub listening on :%d serving role %q", *port, *role)
	log.Printf("  PUT  /api/devices/fcm-token - capture token updates")
	log.Printf("  GET  /api/session/role - serve the configured role")
	log.Printf("  POST /api/parking/check-out/{action} - capture check-out calls")
	log.Printf("  GET  /captured - get captured state")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
