package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openpark/push-agent/internal/bridge"
	"github.com/openpark/push-agent/internal/channel"
	"github.com/openpark/push-agent/internal/config"
	"github.com/openpark/push-agent/internal/fcm"
	"github.com/openpark/push-agent/internal/handler"
	"github.com/openpark/push-agent/internal/notify"
	"github.com/openpark/push-agent/internal/pipeline"
	"github.com/openpark/push-agent/internal/route"
	"github.com/openpark/push-agent/internal/session"
	"github.com/openpark/push-agent/internal/store"
	"github.com/openpark/push-agent/internal/token"
	"github.com/openpark/push-agent/internal/topics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize session backend client
	sessionClient := session.NewClient(cfg.Session.BaseURL, cfg.Session.Timeout)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sessionClient.HealthCheck(ctx); err != nil {
			log.Printf("WARNING: session backend unreachable at startup: %v", err)
		} else {
			log.Printf("Connected to session backend at %s", cfg.Session.BaseURL)
		}
		cancel()
	}

	// Initialize device bridge client
	bridgeClient := bridge.NewClient(cfg.Bridge.BaseURL, cfg.Bridge.Timeout)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := bridgeClient.HealthCheck(ctx); err != nil {
			log.Printf("WARNING: device bridge unreachable at startup: %v", err)
		} else {
			log.Printf("Connected to device bridge at %s", cfg.Bridge.BaseURL)
		}
		cancel()
	}

	// Initialize store
	st, err := store.New(store.Config{
		Path: cfg.Storage.Path,
	})
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	log.Printf("Initialized store at %s", cfg.Storage.Path)

	// Initialize FCM topic client
	topicClient, err := fcm.New(context.Background(), fcm.Config{
		CredentialsFile: cfg.Firebase.CredentialsFile,
		ProjectID:       cfg.Firebase.ProjectID,
	})
	if err != nil {
		log.Fatalf("Failed to initialize FCM topic client: %v", err)
	}

	log.Printf("Initialized FCM topic client")

	// Ingestion pipeline: bridge-backed wake locks, channel provisioning
	// and notification presentation.
	provisioner := channel.NewProvisioner(bridgeClient)
	presenter := notify.NewPresenter(bridgeClient, provisioner)
	pipe := pipeline.New(bridgeClient, presenter, st, pipeline.Config{
		WakeTimeout: cfg.Wake.Timeout,
		Retention:   cfg.Deliveries.Retention,
	})

	// Topic subscriptions, restored from the previous run.
	manager, err := topics.NewManager(context.Background(), topicClient, st)
	if err != nil {
		log.Fatalf("Failed to initialize topic manager: %v", err)
	}

	// Token lifecycle bridge, fed by POST /token announcements.
	tokenBridge := token.NewBridge(sessionClient, st)
	rotations := make(chan string, 16)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go tokenBridge.Run(runCtx, rotations)

	// Initialize handlers
	inboundHandler := handler.NewInboundHandler(pipe)
	tapHandler := handler.NewTapHandler(route.NewResolver(), route.NewAlertFlow(sessionClient))
	sessionHandler := handler.NewSessionHandler(manager, sessionClient, topicClient, tokenBridge)
	tokenHandler := handler.NewTokenHandler(rotations, topicClient)
	statusHandler := handler.NewStatusHandler(st)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Routes
	r.Get("/health", makeHealthHandler(sessionClient, bridgeClient))
	r.Post("/inbound", inboundHandler.HandleInbound)
	r.Post("/tap", tapHandler.HandleTap)
	r.Post("/alerts/{action}", tapHandler.HandleAlertAction)
	r.Post("/session/login", sessionHandler.HandleLogin)
	r.Post("/session/logout", sessionHandler.HandleLogout)
	r.Post("/token", tokenHandler.HandleToken)
	r.Get("/notifications/{id}", statusHandler.HandleGetStatus)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting agent on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Start delivery log cleanup goroutine (runs hourly)
	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deleted, err := st.CleanupExpiredDeliveries(context.Background())
				if err != nil {
					log.Printf("WARNING: delivery cleanup failed: %v", err)
				} else if deleted > 0 {
					log.Printf("Cleaned up %d expired delivery records", deleted)
				}
			case <-cleanupStop:
				return
			}
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	close(cleanupStop)
	stopRun()

	log.Println("Shutting down agent...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Agent forced to shutdown: %v", err)
	}

	log.Println("Agent stopped")
}

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session,omitempty"`
	Bridge  string `json:"bridge,omitempty"`
}

func makeHealthHandler(sessionClient *session.Client, bridgeClient *bridge.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		resp := HealthResponse{
			Status:  "ok",
			Session: "ok",
			Bridge:  "ok",
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := sessionClient.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Session = fmt.Sprintf("error: %v", err)
		}
		if err := bridgeClient.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Bridge = fmt.Sprintf("error: %v", err)
		}

		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(resp)
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}
