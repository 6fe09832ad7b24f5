package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpdateFCMToken(t *testing.T) {
	var gotToken, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/devices/fcm-token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotToken = body["fcm_token"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.SetAuthToken("session-jwt")

	if err := c.UpdateFCMToken(context.Background(), "fcm-123"); err != nil {
		t.Fatalf("UpdateFCMToken() error = %v", err)
	}
	if gotToken != "fcm-123" {
		t.Errorf("token = %q, want fcm-123", gotToken)
	}
	if gotAuth != "Bearer session-jwt" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}
}

func TestCurrentRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/role" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"role": "security"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	role, err := c.CurrentRole(context.Background())
	if err != nil {
		t.Fatalf("CurrentRole() error = %v", err)
	}
	if role != "security" {
		t.Errorf("role = %q, want security", role)
	}
}

func TestCurrentRole_EmptyRoleIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.CurrentRole(context.Background()); err == nil {
		t.Error("expected error for empty role")
	}
}

func TestConfirmCheckOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/parking/check-out/confirm" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["license_plate"] != "ABC-1234" {
			t.Errorf("plate = %q, want ABC-1234", body["license_plate"])
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ok, err := c.ConfirmCheckOut(context.Background(), "ABC-1234")
	if err != nil {
		t.Fatalf("ConfirmCheckOut() error = %v", err)
	}
	if !ok {
		t.Error("expected ok=true")
	}
}

func TestReportCheckOut_BackendRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"ok": false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ok, err := c.ReportCheckOut(context.Background(), "ABC-1234")
	if err != nil {
		t.Fatalf("ReportCheckOut() error = %v", err)
	}
	if ok {
		t.Error("expected ok=false when backend refuses")
	}
}

func TestDoJSON_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.UpdateFCMToken(context.Background(), "fcm-123"); err == nil {
		t.Error("expected error for 401 response")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable backend")
	}
}
