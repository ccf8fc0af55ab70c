// Package oauth tests document token storage and refresh.
//
// Test requirements (this file serves as documentation):
// - Refresh posts a refresh_token grant to the service token URL
// - A rejected refresh token surfaces ErrInvalidGrant
// - Stored tokens round trip and can be deleted
// - Expired tokens are refreshed on load
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestServiceConfig(t *testing.T) {
	config := ServiceConfig("http://localhost:8080/", "cli")

	if config.TokenURL != "http://localhost:8080/oauth/token" {
		t.Errorf("unexpected token URL: %s", config.TokenURL)
	}
	if config.ClientID != "cli" {
		t.Errorf("unexpected client id: %s", config.ClientID)
	}
}

func TestFlow_RefreshAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-2", "token_type": "Bearer", "expires_in": 3600,
		})
	}))
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	flow := NewFlow(ServiceConfig(server.URL, ""))
	flow.now = func() time.Time { return now }

	token, err := flow.RefreshAccessToken(context.Background(), "refresh-1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "access-2" {
		t.Errorf("wrong token: %s", token.AccessToken)
	}
	if token.RefreshToken != "refresh-1" {
		t.Error("refresh token should be kept when the response omits it")
	}
	if !token.Expiry.Equal(now.Add(time.Hour)) {
		t.Errorf("expiry should follow expires_in, got %v", token.Expiry)
	}
}

func TestFlow_RefreshAccessToken_InvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer server.Close()

	_, err := NewFlow(ServiceConfig(server.URL, "")).RefreshAccessToken(context.Background(), "stale")

	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("expected ErrInvalidGrant, got %v", err)
	}
}

func TestFlow_RefreshAccessToken_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewFlow(ServiceConfig(server.URL, "")).RefreshAccessToken(context.Background(), "r")

	if err == nil || errors.Is(err, ErrInvalidGrant) {
		t.Errorf("expected a plain refresh failure, got %v", err)
	}
}

func TestFlow_RefreshAccessToken_RequiresToken(t *testing.T) {
	_, err := NewFlow(ServiceConfig("http://unused", "")).RefreshAccessToken(context.Background(), "")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("expected ErrInvalidGrant for an empty refresh token, got %v", err)
	}
}

func TestToken_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if (&Token{}).Expired(now) {
		t.Error("a token without expiry never expires")
	}
	if (&Token{Expiry: now.Add(time.Hour)}).Expired(now) {
		t.Error("a token valid for an hour is not expired")
	}
	if !(&Token{Expiry: now.Add(5 * time.Second)}).Expired(now) {
		t.Error("a token about to expire should count as expired")
	}
}

func TestTokenStorage(t *testing.T) {
	storage := NewTokenStorage(t.TempDir())
	token := &Token{AccessToken: "test", TokenType: "Bearer"}

	if err := storage.Save(DefaultProvider, token); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := storage.Load(DefaultProvider)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "test" {
		t.Errorf("wrong token: %s", loaded.AccessToken)
	}

	if err := storage.Delete(DefaultProvider); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := storage.Load(DefaultProvider); err != ErrTokenNotFound {
		t.Errorf("expected ErrTokenNotFound after delete, got %v", err)
	}
	if err := storage.Delete(DefaultProvider); err != nil {
		t.Errorf("deleting twice should not fail: %v", err)
	}
}

func TestTokenStorage_NotFound(t *testing.T) {
	_, err := NewTokenStorage(t.TempDir()).Load("nonexistent")
	if err != ErrTokenNotFound {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenStorage_LoadFresh_RefreshesExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "fresh", "expires_in": 3600})
	}))
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	flow := NewFlow(ServiceConfig(server.URL, ""))
	flow.now = func() time.Time { return now }

	storage := NewTokenStorage(t.TempDir())
	_ = storage.Save(DefaultProvider, &Token{AccessToken: "stale", RefreshToken: "r", Expiry: now.Add(-time.Minute)})

	token, err := storage.LoadFresh(context.Background(), DefaultProvider, flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Errorf("expired token should be refreshed, got %s", token.AccessToken)
	}

	saved, _ := storage.Load(DefaultProvider)
	if saved.AccessToken != "fresh" || saved.RefreshToken != "r" {
		t.Errorf("refreshed token should be saved, got %+v", saved)
	}
}

func TestTokenStorage_LoadFresh_KeepsValid(t *testing.T) {
	storage := NewTokenStorage(t.TempDir())
	_ = storage.Save(DefaultProvider, &Token{AccessToken: "valid"})

	token, err := storage.LoadFresh(context.Background(), DefaultProvider, NewFlow(ServiceConfig("http://unused", "")))

	if err != nil || token.AccessToken != "valid" {
		t.Errorf("valid token should be returned as is, got %+v %v", token, err)
	}
}
