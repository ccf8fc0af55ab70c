// Package contracts tests pin the wire format shared by the reelcast feed
// service and its client.
//
// Test requirements (this file serves as documentation):
// - Feed pages carry items, offset and has_more
// - Items carry the fields the client decodes, with non-negative counters
// - Comment creation returns the canonical comment with a server timestamp
// - Token responses follow RFC 6749 section 5.1
// - Errors are JSON objects with an error field
package contracts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/backend"
	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

type service struct {
	server *httptest.Server
	store  *backend.Store
	token  *oauth.Token
}

func newService(t *testing.T, items int) *service {
	t.Helper()

	store, err := backend.New(backend.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := backend.Seed(context.Background(), store, items); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	token, err := store.IssueToken(context.Background(), feed.Author{ID: "u-tester", DisplayName: "Tester"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	server := httptest.NewServer(backend.NewServer(store, backend.WithLogger(logging.Discard())).Handler())
	t.Cleanup(server.Close)
	return &service{server: server, store: store, token: token}
}

func (s *service) do(t *testing.T, method, path, body string, authed bool) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("response is not a JSON object: %v", err)
	}
	return resp.StatusCode, decoded
}

func requireKeys(t *testing.T, what string, obj map[string]any, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			t.Errorf("%s missing field %q: %v", what, k, obj)
		}
	}
}

// TestFeedPage_MatchesContract validates the page envelope and item shape.
func TestFeedPage_MatchesContract(t *testing.T) {
	svc := newService(t, 3)

	status, page := svc.do(t, http.MethodGet, "/v1/feed?limit=2&offset=0", "", false)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	requireKeys(t, "page", page, "items", "offset", "has_more")
	if page["has_more"] != true {
		t.Error("has_more should be true when items remain")
	}

	items, ok := page["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", page["items"])
	}
	item := items[0].(map[string]any)
	requireKeys(t, "item", item, "id", "media_url", "author", "caption", "counters", "liked")
	requireKeys(t, "author", item["author"].(map[string]any), "id", "display_name")

	counters := item["counters"].(map[string]any)
	requireKeys(t, "counters", counters, "likes", "comments", "shares")
	for k, v := range counters {
		if n, ok := v.(float64); !ok || n < 0 {
			t.Errorf("counter %s should be a non-negative number, got %v", k, v)
		}
	}
}

// TestLike_MatchesContract validates the like response carries the committed
// flag and count.
func TestLike_MatchesContract(t *testing.T) {
	svc := newService(t, 1)

	status, body := svc.do(t, http.MethodPut, "/v1/items/demo-000/like", "", true)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	requireKeys(t, "like", body, "liked", "like_count")
	if body["liked"] != true {
		t.Errorf("expected liked=true, got %v", body["liked"])
	}
}

// TestAddComment_MatchesContract validates the canonical comment.
func TestAddComment_MatchesContract(t *testing.T) {
	svc := newService(t, 1)

	status, body := svc.do(t, http.MethodPost, "/v1/items/demo-000/comments", `{"text":"hello"}`, true)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	requireKeys(t, "comment", body, "id", "item_id", "author", "text", "created_at")

	created, _ := body["created_at"].(string)
	if _, err := time.Parse(time.RFC3339Nano, created); err != nil {
		t.Errorf("created_at should be RFC 3339, got %q", created)
	}
	if author := body["author"].(map[string]any); author["id"] != "u-tester" {
		t.Errorf("comment should be attributed to the token's user, got %v", author)
	}
}

// TestMutations_RequireBearerToken validates error bodies on auth failure.
func TestMutations_RequireBearerToken(t *testing.T) {
	svc := newService(t, 1)

	status, body := svc.do(t, http.MethodPost, "/v1/items/demo-000/shares", "", false)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	requireKeys(t, "error", body, "error")
}

// TestOAuthTokenResponse_MatchesRFC6749 validates that the token endpoint
// follows RFC 6749 (OAuth 2.0) section 5.1.
func TestOAuthTokenResponse_MatchesRFC6749(t *testing.T) {
	svc := newService(t, 0)

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {svc.token.RefreshToken}}
	resp, err := http.PostForm(svc.server.URL+"/oauth/token", form)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Error("token responses must not be cached (RFC 6749 5.1)")
	}

	var token map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}
	requireKeys(t, "token", token, "access_token", "token_type", "expires_in")
	if token["token_type"] != "Bearer" {
		t.Errorf("token_type should be Bearer, got %v", token["token_type"])
	}
	if _, ok := token["expires_in"].(float64); !ok {
		t.Errorf("expires_in should be numeric, got %v", token["expires_in"])
	}
}

// TestOAuthTokenError_MatchesRFC6749 validates the section 5.2 error code for
// a rejected refresh token.
func TestOAuthTokenError_MatchesRFC6749(t *testing.T) {
	svc := newService(t, 0)

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"not-a-token"}}
	resp, err := http.PostForm(svc.server.URL+"/oauth/token", form)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if body["error"] != "invalid_grant" {
		t.Errorf("expected invalid_grant, got %v", body["error"])
	}
}
