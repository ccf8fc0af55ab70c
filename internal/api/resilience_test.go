package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

func TestAC400_FeedAPI_IgnoresUnexpectedFields(t *testing.T) {
	mockResponse := map[string]interface{}{
		"items": []map[string]interface{}{
			{
				"id":                 "v1",
				"media_url":          "https://cdn.example.com/v1.mp4",
				"newFieldFromServer": "surprise feature!",
				"anotherNewField":    []string{"we", "added", "this"},
			},
		},
		"cursor_v2": "abc",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mockResponse)
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if err != nil {
		t.Fatalf("user should see the feed even when the service adds new fields, got error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "v1" {
		t.Error("user should see the item even with unexpected fields present")
	}
}

func TestAC401_FeedAPI_HandlesEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}, "has_more": false})
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if err != nil {
		t.Fatalf("an empty feed is not an error: %v", err)
	}
	if page.Items == nil {
		t.Fatal("should return empty slice, not nil")
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Errorf("expected an empty final page, got %+v", page)
	}
}

func TestAC402_FeedAPI_SkipsMalformedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"id":"v1","media_url":"https://cdn.example.com/v1.mp4"},
			{"id":"","media_url":"https://cdn.example.com/anon.mp4"},
			{"id":"v3"},
			{"id":42,"media_url":"https://cdn.example.com/v4.mp4"},
			{"id":"v5","media_url":"https://cdn.example.com/v5.mp4","counters":{"likes":-3}}
		],"has_more":true}`))
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if err != nil {
		t.Fatalf("malformed items must not fail the page: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "v1" || page.Items[1].ID != "v5" {
		t.Fatalf("only well-formed items should survive, got %+v", page.Items)
	}
	if page.Skipped != 3 {
		t.Errorf("expected 3 skipped items, got %d", page.Skipped)
	}
	if page.Items[1].Counters.Likes != 0 {
		t.Errorf("negative counters should be clamped to 0, got %d", page.Items[1].Counters.Likes)
	}
}

func TestAC403_FeedAPI_ServerErrorIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Service temporarily unavailable"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if !errors.Is(err, feed.ErrNetwork) {
		t.Fatalf("5xx should classify as a network error, got %v", err)
	}
	var gwErr *feed.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Op != "fetch page" {
		t.Errorf("expected a fetch page GatewayError, got %v", err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "feed service") {
		t.Errorf("error should name the feed service for user clarity, got: %v", err)
	}
}

func TestAC404_FeedAPI_AuthFailure(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid token"})
		}))

		_, err := newTestClient(server.URL).SetLike(context.Background(), "v1", true)
		server.Close()

		if !errors.Is(err, feed.ErrAuth) {
			t.Errorf("status %d should classify as auth, got %v", status, err)
		}
		if feed.IsRetryable(err) {
			t.Errorf("status %d should not be retryable", status)
		}
		var gwErr *feed.GatewayError
		if !errors.As(err, &gwErr) || gwErr.ItemID != "v1" {
			t.Errorf("error should carry the item id, got %v", err)
		}
	}
}

func TestAC405_FeedAPI_RateLimitIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if !errors.Is(err, feed.ErrNetwork) {
		t.Fatalf("429 should classify as a network error, got %v", err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		t.Errorf("error should indicate rate limiting, got: %v", err)
	}
}

func TestAC406_FeedAPI_MalformedJSONIsDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"invalid": json}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if !errors.Is(err, feed.ErrDecode) {
		t.Fatalf("malformed page should classify as decode, got %v", err)
	}
}

func TestAC407_FeedAPI_HandlesNullFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"v1","media_url":"https://cdn.example.com/v1.mp4","caption":null,"author":null,"counters":null}]}`))
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if err != nil {
		t.Fatalf("null optional fields should not fail the page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Caption != "" {
		t.Errorf("expected one item with empty caption, got %+v", page.Items)
	}
}

func TestAC408_FeedAPI_PartialResponseIsDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [{"id": "v1", "media_url": "https://cdn`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), 10, 0)

	if !errors.Is(err, feed.ErrDecode) {
		t.Fatalf("truncated body should classify as decode, got %v", err)
	}
}

func TestAC409_FeedAPI_TransportFailureIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTestClient(url).IncrementShare(context.Background(), "v1")

	if !errors.Is(err, feed.ErrNetwork) {
		t.Fatalf("unreachable service should classify as network, got %v", err)
	}
	if !feed.IsRetryable(err) {
		t.Error("network failures are retryable")
	}
}
