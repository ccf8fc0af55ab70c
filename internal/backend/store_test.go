package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Page_OrdersAndReportsMore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.SaveItems(ctx, DemoItems(12)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, more, err := store.Page(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 10 || !more {
		t.Fatalf("expected 10 items and more, got %d more=%v", len(first), more)
	}
	if first[0].ID != "demo-000" || first[9].ID != "demo-009" {
		t.Errorf("items should come back in insertion order, got %s..%s", first[0].ID, first[9].ID)
	}

	rest, more, err := store.Page(ctx, "", 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != 2 || more {
		t.Errorf("expected the last 2 items and no more, got %d more=%v", len(rest), more)
	}
}

func TestStore_SaveItems_SkipsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, _ := store.SaveItems(ctx, DemoItems(3))
	again, err := store.SaveItems(ctx, DemoItems(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 3 || again != 2 {
		t.Errorf("expected 3 then 2 new items, got %d and %d", added, again)
	}
	items, _, _ := store.Page(ctx, "", 10, 0)
	if len(items) != 5 || items[4].ID != "demo-004" {
		t.Errorf("new items should append after existing ones, got %d items", len(items))
	}
}

func TestStore_SetLike_IsIdempotentPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, _ = store.SaveItems(ctx, []feed.Item{{ID: "v1", MediaURL: "m", Author: feed.Author{ID: "a", DisplayName: "A"}, Counters: feed.Counters{Likes: 4}}})

	_, count, _ := store.SetLike(ctx, "v1", "u1", true)
	liked, again, err := store.SetLike(ctx, "v1", "u1", true)

	if err != nil || !liked {
		t.Fatalf("expected committed like, got %v %v", liked, err)
	}
	if count != 5 || again != 5 {
		t.Errorf("liking twice should count once, got %d then %d", count, again)
	}

	items, _, _ := store.Page(ctx, "u1", 10, 0)
	if !items[0].Liked {
		t.Error("page should report the caller's like")
	}
	others, _, _ := store.Page(ctx, "u2", 10, 0)
	if others[0].Liked {
		t.Error("another user should not see the like as theirs")
	}

	_, count, _ = store.SetLike(ctx, "v1", "u1", false)
	_, again, _ = store.SetLike(ctx, "v1", "u1", false)
	if count != 4 || again != 4 {
		t.Errorf("unliking twice should count once, got %d then %d", count, again)
	}
}

func TestStore_SetLike_UnknownItem(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.SetLike(context.Background(), "missing", "u1", true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Comments_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, _ = store.SaveItems(ctx, DemoItems(1))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 500 * time.Millisecond)
	}

	author := feed.Author{ID: "u1", DisplayName: "One"}
	_, _ = store.AddComment(ctx, "demo-000", author, "first")
	_, _ = store.AddComment(ctx, "demo-000", author, "second")
	_, _ = store.AddComment(ctx, "demo-000", author, "third")

	comments, err := store.Comments(ctx, "demo-000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 3 || comments[0].Text != "third" || comments[2].Text != "first" {
		t.Errorf("expected newest first, got %+v", comments)
	}

	items, _, _ := store.Page(ctx, "", 1, 0)
	if items[0].Counters.Comments != 3 {
		t.Errorf("comment count should follow inserts, got %d", items[0].Counters.Comments)
	}
}

func TestStore_Tokens_ExpireAndRefresh(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	user := feed.Author{ID: "u1", DisplayName: "One"}
	token, err := store.IssueToken(ctx, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.UserForToken(ctx, token.AccessToken)
	if err != nil || got != user {
		t.Fatalf("fresh token should resolve to the user, got %+v %v", got, err)
	}

	now = now.Add(TokenLifetime + time.Second)
	if _, err := store.UserForToken(ctx, token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token should be rejected, got %v", err)
	}

	fresh, err := store.Refresh(ctx, token.RefreshToken)
	if err != nil {
		t.Fatalf("refresh should succeed: %v", err)
	}
	if fresh.AccessToken == token.AccessToken || fresh.RefreshToken != token.RefreshToken {
		t.Error("refresh should issue a new access token for the same refresh token")
	}
	if _, err := store.UserForToken(ctx, fresh.AccessToken); err != nil {
		t.Errorf("refreshed token should resolve, got %v", err)
	}

	if _, err := store.Refresh(ctx, "bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown refresh token should be rejected, got %v", err)
	}
}

func TestSeed_AddsCommentsOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := Seed(ctx, store, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := Seed(ctx, store, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if added != 6 || again != 0 {
		t.Errorf("expected 6 then 0 new items, got %d and %d", added, again)
	}
	comments, _ := store.Comments(ctx, "demo-002")
	if len(comments) != 2 {
		t.Errorf("demo-002 should have 2 seeded comments, got %d", len(comments))
	}
}
