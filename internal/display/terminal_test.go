package display

import (
	"strings"
	"testing"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

func sampleItem() feed.Item {
	return feed.Item{
		ID:         "v1",
		MediaURL:   "https://cdn.example.com/v1.mp4",
		Author:     feed.Author{ID: "u1", DisplayName: "CodeMaster"},
		Caption:    "How to Build CLI Tools in Go",
		Counters:   feed.Counters{Likes: 1200, Comments: 3, Shares: 1},
		AudioTitle: "original sound",
	}
}

func TestAC300_TerminalFeed_ShowsCaptionAndAuthor(t *testing.T) {
	output := NewTerminalFormatter().FormatItem(sampleItem())

	if !strings.Contains(output, "How to Build CLI Tools in Go") {
		t.Error("user should see the caption in terminal output")
	}
	if !strings.Contains(output, "@CodeMaster") {
		t.Error("user should see the author handle in terminal output")
	}
	if !strings.Contains(output, "♪ original sound") {
		t.Error("user should see the audio title")
	}
}

func TestAC300_TerminalFeed_FallsBackToAuthorID(t *testing.T) {
	item := sampleItem()
	item.Author.DisplayName = ""

	output := NewTerminalFormatter().FormatItem(item)

	if !strings.Contains(output, "@u1") {
		t.Errorf("author id should stand in for a missing name, got %q", output)
	}
}

func TestAC301_TerminalFeed_ShowsRelativeTimestamps(t *testing.T) {
	formatter := NewTerminalFormatter()
	testCases := []struct {
		name      string
		timestamp time.Time
		contains  string
	}{
		{"recent minutes", time.Now().Add(-30 * time.Minute), "min"},
		{"recent hours", time.Now().Add(-3 * time.Hour), "hour"},
		{"recent days", time.Now().Add(-48 * time.Hour), "day"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output := formatter.FormatTimestamp(tc.timestamp)
			if !strings.Contains(strings.ToLower(output), tc.contains) {
				t.Errorf("user should see relative time (%s) for %s content", tc.contains, tc.name)
			}
		})
	}
}

func TestAC302_TerminalFeed_ShowsMediaURL(t *testing.T) {
	output := NewTerminalFormatter().FormatItem(sampleItem())

	if !strings.Contains(output, "https://cdn.example.com/v1.mp4") {
		t.Error("user should see the media URL in terminal output")
	}
}

func TestAC303_TerminalFeed_TruncatesLongText(t *testing.T) {
	formatter := NewTerminalFormatter()
	longText := "This is a very long text that should be truncated because it exceeds the maximum length"

	truncated := formatter.TruncateText(longText, 20)

	if len(truncated) > 20 {
		t.Errorf("user should see truncated text (max 20 chars), got %d chars", len(truncated))
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Error("user should see ellipsis indicating text was truncated")
	}
}

func TestAC303_TerminalFeed_TruncatesByRune(t *testing.T) {
	truncated := NewTerminalFormatter().TruncateText("ねこねこねこねこねこ", 6)

	if truncated != "ねこね..." {
		t.Errorf("truncation must not split characters, got %q", truncated)
	}
}

func TestAC303_TerminalFeed_PreservesShortText(t *testing.T) {
	output := NewTerminalFormatter().TruncateText("Short", 20)

	if output != "Short" {
		t.Errorf("user should see full text when under limit, got: %s", output)
	}
}

func TestAC304_TerminalFeed_ShowsMultipleItems(t *testing.T) {
	first := sampleItem()
	second := sampleItem()
	second.ID = "v2"
	second.Caption = "Second Video"

	output := NewTerminalFormatter().FormatFeed([]feed.Item{first, second}, nil, 0)

	if !strings.Contains(output, "How to Build CLI Tools in Go") || !strings.Contains(output, "Second Video") {
		t.Error("user should see both items in the feed")
	}
}

func TestAC305_TerminalFeed_ShowsEmptyFeedMessage(t *testing.T) {
	output := NewTerminalFormatter().FormatFeed(nil, nil, 0)

	if !strings.Contains(strings.ToLower(output), "no") {
		t.Error("user should see message indicating no content available")
	}
}

func TestAC306_TerminalFeed_ShowsEngagement(t *testing.T) {
	formatter := NewTerminalFormatter()

	liked := formatter.FormatEngagement(true, feed.Counters{Likes: 1200, Comments: 3, Shares: 1})
	if liked != "♥ 1.2K likes • 3 comments • 1 share" {
		t.Errorf("unexpected engagement line: %q", liked)
	}

	notLiked := formatter.FormatEngagement(false, feed.Counters{Likes: 1})
	if notLiked != "♡ 1 like" {
		t.Errorf("unexpected engagement line: %q", notLiked)
	}
}

func TestAC307_TerminalFeed_ShowsCommentPreviews(t *testing.T) {
	formatter := NewTerminalFormatter()
	comments := []feed.Comment{
		{ID: "c3", Author: feed.Author{DisplayName: "Ada"}, Text: "newest", CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "c2", Author: feed.Author{DisplayName: "Grace"}, Text: "middle"},
		{ID: "c1", Author: feed.Author{DisplayName: "Ken"}, Text: "oldest"},
	}

	output := formatter.FormatFeed([]feed.Item{sampleItem()}, map[string][]feed.Comment{"v1": comments}, 2)

	if !strings.Contains(output, "Ada: newest • 2 hours ago") {
		t.Errorf("preview should show the newest comment with its age, got %q", output)
	}
	if strings.Contains(output, "oldest") {
		t.Error("preview should respect the limit")
	}
	if !strings.Contains(output, "and 1 more") {
		t.Error("preview should say how many comments are hidden")
	}
}

func TestCompactCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{-4, "0"},
		{999, "999"},
		{1000, "1K"},
		{1250, "1.2K"},
		{3_400_000, "3.4M"},
	}
	for _, tt := range tests {
		if got := CompactCount(tt.n); got != tt.want {
			t.Errorf("CompactCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
