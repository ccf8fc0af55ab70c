// Package display provides plain terminal output formatting for reelcast.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

const separator = " • "

// TerminalFormatter formats feed items for terminal display.
type TerminalFormatter struct {
	now func() time.Time
}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{now: time.Now}
}

// FormatItem formats a single feed item for display.
func (f *TerminalFormatter) FormatItem(item feed.Item) string {
	var lines []string

	// Header: @author  caption
	header := "@" + f.authorName(item.Author)
	if item.Caption != "" {
		header += "  " + item.Caption
	}
	lines = append(lines, header)

	if engagement := f.FormatEngagement(item.Liked, item.Counters); engagement != "" {
		lines = append(lines, "  "+engagement)
	}

	if item.AudioTitle != "" {
		lines = append(lines, "  ♪ "+item.AudioTitle)
	}

	if item.MediaURL != "" {
		lines = append(lines, "  "+item.MediaURL)
	}

	return strings.Join(lines, "\n") + "\n"
}

// FormatEngagement formats the liked flag and counters into a single line.
func (f *TerminalFormatter) FormatEngagement(liked bool, c feed.Counters) string {
	var parts []string

	heart := "♡"
	if liked {
		heart = "♥"
	}
	parts = append(parts, fmt.Sprintf("%s %s", heart, countLabel(c.Likes, "like")))

	if c.Comments > 0 {
		parts = append(parts, countLabel(c.Comments, "comment"))
	}
	if c.Shares > 0 {
		parts = append(parts, countLabel(c.Shares, "share"))
	}

	return strings.Join(parts, separator)
}

// FormatComments formats up to limit comments, newest first. A limit of 0
// shows all of them.
func (f *TerminalFormatter) FormatComments(comments []feed.Comment, limit int) string {
	if len(comments) == 0 {
		return "  No comments yet.\n"
	}

	shown := comments
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	var b strings.Builder
	for _, c := range shown {
		fmt.Fprintf(&b, "  %s: %s", f.authorName(c.Author), c.Text)
		if !c.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "%s%s", separator, f.FormatTimestamp(c.CreatedAt))
		}
		b.WriteString("\n")
	}
	if rest := len(comments) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", rest)
	}
	return b.String()
}

// FormatFeed formats multiple feed items for display. previews, when not nil,
// maps item ids to comments shown under each item.
func (f *TerminalFormatter) FormatFeed(items []feed.Item, previews map[string][]feed.Comment, previewLimit int) string {
	if len(items) == 0 {
		return "No items to display.\n"
	}

	var formatted []string
	for _, item := range items {
		out := f.FormatItem(item)
		if comments, ok := previews[item.ID]; ok {
			out += f.FormatComments(comments, previewLimit)
		}
		formatted = append(formatted, out)
	}

	return strings.Join(formatted, "\n---\n\n")
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	diff := f.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return pluralize(int(diff.Hours()/24), "day")
	default:
		return t.Format("Jan 2, 2006")
	}
}

func (f *TerminalFormatter) authorName(a feed.Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.ID != "" {
		return a.ID
	}
	return "unknown"
}

// pluralize returns "N unit ago" or "N units ago" based on count.
func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func countLabel(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return CompactCount(n) + " " + unit + "s"
}

// CompactCount renders a counter the way feeds do: 999, 1.2K, 3.4M.
func CompactCount(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", max(n, 0))
	case n < 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000)) + "K"
	default:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// TruncateText truncates text to maxLen runes, adding "..." if truncated.
func (f *TerminalFormatter) TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
