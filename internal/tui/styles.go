package tui

import "github.com/charmbracelet/lipgloss"

// Colors used by the player.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorError     = lipgloss.Color("196") // Red
)

// Card frames the active feed item.
var Card = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// AuthorStyle for the @handle above the caption.
var AuthorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

// CaptionStyle for the item caption.
var CaptionStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// LikedStyle colors the engagement line when the item is liked.
var LikedStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// MutedStyle for secondary text such as audio titles and positions.
var MutedStyle = lipgloss.NewStyle().
	Foreground(colorSecondary)

// PlayingStyle for the playback state badge.
var PlayingStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// FailedStyle for cards whose media could not be played.
var FailedStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("214"))

// CommentStyle for comment previews.
var CommentStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	PaddingLeft(2)

// ComposeStyle frames the comment input.
var ComposeStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder()).
	BorderForeground(colorHighlight).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorMuted)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// EmptyStyle centers empty and error states.
var EmptyStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(2, 4)
