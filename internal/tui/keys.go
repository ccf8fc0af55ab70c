package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Down    key.Binding
	Up      key.Binding
	Like    key.Binding
	Comment key.Binding
	Share   key.Binding
	Open    key.Binding
	Profile key.Binding
	Pause   key.Binding
	Retry   key.Binding
	Quit    key.Binding

	Submit key.Binding
	Cancel key.Binding
}

var keys = keyMap{
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "next")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "prev")),
	Like:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "like")),
	Comment: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comment")),
	Share:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "share")),
	Open:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
	Profile: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "profile")),
	Pause:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
	Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "post")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

// browseHelp lists the hints shown while browsing.
func (k keyMap) browseHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Like, k.Comment, k.Share, k.Open, k.Profile, k.Pause, k.Quit}
}

// composeHelp lists the hints shown while writing a comment.
func (k keyMap) composeHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel}
}
