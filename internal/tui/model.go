// Package tui is the terminal feed player.
//
// One card is on screen at a time. Scrolling moves a cursor immediately and
// hands playback to the new card once the cursor settles, so flicking past
// several cards does not open a player for each of them.
//
// The model never changes engagement or paging state itself. Keys are turned
// into controller and store calls; card actions go through the bound cell and
// come back as messages on the event channel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/gauthierbraillon/reelcast/internal/controller"
	"github.com/gauthierbraillon/reelcast/internal/display"
	"github.com/gauthierbraillon/reelcast/internal/engagement"
	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/internal/playback"
	"github.com/gauthierbraillon/reelcast/pkg/browser"
)

const (
	// DefaultSettleDelay is how long the cursor must rest before playback moves.
	DefaultSettleDelay = 150 * time.Millisecond

	// DefaultWindow is the number of cards kept bound around the cursor.
	DefaultWindow = 3

	tickInterval   = 250 * time.Millisecond
	previewLimit   = 3
	maxCardWidth   = 72
	maxCommentLen  = 500
	eventQueueSize = 32
)

// Messages.
type (
	loadedMsg struct {
		initial bool
		err     error
	}
	changedMsg struct{}
	settleMsg  struct{ seq int }
	tickMsg    time.Time

	likeDoneMsg struct {
		card card
		err  error
	}
	commentDoneMsg struct {
		card card
		err  error
	}
	commentsMsg struct {
		itemID string
		err    error
	}
	shareDoneMsg struct{ itemID string }
	openedMsg    struct{ err error }

	// Card actions raised through the bound cell.
	composeMsg struct{ item feed.Item }
	shareMsg   struct{ item feed.Item }
	openMsg    struct{ item feed.Item }
	profileMsg struct{ author feed.Author }
)

// Option configures the Model.
type Option func(*Model)

// WithSettleDelay sets how long scrolling must pause before playback moves.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Model) {
		if d >= 0 {
			m.settle = d
		}
	}
}

// WithWindow sets how many cards stay bound around the cursor. It should not
// exceed the recycler capacity.
func WithWindow(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithOpener replaces the browser used by the open action.
func WithOpener(open func(url string) error) Option {
	return func(m *Model) {
		m.open = open
	}
}

// WithLogger sets the model logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// Model is the root Bubble Tea model of the player.
type Model struct {
	ctrl   *controller.Controller
	store  *engagement.Store
	engine *ClockEngine
	format *display.TerminalFormatter
	logger *log.Logger
	open   func(url string) error
	events chan tea.Msg
	post   func(tea.Msg)
	settle time.Duration
	window int

	cursor     int
	settleSeq  int
	paused     bool
	composing  bool
	composeFor string
	posting    bool
	profile    *feed.Author
	status     string
	statusErr  bool
	width      int
	height     int

	spinner  spinner.Model
	progress progress.Model
	input    textinput.Model

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the player model. ctrl should have been built with a recycler;
// engine reports clip progress for the progress bar.
func New(ctrl *controller.Controller, store *engagement.Store, engine *ClockEngine, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorHighlight)

	p := progress.New(
		progress.WithGradient("#5A56E0", "#EE6FF8"),
		progress.WithoutPercentage(),
		progress.WithWidth(40),
	)

	ti := textinput.New()
	ti.Placeholder = "Add a comment..."
	ti.CharLimit = maxCommentLen
	ti.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		ctrl:     ctrl,
		store:    store,
		engine:   engine,
		format:   display.NewTerminalFormatter(),
		logger:   logging.WithPrefix("tui"),
		open:     browser.Open,
		events:   make(chan tea.Msg, eventQueueSize),
		settle:   DefaultSettleDelay,
		window:   DefaultWindow,
		spinner:  s,
		progress: p,
		input:    ti,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(&m)
	}

	events, logger := m.events, m.logger
	post := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
			logger.Warn("event queue full, dropping", "msg", fmt.Sprintf("%T", msg))
		}
	}
	m.post = post
	ctrl.SetActions(controller.Actions{
		OnComment:    func(item feed.Item) { post(composeMsg{item}) },
		OnShare:      func(item feed.Item) { post(shareMsg{item}) },
		OnMore:       func(item feed.Item) { post(openMsg{item}) },
		OnProfileTap: func(author feed.Author) { post(profileMsg{author}) },
	})
	ctrl.OnChange(func() {
		select {
		case events <- changedMsg{}:
		default:
		}
	})
	if err := ctrl.SetVisibleRange(ctx, 0, m.window-1); err != nil {
		m.logger.Warn("no visible range", "err", err)
	}
	return m
}

// Close stops background work and releases every player.
func (m Model) Close() {
	m.cancel()
	m.ctrl.Close()
	m.store.Wait()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadInitial(),
		m.listen(),
		tick(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(m.cardWidth()-16, 10), 50)

	case tea.KeyMsg:
		if m.composing {
			return m.updateCompose(msg)
		}
		return m.updateBrowse(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, tick())

	case loadedMsg:
		if msg.err != nil {
			m.logger.Warn("page load failed", "initial", msg.initial, "err", msg.err)
			break
		}
		if msg.initial {
			m.cursor = 0
			m.settleSeq++
			cmds = append(cmds, m.settleOn(0))
		}

	case changedMsg:
		if n := m.ctrl.Len(); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		cmds = append(cmds, m.listen())

	case settleMsg:
		if msg.seq == m.settleSeq {
			cmds = append(cmds, m.settleOn(m.cursor))
		}

	case likeDoneMsg:
		if msg.err == nil || errors.Is(msg.err, context.Canceled) {
			break
		}
		if !m.onScreen(msg.card) {
			m.logger.Warn("like rolled back off screen", "item", msg.card.itemID, "err", msg.err)
			break
		}
		m.setError("Couldn't update like", msg.err)

	case commentDoneMsg:
		m.posting = false
		drafting := m.composing && m.composeFor == msg.card.itemID
		visible := drafting || m.onScreen(msg.card)
		if msg.err != nil {
			if !visible {
				m.logger.Warn("comment failed off screen", "item", msg.card.itemID, "err", msg.err)
				break
			}
			m.setError("Couldn't post comment", msg.err)
			break
		}
		if drafting {
			m.composing = false
			m.input.Reset()
			m.input.Blur()
		}
		if visible {
			m.setStatus("Comment posted")
		}

	case commentsMsg:
		if msg.err != nil {
			m.logger.Debug("comments unavailable", "item", msg.itemID, "err", msg.err)
		}

	case composeMsg:
		m.composing = true
		m.composeFor = msg.item.ID
		m.status = ""
		cmds = append(cmds, m.input.Focus(), m.listen())

	case shareMsg:
		cmds = append(cmds, m.share(msg.item), m.listen())

	case shareDoneMsg:
		m.setStatus("Shared")

	case openMsg:
		cmds = append(cmds, m.openURL(msg.item.MediaURL), m.listen())

	case openedMsg:
		if msg.err != nil {
			m.setError("Couldn't open media", msg.err)
		}

	case profileMsg:
		author := msg.author
		m.profile = &author
		cmds = append(cmds, m.listen())
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	if m.profile != nil {
		m.profile = nil
		if key.Matches(msg, keys.Cancel) {
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, keys.Down):
		return m, m.move(1)
	case key.Matches(msg, keys.Up):
		return m, m.move(-1)
	case key.Matches(msg, keys.Like):
		return m, m.like()
	case key.Matches(msg, keys.Comment):
		return m, m.tap(func(c *playback.Cell) { c.TapComment() }, func(it feed.Item) tea.Msg { return composeMsg{it} })
	case key.Matches(msg, keys.Share):
		return m, m.tap(func(c *playback.Cell) { c.TapShare() }, func(it feed.Item) tea.Msg { return shareMsg{it} })
	case key.Matches(msg, keys.Open):
		return m, m.tap(func(c *playback.Cell) { c.TapMore() }, func(it feed.Item) tea.Msg { return openMsg{it} })
	case key.Matches(msg, keys.Profile):
		return m, m.tap(func(c *playback.Cell) { c.TapProfile() }, func(it feed.Item) tea.Msg { return profileMsg{it.Author} })
	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		if m.paused {
			m.ctrl.Disappear()
		} else {
			m.ctrl.Appear()
		}
	case key.Matches(msg, keys.Retry):
		return m, m.retry()
	}
	return m, nil
}

// updateCompose handles keys while the comment field has focus. A failed
// post leaves the text in place so it can be sent again.
func (m Model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, keys.Cancel):
		m.composing = false
		m.input.Reset()
		m.input.Blur()
		return m, nil
	case key.Matches(msg, keys.Submit):
		if m.posting {
			return m, nil
		}
		m.posting = true
		m.status = ""
		return m, m.postComment(m.cardFor(m.composeFor), m.input.Value())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// move shifts the cursor and schedules playback to follow once it settles.
func (m *Model) move(delta int) tea.Cmd {
	n := m.ctrl.Len()
	if n == 0 {
		return nil
	}
	next := min(max(m.cursor+delta, 0), n-1)
	if next == m.cursor {
		return nil
	}
	m.cursor = next
	m.settleSeq++
	seq := m.settleSeq
	if m.settle == 0 {
		return func() tea.Msg { return settleMsg{seq} }
	}
	return tea.Tick(m.settle, func(time.Time) tea.Msg { return settleMsg{seq} })
}

// settleOn binds the window around i, makes i the playing card and refreshes
// its comments.
func (m *Model) settleOn(i int) tea.Cmd {
	first := max(i-1, 0)
	if err := m.ctrl.SetVisibleRange(m.ctx, first, first+m.window-1); err != nil {
		m.logger.Warn("visible range not updated", "err", err)
	}
	m.ctrl.SetActiveIndex(i)

	item, ok := m.ctrl.Item(i)
	if !ok {
		return nil
	}
	return m.fetchComments(item.ID)
}

// tap raises a card action through the cell bound to the cursor. Without a
// bound cell the action is queued directly. Either way it comes back through
// listen.
func (m *Model) tap(through func(*playback.Cell), direct func(feed.Item) tea.Msg) tea.Cmd {
	item, ok := m.ctrl.Item(m.cursor)
	if !ok {
		return nil
	}
	if cell, ok := m.ctrl.Cell(m.cursor); ok {
		through(cell)
		return nil
	}
	m.post(direct(item))
	return nil
}

func (m *Model) like() tea.Cmd {
	item, ok := m.ctrl.Item(m.cursor)
	if !ok {
		return nil
	}
	mut, err := m.store.ToggleLike(m.ctx, item.ID)
	if err != nil {
		if errors.Is(err, engagement.ErrMutationPending) {
			m.setStatus("Still saving your last like...")
			return nil
		}
		m.setError("Couldn't update like", err)
		return nil
	}

	ctx, on := m.ctx, m.cardFor(item.ID)
	return func() tea.Msg {
		return likeDoneMsg{card: on, err: mut.Wait(ctx)}
	}
}

// card identifies the card an async completion belongs to. When a cell was
// bound its token pins that exact binding.
type card struct {
	itemID string
	cell   *playback.Cell
	token  playback.Token
}

// cardFor captures the card under the cursor for itemID.
func (m Model) cardFor(itemID string) card {
	on := card{itemID: itemID}
	if cell, ok := m.ctrl.Cell(m.cursor); ok {
		if token := cell.Token(); token.ItemID == itemID {
			on.cell, on.token = cell, token
		}
	}
	return on
}

// onScreen reports whether on is still the card under the cursor.
func (m Model) onScreen(on card) bool {
	item, ok := m.ctrl.Item(m.cursor)
	if !ok || item.ID != on.itemID {
		return false
	}
	if on.cell == nil {
		return true
	}
	cell, ok := m.ctrl.Cell(m.cursor)
	return ok && cell == on.cell && cell.Holds(on.token)
}

func (m *Model) retry() tea.Cmd {
	st := m.ctrl.Status()
	if st.Loading {
		return nil
	}
	if st.Err != nil && st.Loaded && st.Len > 0 {
		m.setStatus("Retrying...")
		return m.loadNext()
	}
	m.setStatus("Reloading...")
	return m.loadInitial()
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(prefix string, err error) {
	m.logger.Warn(prefix, "err", err)
	m.status = fmt.Sprintf("%s: %v", prefix, err)
	m.statusErr = true
}

func (m Model) loadInitial() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return loadedMsg{initial: true, err: ctrl.LoadInitialPage(ctx)}
	}
}

func (m Model) loadNext() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return loadedMsg{err: ctrl.LoadNextPage(ctx)}
	}
}

// listen waits for the next controller change or card action.
func (m Model) listen() tea.Cmd {
	ctx, events := m.ctx, m.events
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) fetchComments(itemID string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		_, err := store.FetchComments(ctx, itemID)
		return commentsMsg{itemID: itemID, err: err}
	}
}

func (m Model) postComment(on card, text string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		_, err := store.AddComment(ctx, on.itemID, text)
		return commentDoneMsg{card: on, err: err}
	}
}

func (m Model) share(item feed.Item) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		store.IncrementShare(ctx, item.ID)
		return shareDoneMsg{itemID: item.ID}
	}
}

func (m Model) openURL(url string) tea.Cmd {
	open := m.open
	return func() tea.Msg {
		return openedMsg{err: open(url)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// View implements tea.Model.
func (m Model) View() string {
	st := m.ctrl.Status()

	var body string
	switch {
	case st.Len == 0 && st.Err != nil && !st.Loading:
		body = m.errorView(st)
	case st.Len == 0 && st.Loaded && !st.Loading:
		body = EmptyStyle.Render("No videos yet. Press r to check again.")
	case st.Len == 0:
		body = EmptyStyle.Render(m.spinner.View() + " Loading feed...")
	default:
		body = m.cardView(st)
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusView())
}

func (m Model) errorView(st controller.Status) string {
	lines := []string{
		"Couldn't load the feed.",
		ErrorStyle.Render(st.Err.Error()),
	}
	switch {
	case errors.Is(st.Err, feed.ErrAuth):
		lines = append(lines, "Run `reelcast auth` to sign in again.")
	case st.Retryable:
		lines = append(lines, "Press r to retry.")
	}
	return EmptyStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) cardView(st controller.Status) string {
	item, ok := m.ctrl.Item(m.cursor)
	if !ok {
		return ""
	}

	var lines []string

	position := fmt.Sprintf("%d/%d", m.cursor+1, st.Len)
	if st.HasMore {
		position += "+"
	}
	if st.Loading {
		position += " " + m.spinner.View()
	}
	lines = append(lines, MutedStyle.Render(position))

	lines = append(lines, AuthorStyle.Render("@"+authorName(item.Author)))
	if item.Caption != "" {
		lines = append(lines, CaptionStyle.Width(m.cardWidth()-6).Render(item.Caption))
	}
	lines = append(lines, "", m.mediaView(item), "")

	engagementLine := m.format.FormatEngagement(item.Liked, item.Counters)
	if item.Liked {
		engagementLine = LikedStyle.Render(engagementLine)
	}
	if m.store.Pending(item.ID) {
		engagementLine += MutedStyle.Render(" saving...")
	}
	lines = append(lines, engagementLine)

	if item.AudioTitle != "" {
		lines = append(lines, MutedStyle.Render("♪ "+item.AudioTitle))
	}

	if comments := m.store.Comments(item.ID); len(comments) > 0 {
		preview := strings.TrimRight(m.format.FormatComments(comments, previewLimit), "\n")
		lines = append(lines, "", CommentStyle.Render(preview))
	}

	if m.composing && m.composeFor == item.ID {
		lines = append(lines, "", ComposeStyle.Render(m.input.View()))
	}

	if m.profile != nil {
		lines = append(lines, "", m.profileView(*m.profile))
	}

	switch {
	case st.Err != nil:
		lines = append(lines, "", ErrorStyle.Render("Couldn't load more: "+st.Err.Error()+" (r to retry)"))
	case m.cursor == st.Len-1 && !st.HasMore:
		lines = append(lines, "", MutedStyle.Render("You're all caught up."))
	}

	return Card.Width(m.cardWidth()).Render(strings.Join(lines, "\n"))
}

// mediaView renders the playback state of the card under the cursor.
func (m Model) mediaView(item feed.Item) string {
	cell, ok := m.ctrl.Cell(m.cursor)
	if !ok {
		return MutedStyle.Render("◌ loading media")
	}

	var badge string
	switch cell.State() {
	case playback.StatePlaying:
		badge = PlayingStyle.Render("▶ playing")
	case playback.StatePaused:
		badge = MutedStyle.Render("❚❚ paused")
	case playback.StateFailed:
		thumb := cell.Thumbnail()
		if thumb == "" {
			thumb = "no thumbnail"
		}
		return FailedStyle.Render("⚠ media unavailable, showing thumbnail") + "\n" + MutedStyle.Render(thumb)
	default:
		return MutedStyle.Render("◌ loading media")
	}

	pos, clip, ok := m.engine.Progress(item.MediaURL)
	if !ok || clip <= 0 {
		return badge
	}
	frac := float64(pos) / float64(clip)
	return fmt.Sprintf("%s  %s %s", badge, m.progress.ViewAs(frac), MutedStyle.Render(clock(pos)+"/"+clock(clip)))
}

func (m Model) profileView(author feed.Author) string {
	count := 0
	for _, it := range m.ctrl.Items() {
		if it.Author.ID == author.ID {
			count++
		}
	}
	lines := []string{
		AuthorStyle.Render("@" + authorName(author)),
		MutedStyle.Render(fmt.Sprintf("%d %s in your feed", count, plural(count, "video"))),
	}
	if author.AvatarURL != "" {
		lines = append(lines, MutedStyle.Render(author.AvatarURL))
	}
	return ComposeStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) statusView() string {
	if m.status != "" {
		if m.statusErr {
			return ErrorStyle.Render(m.status)
		}
		return StatusBar.Render(m.status)
	}

	bindings := keys.browseHelp()
	if m.composing {
		bindings = keys.composeHelp()
	}
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, StatusBarKey.Render(h.Key)+" "+StatusBarText.Render(h.Desc))
	}
	return StatusBar.Render(strings.Join(hints, "  "))
}

func (m Model) cardWidth() int {
	if m.width <= 0 {
		return maxCardWidth
	}
	return min(m.width-2, maxCardWidth)
}

func authorName(a feed.Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.ID != "" {
		return a.ID
	}
	return "unknown"
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func clock(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
