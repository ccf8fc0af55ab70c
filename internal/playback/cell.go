package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
)

// State is the visual state of a cell.
type State string

const (
	// StateEmpty means no item is bound
	StateEmpty State = "Empty"

	// StateLoading means an item is bound and its player is opening
	StateLoading State = "Loading"

	// StatePaused means a player is bound and stopped
	StatePaused State = "Paused"

	// StatePlaying means the bound player is playing
	StatePlaying State = "Playing"

	// StateFailed means the media could not load or decode; the thumbnail is shown
	StateFailed State = "Failed"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// Slot is the binding between a cell and the item it renders.
type Slot struct {
	ItemID  string
	Playing bool
}

// Token identifies one binding of a cell. Async completions compare it with
// Holds before touching the cell, since the cell may have been rebound.
type Token struct {
	ItemID string
	gen    uint64
}

// Delegate receives the user actions a card can raise. Cells keep it as a
// plain reference and never own the receiver.
type Delegate interface {
	OnComment(item feed.Item)
	OnShare(item feed.Item)
	OnMore(item feed.Item)
	OnProfileTap(author feed.Author)
}

// Cell renders one feed card and owns its player.
type Cell struct {
	engine  Engine
	tracker *Tracker
	logger  *log.Logger

	mu       sync.Mutex
	item     feed.Item
	bound    bool
	player   Player
	state    State
	gen      uint64
	err      error
	wantPlay bool // Play arrived while loading
	delegate Delegate
	onChange func(State)
}

// CellOption configures a Cell.
type CellOption func(*Cell)

// WithTracker shares a live-resource tracker between cells.
func WithTracker(t *Tracker) CellOption {
	return func(c *Cell) {
		c.tracker = t
	}
}

// WithCellLogger sets the cell logger.
func WithCellLogger(logger *log.Logger) CellOption {
	return func(c *Cell) {
		c.logger = logger
	}
}

// NewCell creates an empty cell that opens players through engine.
func NewCell(engine Engine, opts ...CellOption) *Cell {
	c := &Cell{
		engine:  engine,
		tracker: &Tracker{},
		logger:  logging.WithPrefix("playback"),
		state:   StateEmpty,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind attaches the cell to item and opens its player. Binding the item
// already bound is a no-op. Binding a different item fully releases the
// current player before the new one is opened. A load failure leaves the cell
// bound in StateFailed and the error is returned for logging only; it never
// affects other cells.
func (c *Cell) Bind(ctx context.Context, item feed.Item) error {
	token, load := c.Prepare(item)
	if !load {
		return nil
	}
	return c.Load(ctx, token)
}

// Prepare claims the cell for item without opening media. The cell moves to
// StateLoading and load reports whether Load must follow; it is false when
// item was already bound, in which case only the snapshot is refreshed.
func (c *Cell) Prepare(item feed.Item) (token Token, load bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound && c.item.ID == item.ID {
		// Keep the fresher snapshot for delegate callbacks.
		c.item = item
		return Token{ItemID: item.ID, gen: c.gen}, false
	}
	if c.bound {
		c.teardownLocked()
	}

	c.gen++
	c.item = item
	c.bound = true
	c.err = nil
	c.wantPlay = false
	c.setStateLocked(StateLoading)
	return Token{ItemID: item.ID, gen: c.gen}, true
}

// Load opens the player for the binding token was taken from. The cell is
// unlocked while the engine opens. If the cell was rebound or unbound in the
// meantime the new player is closed and Load returns nil. A Play received
// while loading starts the player once it is ready.
func (c *Cell) Load(ctx context.Context, token Token) error {
	c.mu.Lock()
	if !c.holdsLocked(token) || c.state != StateLoading {
		c.mu.Unlock()
		return nil
	}
	mediaURL := c.item.MediaURL
	c.mu.Unlock()

	player, err := c.engine.Open(ctx, mediaURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.holdsLocked(token) || c.state != StateLoading {
		if err == nil {
			if cerr := player.Close(); cerr != nil {
				c.logger.Warn("player close failed", "item", token.ItemID, "err", cerr)
			}
		}
		return nil
	}
	if err != nil {
		c.wantPlay = false
		c.err = fmt.Errorf("failed to open media for %s: %w: %w", token.ItemID, feed.ErrResource, err)
		c.setStateLocked(StateFailed)
		c.logger.Warn("media failed to load", "item", token.ItemID, "err", err)
		return c.err
	}

	c.player = player
	c.tracker.open()

	gen := c.gen
	player.OnEnd(func() { c.handleEnd(gen) })
	player.OnError(func(err error) { c.handleError(gen, err) })

	c.setStateLocked(StatePaused)
	if c.wantPlay {
		c.wantPlay = false
		player.Play()
		c.setStateLocked(StatePlaying)
	}
	return nil
}

// Unbind releases the player and its observers. Safe on an empty cell.
func (c *Cell) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound {
		return
	}
	c.teardownLocked()
	c.gen++
	c.wantPlay = false
	c.item = feed.Item{}
	c.bound = false
	c.err = nil
	c.setStateLocked(StateEmpty)
}

// teardownLocked stops, detaches and closes the current player.
func (c *Cell) teardownLocked() {
	if c.player == nil {
		return
	}
	p := c.player
	c.player = nil

	p.Pause()
	p.OnEnd(nil)
	p.OnError(nil)
	if err := p.Close(); err != nil {
		c.logger.Warn("player close failed", "item", c.item.ID, "err", err)
	}
	c.tracker.release()
}

// Play starts or resumes the bound player. On a loading cell it is deferred
// until the player opens. Calling it while already playing, on an empty cell
// or on a failed cell does nothing.
func (c *Cell) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateLoading {
		c.wantPlay = true
		return
	}
	if c.player == nil || c.state == StatePlaying {
		return
	}
	c.player.Play()
	c.setStateLocked(StatePlaying)
}

// Pause stops playback but keeps the player. Idempotent.
func (c *Cell) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wantPlay = false
	if c.player == nil || c.state != StatePlaying {
		return
	}
	c.player.Pause()
	c.setStateLocked(StatePaused)
}

// handleEnd loops the media while this binding is still current and playing.
func (c *Cell) handleEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.player == nil || c.state != StatePlaying {
		return
	}
	c.player.Seek(0)
	c.player.Play()
}

// handleError moves the cell to StateFailed without touching anything else.
func (c *Cell) handleError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.bound {
		return
	}
	c.logger.Warn("media decode failed", "item", c.item.ID, "err", err)
	c.teardownLocked()
	c.err = fmt.Errorf("playback of %s failed: %w: %w", c.item.ID, feed.ErrResource, err)
	c.setStateLocked(StateFailed)
}

// State returns the current visual state.
func (c *Cell) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the resource failure of a failed cell.
func (c *Cell) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsPlaying reports whether the cell is the one playing media.
func (c *Cell) IsPlaying() bool {
	return c.State() == StatePlaying
}

// Item returns the bound item.
func (c *Cell) Item() (feed.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item, c.bound
}

// Slot returns the playback slot of a bound cell.
func (c *Cell) Slot() (Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.bound {
		return Slot{}, false
	}
	return Slot{ItemID: c.item.ID, Playing: c.state == StatePlaying}, true
}

// Thumbnail returns what a failed or paused card shows in place of video.
func (c *Cell) Thumbnail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item.ThumbnailURL
}

// Token returns the identity of the current binding.
func (c *Cell) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token{ItemID: c.item.ID, gen: c.gen}
}

// Holds reports whether the cell still renders the binding t was taken from.
func (c *Cell) Holds(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdsLocked(t)
}

func (c *Cell) holdsLocked(t Token) bool {
	return c.bound && c.gen == t.gen && c.item.ID == t.ItemID
}

// Tracker returns the live-resource tracker the cell reports to.
func (c *Cell) Tracker() *Tracker {
	return c.tracker
}

// SetDelegate sets the receiver of card actions.
func (c *Cell) SetDelegate(d Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// OnStateChange registers fn to be called after every state transition.
// fn runs with the cell locked and must not call back into the cell.
func (c *Cell) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Cell) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onChange != nil {
		c.onChange(s)
	}
}

// TapComment forwards a comment action for the bound item.
func (c *Cell) TapComment() {
	if d, item, ok := c.target(); ok {
		d.OnComment(item)
	}
}

// TapShare forwards a share action for the bound item.
func (c *Cell) TapShare() {
	if d, item, ok := c.target(); ok {
		d.OnShare(item)
	}
}

// TapMore forwards a "more" action for the bound item.
func (c *Cell) TapMore() {
	if d, item, ok := c.target(); ok {
		d.OnMore(item)
	}
}

// TapProfile forwards a profile tap for the bound item's author.
func (c *Cell) TapProfile() {
	if d, item, ok := c.target(); ok {
		d.OnProfileTap(item.Author)
	}
}

func (c *Cell) target() (Delegate, feed.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delegate == nil || !c.bound {
		return nil, feed.Item{}, false
	}
	return c.delegate, c.item, true
}
