// Package controller implements the feed controller: the ordered item list,
// the pagination cursor, the active index and the play/pause hand-off between
// playback cells.
//
// # Invariants
//
//   - At most one bound cell is playing at any instant. SetActiveIndex pauses
//     the old cell before it plays the new one.
//   - No item id appears twice in the list after any page merge.
//   - Live players == bound visible cells whose media opened; cells come from
//     a bounded Recycler. A failed cell stays bound to show its thumbnail but
//     holds no player.
//
// # Concurrency
//
// The controller is safe for concurrent use. State transitions are serialized
// by one lock; gateway calls and media opens never hold it. A second
// LoadNextPage while one is in flight is a no-op, not a duplicate request.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gauthierbraillon/reelcast/internal/engagement"
	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/internal/playback"
)

const (
	// DefaultPageSize is the fixed number of items requested per page.
	DefaultPageSize = 10

	// DefaultPrefetchDistance triggers the next page when the active index is
	// this close to the end of the list.
	DefaultPrefetchDistance = 2

	// prefetchTimeout bounds a background page fetch.
	prefetchTimeout = 30 * time.Second
)

// Actions is the capability set a card can raise. Nil fields are ignored.
type Actions struct {
	OnComment    func(item feed.Item)
	OnShare      func(item feed.Item)
	OnMore       func(item feed.Item)
	OnProfileTap func(author feed.Author)
}

// Status is a snapshot of the controller's loading state.
type Status struct {
	Loaded    bool // the first page has been fetched successfully at least once
	Loading   bool // a page fetch is in flight
	Empty     bool // nothing to show: render an empty or error state, never a spinner
	HasMore   bool
	Retryable bool  // the last page fetch failed and may be retried
	Err       error // last page fetch failure
	Len       int
	Active    int
}

// Option configures the Controller.
type Option func(*Controller)

// WithPageSize sets the page size (default 10).
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithPrefetchDistance sets how close to the end the active index must be to
// trigger the next page (default 2).
func WithPrefetchDistance(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.prefetch = n
		}
	}
}

// WithRecycler lets the controller bind cells for the visible range itself.
func WithRecycler(r *playback.Recycler) Option {
	return func(c *Controller) {
		c.recycler = r
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller drives the vertical feed.
type Controller struct {
	gw       feed.Gateway
	store    *engagement.Store
	recycler *playback.Recycler
	logger   *log.Logger
	pageSize int
	prefetch int
	delegate *delegate

	mu       sync.Mutex
	list     *feed.List
	hasMore  bool
	loaded   bool
	loading  bool
	loadGen  uint64
	cursor   int // service offset of the next page: items received plus items skipped
	lastErr  error
	active   int
	appeared bool
	first    int
	last     int
	window   bool
	cells    map[string]*playback.Cell // item id -> bound cell
	owned    map[*playback.Cell]bool   // cells acquired from the recycler
	actions  Actions
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller reading pages from gw and routing engagement
// through store.
func New(gw feed.Gateway, store *engagement.Store, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		gw:       gw,
		store:    store,
		logger:   logging.WithPrefix("controller"),
		pageSize: DefaultPageSize,
		prefetch: DefaultPrefetchDistance,
		list:     feed.NewList(),
		appeared: true,
		cells:    make(map[string]*playback.Cell),
		owned:    make(map[*playback.Cell]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.delegate = &delegate{c: c}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadInitialPage fetches the first page, replaces the list and resets the
// active index to 0. Item 0 plays as soon as its cell is bound. A first page
// already within the prefetch distance of its end starts the next page in the
// background.
//
// On failure the current list is kept (empty on first load), Status reports
// the error as retryable and a *feed.GatewayError is returned.
func (c *Controller) LoadInitialPage(ctx context.Context) error {
	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	c.loading = true
	c.mu.Unlock()
	c.changed()

	page, err := c.gw.FetchPage(ctx, c.pageSize, 0)

	c.mu.Lock()
	if gen != c.loadGen {
		// A newer initial load superseded this one.
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.lastErr = feed.Wrap("fetch page", "", err)
		wrapped := c.lastErr
		c.mu.Unlock()
		c.logger.Error("initial page failed", "err", err)
		c.changed()
		return wrapped
	}

	c.pauseAllLocked()
	c.list.Reset(page.Items)
	c.cursor = len(page.Items) + page.Skipped
	c.hasMore = page.HasMore
	c.loaded = true
	c.lastErr = nil
	c.active = 0
	c.mu.Unlock()

	c.store.Track(page.Items...)

	c.mu.Lock()
	c.dropStaleCellsLocked()
	jobs := c.bindWindowLocked()
	c.playActiveLocked()
	prefetch := c.nearEndLocked()
	c.mu.Unlock()

	c.openBinds(ctx, jobs)

	c.logger.Info("initial page loaded", "items", len(page.Items), "skipped", page.Skipped, "has_more", page.HasMore)
	c.changed()
	if prefetch {
		c.prefetchAsync()
	}
	return nil
}

// LoadNextPage appends the next page. It does nothing when a load is already
// in flight, when the service reported no more items, or before the first
// page loaded. New items whose id is already present are skipped.
//
// The request offset is the service position consumed so far, so a page
// made only of skipped or duplicate items still moves paging forward. When
// such a page leaves the active card within the prefetch distance of the end,
// the following page is fetched in the background.
func (c *Controller) LoadNextPage(ctx context.Context) error {
	c.mu.Lock()
	if c.loading || !c.hasMore || !c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	gen := c.loadGen
	offset := c.cursor
	c.mu.Unlock()
	c.changed()

	page, err := c.gw.FetchPage(ctx, c.pageSize, offset)

	c.mu.Lock()
	if gen != c.loadGen {
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.lastErr = feed.Wrap("fetch page", "", err)
		wrapped := c.lastErr
		c.mu.Unlock()
		c.logger.Warn("next page failed", "offset", offset, "err", err)
		c.changed()
		return wrapped
	}

	consumed := len(page.Items) + page.Skipped
	before := c.list.Len()
	c.list.Append(page.Items)
	appended := c.list.Items()[before:]
	c.cursor = offset + consumed
	c.hasMore = page.HasMore
	c.lastErr = nil
	c.mu.Unlock()

	c.store.Track(appended...)

	c.mu.Lock()
	jobs := c.bindWindowLocked()
	c.playActiveLocked()
	prefetch := consumed > 0 && c.nearEndLocked()
	c.mu.Unlock()

	c.openBinds(ctx, jobs)

	c.logger.Debug("next page loaded", "offset", offset, "added", len(appended), "skipped", page.Skipped, "has_more", page.HasMore)
	c.changed()
	if prefetch {
		c.prefetchAsync()
	}
	return nil
}

// SetActiveIndex makes i the single playing card. The previous card is paused
// before the new one plays. Landing within the prefetch distance of the end
// starts loading the next page in the background.
func (c *Controller) SetActiveIndex(i int) {
	c.mu.Lock()
	if i == c.active || i < 0 || i >= c.list.Len() {
		c.mu.Unlock()
		return
	}

	if old := c.cellAtLocked(c.active); old != nil {
		old.Pause()
	}
	c.active = i
	c.playActiveLocked()

	prefetch := c.nearEndLocked()
	c.mu.Unlock()

	if prefetch {
		c.prefetchAsync()
	}
	c.changed()
}

// nearEndLocked reports whether the active card is within the prefetch
// distance of the end of a feed that has more pages.
func (c *Controller) nearEndLocked() bool {
	return c.hasMore && !c.loading && c.active >= c.list.Len()-c.prefetch
}

func (c *Controller) prefetchAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, prefetchTimeout)
		defer cancel()
		if err := c.LoadNextPage(ctx); err != nil {
			c.logger.Warn("prefetch failed", "err", err)
		}
	}()
}

// Appear resumes playback of the active card.
func (c *Controller) Appear() {
	c.mu.Lock()
	c.appeared = true
	c.playActiveLocked()
	c.mu.Unlock()
}

// Disappear pauses whichever card is playing.
func (c *Controller) Disappear() {
	c.mu.Lock()
	c.appeared = false
	c.pauseAllLocked()
	c.mu.Unlock()
}

// SetVisibleRange binds recycled cells to the items at indexes first..last
// and releases cells for items that left the range. It requires WithRecycler.
// Media for newly bound cells opens after the controller lock is released.
func (c *Controller) SetVisibleRange(ctx context.Context, first, last int) error {
	if c.recycler == nil {
		return fmt.Errorf("visible range needs a recycler")
	}
	if last < first {
		first, last = last, first
	}

	c.mu.Lock()
	c.first, c.last, c.window = first, last, true
	jobs := c.bindWindowLocked()
	c.playActiveLocked()
	c.mu.Unlock()

	c.openBinds(ctx, jobs)
	return nil
}

// Attach binds a host-managed cell to the item at index i. A media failure
// leaves the cell in its failed state and is returned for logging only.
func (c *Controller) Attach(ctx context.Context, i int, cell *playback.Cell) error {
	c.mu.Lock()
	if _, ok := c.list.At(i); !ok {
		c.mu.Unlock()
		return fmt.Errorf("attach: index %d out of range", i)
	}
	for id, bound := range c.cells {
		if bound == cell {
			delete(c.cells, id)
		}
	}
	job, load := c.reserveLocked(i, cell)
	c.mu.Unlock()

	if !load {
		return nil
	}
	return c.open(ctx, job)
}

// Detach unbinds whatever cell renders the item at index i.
func (c *Controller) Detach(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.list.At(i)
	if !ok {
		return
	}
	c.releaseLocked(item.ID)
}

// bindJob is a cell claimed for an item whose media has not opened yet.
type bindJob struct {
	index int
	cell  *playback.Cell
	token playback.Token
}

// reserveLocked claims cell for the item at i without opening media. If i is
// the active card its play request is queued until the media is ready.
func (c *Controller) reserveLocked(i int, cell *playback.Cell) (bindJob, bool) {
	item, _ := c.list.At(i)
	if prev, ok := c.cells[item.ID]; ok && prev != cell {
		c.releaseLocked(item.ID)
	}

	cell.SetDelegate(c.delegate)
	token, load := cell.Prepare(c.store.Overlay(item))
	c.cells[item.ID] = cell
	if i == c.active {
		c.playActiveLocked()
	}
	return bindJob{index: i, cell: cell, token: token}, load
}

// openBinds opens media for reserved cells. It must run without c.mu held.
// A cell rebound or released meanwhile discards its stale player.
func (c *Controller) openBinds(ctx context.Context, jobs []bindJob) {
	for _, job := range jobs {
		_ = c.open(ctx, job)
	}
}

func (c *Controller) open(ctx context.Context, job bindJob) error {
	err := job.cell.Load(ctx, job.token)
	if err != nil {
		c.logger.Warn("cell bind failed", "index", job.index, "item", job.token.ItemID, "err", err)
	}
	return err
}

func (c *Controller) releaseLocked(itemID string) {
	cell, ok := c.cells[itemID]
	if !ok {
		return
	}
	delete(c.cells, itemID)
	if c.owned[cell] {
		delete(c.owned, cell)
		c.recycler.Release(cell)
		return
	}
	cell.Unbind()
}

// bindWindowLocked reconciles recycled cells with the visible range and
// returns the cells whose media still has to open, active card first.
func (c *Controller) bindWindowLocked() []bindJob {
	if c.recycler == nil || !c.window {
		return nil
	}

	wanted := make(map[string]int)
	for i := max(c.first, 0); i <= c.last && i < c.list.Len(); i++ {
		item, _ := c.list.At(i)
		wanted[item.ID] = i
	}

	for id, cell := range c.cells {
		if _, keep := wanted[id]; !keep && c.owned[cell] {
			c.releaseLocked(id)
		}
	}

	indexes := make([]int, 0, len(wanted))
	for id, i := range wanted {
		if _, bound := c.cells[id]; !bound {
			indexes = append(indexes, i)
		}
	}
	sort.Slice(indexes, func(a, b int) bool {
		if (indexes[a] == c.active) != (indexes[b] == c.active) {
			return indexes[a] == c.active
		}
		return indexes[a] < indexes[b]
	})

	var jobs []bindJob
	for _, i := range indexes {
		cell, err := c.recycler.Acquire()
		if err != nil {
			c.logger.Warn("no cell for visible item", "index", i, "err", err)
			continue
		}
		c.owned[cell] = true
		if job, load := c.reserveLocked(i, cell); load {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// dropStaleCellsLocked unbinds cells whose item is no longer in the list.
func (c *Controller) dropStaleCellsLocked() {
	for id := range c.cells {
		if c.list.IndexOf(id) < 0 {
			c.releaseLocked(id)
		}
	}
}

func (c *Controller) cellAtLocked(i int) *playback.Cell {
	item, ok := c.list.At(i)
	if !ok {
		return nil
	}
	return c.cells[item.ID]
}

// playActiveLocked plays the active card if it is bound and the feed is on
// screen. Any other playing cell is paused first.
func (c *Controller) playActiveLocked() {
	if !c.appeared {
		return
	}
	cell := c.cellAtLocked(c.active)
	if cell == nil {
		return
	}
	for _, other := range c.cells {
		if other != cell {
			other.Pause()
		}
	}
	cell.Play()
}

func (c *Controller) pauseAllLocked() {
	for _, cell := range c.cells {
		cell.Pause()
	}
}

// Item returns a snapshot of the item at index i with current engagement.
func (c *Controller) Item(i int) (feed.Item, bool) {
	c.mu.Lock()
	item, ok := c.list.At(i)
	c.mu.Unlock()
	if !ok {
		return feed.Item{}, false
	}
	return c.store.Overlay(item), true
}

// Items returns snapshots of every item in order.
func (c *Controller) Items() []feed.Item {
	c.mu.Lock()
	items := c.list.Items()
	c.mu.Unlock()
	for i := range items {
		items[i] = c.store.Overlay(items[i])
	}
	return items
}

// Len returns the number of items.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// ActiveIndex returns the index of the card allowed to play.
func (c *Controller) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// HasMore reports whether the service has more pages.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Status returns a snapshot of the loading state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Loaded:    c.loaded,
		Loading:   c.loading,
		Empty:     c.list.Len() == 0 && !c.loading,
		HasMore:   c.hasMore,
		Retryable: feed.IsRetryable(c.lastErr),
		Err:       c.lastErr,
		Len:       c.list.Len(),
		Active:    c.active,
	}
}

// Cell returns the cell bound to the item at index i.
func (c *Controller) Cell(i int) (*playback.Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell := c.cellAtLocked(i)
	return cell, cell != nil
}

// PlayingCount returns how many bound cells are playing. It is never above 1.
func (c *Controller) PlayingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cell := range c.cells {
		if cell.IsPlaying() {
			n++
		}
	}
	return n
}

// SetActions registers the card action handlers.
func (c *Controller) SetActions(a Actions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = a
}

// OnChange registers fn to be called after the list, the active index or the
// loading state changes. fn runs without the controller lock held.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Wait blocks until background prefetches finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels background prefetches, waits for them and releases every
// bound cell.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.cells {
		c.releaseLocked(id)
	}
}

// delegate forwards card actions to the registered Actions. Cells hold the
// delegate, not the controller's exported surface.
type delegate struct {
	c *Controller
}

func (d *delegate) handlers() Actions {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return d.c.actions
}

func (d *delegate) OnComment(item feed.Item) {
	if fn := d.handlers().OnComment; fn != nil {
		fn(d.c.store.Overlay(item))
	}
}

func (d *delegate) OnShare(item feed.Item) {
	if fn := d.handlers().OnShare; fn != nil {
		fn(d.c.store.Overlay(item))
	}
}

func (d *delegate) OnMore(item feed.Item) {
	if fn := d.handlers().OnMore; fn != nil {
		fn(d.c.store.Overlay(item))
	}
}

func (d *delegate) OnProfileTap(author feed.Author) {
	if fn := d.handlers().OnProfileTap; fn != nil {
		fn(author)
	}
}
