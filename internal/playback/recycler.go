package playback

import (
	"errors"
	"sync"
)

// ErrPoolExhausted is returned by Acquire when every cell is in use.
var ErrPoolExhausted = errors.New("no free playback cell")

// Recycler is a bounded pool of cells sharing one engine and tracker.
// Released cells are unbound before they become available again.
type Recycler struct {
	engine  Engine
	tracker *Tracker
	max     int
	opts    []CellOption

	mu    sync.Mutex
	free  []*Cell
	inUse map[*Cell]struct{}
}

// NewRecycler creates a pool of at most max cells. If max <= 0, 3 is used:
// the active card plus one neighbour on each side.
func NewRecycler(engine Engine, max int, opts ...CellOption) *Recycler {
	if max <= 0 {
		max = 3
	}
	tracker := &Tracker{}
	return &Recycler{
		engine:  engine,
		tracker: tracker,
		max:     max,
		opts:    append([]CellOption{WithTracker(tracker)}, opts...),
		inUse:   make(map[*Cell]struct{}),
	}
}

// Acquire returns an unbound cell.
func (r *Recycler) Acquire() (*Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.free); n > 0 {
		c := r.free[n-1]
		r.free = r.free[:n-1]
		r.inUse[c] = struct{}{}
		return c, nil
	}
	if len(r.inUse) >= r.max {
		return nil, ErrPoolExhausted
	}
	c := NewCell(r.engine, r.opts...)
	r.inUse[c] = struct{}{}
	return c, nil
}

// Release unbinds c and returns it to the pool. Cells not acquired from this
// recycler are ignored.
func (r *Recycler) Release(c *Cell) {
	r.mu.Lock()
	if _, ok := r.inUse[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.inUse, c)
	r.mu.Unlock()

	c.Unbind()
	c.SetDelegate(nil)
	c.OnStateChange(nil)

	r.mu.Lock()
	r.free = append(r.free, c)
	r.mu.Unlock()
}

// InUse returns the number of acquired cells.
func (r *Recycler) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inUse)
}

// Capacity returns the maximum number of cells.
func (r *Recycler) Capacity() int {
	return r.max
}

// Tracker returns the tracker shared by the pool's cells.
func (r *Recycler) Tracker() *Tracker {
	return r.tracker
}
