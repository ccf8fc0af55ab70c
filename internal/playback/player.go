// Package playback owns media players for feed cards.
//
// A Cell holds at most one player bound to one feed item. Binding a
// different item tears the old player down before the new one is opened, so
// the number of live players equals the number of bound cells whose media
// opened. A failed cell stays bound to show its thumbnail and holds no player.
package playback

import (
	"context"
	"sync/atomic"
	"time"
)

// Player is a native media player instance.
//
// Implementations deliver OnEnd and OnError callbacks asynchronously, never
// from inside Play, Pause, Seek or Close.
type Player interface {
	Play()
	Pause()
	Seek(pos time.Duration)

	// OnEnd registers the end-of-media observer. A nil fn detaches it.
	OnEnd(fn func())

	// OnError registers the runtime decode failure observer. A nil fn detaches it.
	OnError(fn func(error))

	// Close stops playback and releases decoder resources.
	Close() error
}

// Engine creates players.
type Engine interface {
	Open(ctx context.Context, mediaURL string) (Player, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, mediaURL string) (Player, error)

// Open calls f.
func (f EngineFunc) Open(ctx context.Context, mediaURL string) (Player, error) {
	return f(ctx, mediaURL)
}

// Tracker counts live player resources across cells.
type Tracker struct {
	live   atomic.Int64
	opened atomic.Uint64
	closed atomic.Uint64
}

// Live returns the number of players opened and not yet closed.
func (t *Tracker) Live() int {
	return int(t.live.Load())
}

// Opened returns the lifetime number of players opened.
func (t *Tracker) Opened() uint64 {
	return t.opened.Load()
}

// Closed returns the lifetime number of players released.
func (t *Tracker) Closed() uint64 {
	return t.closed.Load()
}

func (t *Tracker) open() {
	t.live.Add(1)
	t.opened.Add(1)
}

func (t *Tracker) release() {
	t.live.Add(-1)
	t.closed.Add(1)
}
