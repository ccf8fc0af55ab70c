// Package playbacktest provides an in-memory playback engine for tests.
package playbacktest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/playback"
)

// ErrUnplayable is returned by Engine.Open for URLs listed in Broken.
var ErrUnplayable = errors.New("unsupported codec")

// Engine opens fake players and remembers every one it created.
type Engine struct {
	mu      sync.Mutex
	players []*Player

	// Broken lists media URLs that fail to open.
	Broken map[string]bool

	// Gate makes Open wait for the channel of its URL to close. Opening, when
	// set, receives the URL of every Open as it starts waiting.
	Gate    map[string]chan struct{}
	Opening chan string
}

// Open implements playback.Engine.
func (e *Engine) Open(ctx context.Context, mediaURL string) (playback.Player, error) {
	e.mu.Lock()
	gate, opening := e.Gate[mediaURL], e.Opening
	e.mu.Unlock()

	if gate != nil {
		if opening != nil {
			opening <- mediaURL
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Broken[mediaURL] {
		return nil, ErrUnplayable
	}
	p := &Player{URL: mediaURL}
	e.players = append(e.players, p)
	return p, nil
}

// Players returns every player opened so far.
func (e *Engine) Players() []*Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Player, len(e.players))
	copy(out, e.players)
	return out
}

// Last returns the most recently opened player for url, or nil.
func (e *Engine) Last(url string) *Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.players) - 1; i >= 0; i-- {
		if e.players[i].URL == url {
			return e.players[i]
		}
	}
	return nil
}

// Player is a fake playback.Player that records calls.
type Player struct {
	URL string

	mu      sync.Mutex
	playing bool
	closed  bool
	plays   int
	pauses  int
	seeks   []time.Duration
	closes  int
	onEnd   func()
	onError func(error)
	journal *[]string
}

// Play implements playback.Player.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.plays++
	p.log("play")
}

// Pause implements playback.Player.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.pauses++
	p.log("pause")
}

// Seek implements playback.Player.
func (p *Player) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, pos)
}

// OnEnd implements playback.Player.
func (p *Player) OnEnd(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnd = fn
}

// OnError implements playback.Player.
func (p *Player) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// Close implements playback.Player.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.closed = true
	p.closes++
	return nil
}

// Journal makes Play and Pause append "<url> play|pause" to j.
func (p *Player) Journal(j *[]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = j
}

func (p *Player) log(op string) {
	if p.journal != nil {
		*p.journal = append(*p.journal, p.URL+" "+op)
	}
}

// Finish simulates reaching end of media.
func (p *Player) Finish() {
	p.mu.Lock()
	fn := p.onEnd
	p.playing = false
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Fail simulates a runtime decode failure.
func (p *Player) Fail(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Playing reports whether the player is currently playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Closed reports whether Close was called.
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Counts returns how many times Play, Pause and Close were called.
func (p *Player) Counts() (plays, pauses, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays, p.pauses, p.closes
}

// Seeks returns every seek position requested.
func (p *Player) Seeks() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Duration, len(p.seeks))
	copy(out, p.seeks)
	return out
}

// HasObservers reports whether end or error observers are attached.
func (p *Player) HasObservers() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onEnd != nil || p.onError != nil
}
