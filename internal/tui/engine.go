package tui

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gauthierbraillon/reelcast/internal/playback"
)

// ClockEngine opens players that advance a media clock without decoding
// anything. A terminal cannot render video, so the clock drives the progress
// bar and looping instead.
type ClockEngine struct {
	clip time.Duration
	now  func() time.Time

	mu      sync.Mutex
	players map[*clockPlayer]struct{}
}

// NewClockEngine creates an engine whose clips last clip.
func NewClockEngine(clip time.Duration) *ClockEngine {
	if clip <= 0 {
		clip = 15 * time.Second
	}
	return &ClockEngine{
		clip:    clip,
		now:     time.Now,
		players: make(map[*clockPlayer]struct{}),
	}
}

// Open validates mediaURL and returns a paused player at position 0.
func (e *ClockEngine) Open(ctx context.Context, mediaURL string) (playback.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(mediaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid media URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported media scheme %q", u.Scheme)
	}

	p := &clockPlayer{engine: e, url: mediaURL, clip: e.clip}
	e.mu.Lock()
	e.players[p] = struct{}{}
	e.mu.Unlock()
	return p, nil
}

// Progress returns the position of the open player for mediaURL, preferring
// one that is playing.
func (e *ClockEngine) Progress(mediaURL string) (pos, clip time.Duration, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var found *clockPlayer
	for p := range e.players {
		if p.url != mediaURL {
			continue
		}
		if found == nil || p.isPlaying() {
			found = p
		}
	}
	if found == nil {
		return 0, 0, false
	}
	return found.position(), found.clip, true
}

// Live returns the number of players not yet closed.
func (e *ClockEngine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.players)
}

func (e *ClockEngine) forget(p *clockPlayer) {
	e.mu.Lock()
	delete(e.players, p)
	e.mu.Unlock()
}

type clockPlayer struct {
	engine *ClockEngine
	url    string
	clip   time.Duration

	mu      sync.Mutex
	pos     time.Duration
	started time.Time
	playing bool
	closed  bool
	timer   *time.Timer
	gen     uint64
	onEnd   func()
	onError func(error)
}

func (p *clockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.playing {
		return
	}
	if p.pos >= p.clip {
		p.pos = 0
	}
	p.playing = true
	p.started = p.engine.now()
	p.scheduleLocked()
}

func (p *clockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return
	}
	p.pos = p.positionLocked()
	p.playing = false
	p.stopLocked()
}

func (p *clockPlayer) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.pos = min(max(pos, 0), p.clip)
	if p.playing {
		p.started = p.engine.now()
		p.scheduleLocked()
	}
}

func (p *clockPlayer) OnEnd(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnd = fn
}

func (p *clockPlayer) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *clockPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	p.stopLocked()
	p.onEnd = nil
	p.onError = nil
	p.mu.Unlock()

	p.engine.forget(p)
	return nil
}

// finish runs on the timer goroutine, so OnEnd is never delivered from
// inside Play or Seek.
func (p *clockPlayer) finish(gen uint64) {
	p.mu.Lock()
	if p.gen != gen || !p.playing {
		p.mu.Unlock()
		return
	}
	p.pos = p.clip
	p.playing = false
	p.timer = nil
	fn := p.onEnd
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (p *clockPlayer) scheduleLocked() {
	p.stopLocked()
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.clip-p.pos, func() { p.finish(gen) })
}

func (p *clockPlayer) stopLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *clockPlayer) positionLocked() time.Duration {
	if !p.playing {
		return p.pos
	}
	return min(p.pos+p.engine.now().Sub(p.started), p.clip)
}

func (p *clockPlayer) position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *clockPlayer) isPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
