// Package engagement holds per-item liked flags and counters and runs user
// engagement actions against the remote gateway.
//
// Likes are optimistic: the new state is applied and returned immediately,
// then committed or rolled back when the gateway answers. Comments and shares
// only change local state after the gateway confirms them.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
)

var (
	// ErrMutationPending rejects a like toggle while the previous one is unresolved.
	ErrMutationPending = errors.New("a like for this item is still pending")

	// ErrUnknownItem means the item was never tracked by the store.
	ErrUnknownItem = errors.New("unknown item")

	// ErrEmptyComment rejects blank comment text before it reaches the gateway.
	ErrEmptyComment = errors.New("comment text is empty")
)

// Engagement is the liked flag and counters of one item.
type Engagement struct {
	Liked    bool
	Counters feed.Counters
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIDGenerator overrides mutation id generation (useful for testing).
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// Store is the engagement state store. It is safe for concurrent use; all
// state transitions happen under one lock and gateway calls never hold it.
type Store struct {
	gw     feed.Gateway
	logger *log.Logger
	newID  func() string

	mu       sync.Mutex
	states   map[string]*Engagement
	comments map[string][]feed.Comment
	likes    map[string]*Mutation // pending like per item
	subs     map[string]map[int]func(Engagement)
	nextSub  int

	wg sync.WaitGroup
}

// NewStore creates a store that sends mutations through gw.
func NewStore(gw feed.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		logger:   logging.WithPrefix("engagement"),
		newID:    uuid.NewString,
		states:   make(map[string]*Engagement),
		comments: make(map[string][]feed.Comment),
		likes:    make(map[string]*Mutation),
		subs:     make(map[string]map[int]func(Engagement)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track seeds or refreshes the state of items from a fetched copy. While a
// like is pending for an item its optimistic liked flag and like count are kept.
func (s *Store) Track(items ...feed.Item) {
	type change struct {
		id    string
		state Engagement
	}
	var changes []change

	s.mu.Lock()
	for _, item := range items {
		fresh := Engagement{Liked: item.Liked, Counters: item.Counters}
		current, ok := s.states[item.ID]
		if !ok {
			s.states[item.ID] = &fresh
			continue
		}
		if _, pending := s.likes[item.ID]; pending {
			fresh.Liked = current.Liked
			fresh.Counters.Likes = current.Counters.Likes
		}
		if *current != fresh {
			*current = fresh
			changes = append(changes, change{item.ID, fresh})
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.notify(c.id, c.state)
	}
}

// State returns the current engagement of an item.
func (s *Store) State(itemID string) (Engagement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[itemID]
	if !ok {
		return Engagement{}, false
	}
	return *e, true
}

// Overlay returns item with the store's liked flag and counters applied.
// Untracked items are returned unchanged.
func (s *Store) Overlay(item feed.Item) feed.Item {
	if e, ok := s.State(item.ID); ok {
		item.Liked = e.Liked
		item.Counters = e.Counters
	}
	return item
}

// Pending reports whether a like mutation for itemID is unresolved.
func (s *Store) Pending(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.likes[itemID]
	return ok
}

// ToggleLike flips the liked flag of an item optimistically. The returned
// mutation already carries the new state; its Wait reports the gateway
// outcome. A failure restores the pre-toggle liked flag and count before the
// error becomes visible.
//
// The gateway call is detached from ctx cancellation so scrolling away from
// the item does not abort it.
func (s *Store) ToggleLike(ctx context.Context, itemID string) (*Mutation, error) {
	s.mu.Lock()
	state, ok := s.states[itemID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("toggle like %s: %w", itemID, ErrUnknownItem)
	}
	if _, pending := s.likes[itemID]; pending {
		s.mu.Unlock()
		return nil, ErrMutationPending
	}

	act := &likeAction{liked: !state.Liked}
	before := *state
	act.apply(state)

	m := newMutation(s.newID(), itemID, act.kind(), act.delta())
	m.Optimistic = *state
	m.markPending()
	s.likes[itemID] = m
	after := *state
	s.mu.Unlock()

	s.notify(itemID, after)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := act.send(context.WithoutCancel(ctx), s.gw, itemID)
		s.finishLike(m, act, before, err)
	}()

	return m, nil
}

func (s *Store) finishLike(m *Mutation, act *likeAction, before Engagement, err error) {
	s.mu.Lock()
	if s.likes[m.ItemID] == m {
		delete(s.likes, m.ItemID)
	}
	state, ok := s.states[m.ItemID]
	changed := false
	if ok {
		switch {
		case err != nil:
			act.revert(state, before)
			changed = true
		case act.committed != act.liked:
			// The service settled on the other value; follow it.
			(&likeAction{liked: act.committed}).apply(state)
			changed = true
		}
	}
	var after Engagement
	if ok {
		after = *state
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("like rolled back", "item", m.ItemID, "mutation", m.ID, "err", err)
		err = feed.Wrap("toggle like", m.ItemID, err)
	}
	if changed {
		s.notify(m.ItemID, after)
	}
	m.resolve(err)
}

// AddComment submits text and, once the gateway returns the canonical
// comment, prepends it to the cached list and bumps the comment count. On
// failure nothing local changes and the error is returned so the caller can
// keep the compose field populated.
func (s *Store) AddComment(ctx context.Context, itemID, text string) (feed.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return feed.Comment{}, ErrEmptyComment
	}
	if _, ok := s.State(itemID); !ok {
		return feed.Comment{}, fmt.Errorf("add comment %s: %w", itemID, ErrUnknownItem)
	}

	act := &commentAction{text: text}
	m, err := s.commit(ctx, itemID, act)
	if err != nil {
		return feed.Comment{}, err
	}

	s.mu.Lock()
	if list, ok := s.comments[itemID]; ok {
		s.comments[itemID] = append([]feed.Comment{act.created}, list...)
	} else {
		s.comments[itemID] = []feed.Comment{act.created}
	}
	s.mu.Unlock()

	s.logger.Debug("comment added", "item", itemID, "mutation", m.ID, "comment", act.created.ID)
	return act.created, nil
}

// IncrementShare reports a completed share. The share count only moves after
// the gateway succeeds; failures are logged and swallowed.
func (s *Store) IncrementShare(ctx context.Context, itemID string) {
	if _, ok := s.State(itemID); !ok {
		s.logger.Warn("share for untracked item ignored", "item", itemID)
		return
	}
	if _, err := s.commit(ctx, itemID, shareAction{}); err != nil {
		s.logger.Warn("share increment failed", "item", itemID, "err", err)
	}
}

// commit runs a non-optimistic action: send first, apply on success.
func (s *Store) commit(ctx context.Context, itemID string, act action) (*Mutation, error) {
	m := newMutation(s.newID(), itemID, act.kind(), act.delta())
	if e, ok := s.State(itemID); ok {
		m.Optimistic = e
	}
	m.markPending()

	if err := act.send(ctx, s.gw, itemID); err != nil {
		err = feed.Wrap(string(act.kind()), itemID, err)
		m.resolve(err)
		return m, err
	}

	s.mu.Lock()
	state, ok := s.states[itemID]
	var after Engagement
	if ok {
		act.apply(state)
		after = *state
	}
	s.mu.Unlock()

	if ok {
		s.notify(itemID, after)
	}
	m.resolve(nil)
	return m, nil
}

// FetchComments loads the comments for an item and caches them for display.
func (s *Store) FetchComments(ctx context.Context, itemID string) ([]feed.Comment, error) {
	list, err := s.gw.FetchComments(ctx, itemID)
	if err != nil {
		return nil, feed.Wrap("fetch comments", itemID, err)
	}

	cached := make([]feed.Comment, len(list))
	copy(cached, list)

	s.mu.Lock()
	s.comments[itemID] = cached
	s.mu.Unlock()

	return list, nil
}

// Comments returns the cached comments for an item, newest first.
func (s *Store) Comments(itemID string) []feed.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.comments[itemID]
	out := make([]feed.Comment, len(list))
	copy(out, list)
	return out
}

// Subscribe registers fn to receive the new state of itemID after every
// change. The returned function cancels the subscription.
func (s *Store) Subscribe(itemID string, fn func(Engagement)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[itemID] == nil {
		s.subs[itemID] = make(map[int]func(Engagement))
	}
	s.subs[itemID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[itemID], id)
			if len(s.subs[itemID]) == 0 {
				delete(s.subs, itemID)
			}
		})
	}
}

// notify calls subscribers outside the lock.
func (s *Store) notify(itemID string, state Engagement) {
	s.mu.Lock()
	fns := make([]func(Engagement), 0, len(s.subs[itemID]))
	for _, fn := range s.subs[itemID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Wait blocks until every in-flight like call has resolved.
func (s *Store) Wait() {
	s.wg.Wait()
}
