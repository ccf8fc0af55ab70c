package engagement

import (
	"context"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

// action is the behaviour of one mutation kind. The variant set is fixed:
// likeAction, commentAction and shareAction.
type action interface {
	kind() MutationKind
	delta() int64
	apply(e *Engagement)

	// revert restores the fields this action touched to their values in before.
	revert(e *Engagement, before Engagement)

	send(ctx context.Context, gw feed.Gateway, itemID string) error
}

type likeAction struct {
	liked bool

	// committed is the liked flag reported by the gateway.
	committed bool
}

func (a *likeAction) kind() MutationKind { return KindLike }

func (a *likeAction) delta() int64 {
	if a.liked {
		return 1
	}
	return -1
}

func (a *likeAction) apply(e *Engagement) {
	e.Liked = a.liked
	e.Counters.Likes = adjust(e.Counters.Likes, a.delta())
}

func (a *likeAction) revert(e *Engagement, before Engagement) {
	e.Liked = before.Liked
	e.Counters.Likes = before.Counters.Likes
}

func (a *likeAction) send(ctx context.Context, gw feed.Gateway, itemID string) error {
	committed, err := gw.SetLike(ctx, itemID, a.liked)
	if err != nil {
		return err
	}
	a.committed = committed
	return nil
}

type commentAction struct {
	text    string
	created feed.Comment
}

func (a *commentAction) kind() MutationKind { return KindComment }
func (a *commentAction) delta() int64       { return 1 }

func (a *commentAction) apply(e *Engagement) {
	e.Counters.Comments = adjust(e.Counters.Comments, 1)
}

func (a *commentAction) revert(*Engagement, Engagement) {}

func (a *commentAction) send(ctx context.Context, gw feed.Gateway, itemID string) error {
	c, err := gw.AddComment(ctx, itemID, a.text)
	if err != nil {
		return err
	}
	a.created = c
	return nil
}

type shareAction struct{}

func (shareAction) kind() MutationKind { return KindShare }
func (shareAction) delta() int64       { return 1 }

func (shareAction) apply(e *Engagement) {
	e.Counters.Shares = adjust(e.Counters.Shares, 1)
}

func (shareAction) revert(*Engagement, Engagement) {}

func (shareAction) send(ctx context.Context, gw feed.Gateway, itemID string) error {
	return gw.IncrementShare(ctx, itemID)
}

// adjust applies delta to n without going below zero.
func adjust(n, delta int64) int64 {
	n += delta
	if n < 0 {
		return 0
	}
	return n
}
