package feed

import "context"

// Gateway is the remote feed service the engine consumes.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// FetchPage returns up to limit items starting at offset.
	FetchPage(ctx context.Context, limit, offset int) (Page, error)

	// SetLike commits the liked flag for an item and returns the committed value.
	SetLike(ctx context.Context, itemID string, liked bool) (bool, error)

	// AddComment creates a comment and returns the canonical value.
	AddComment(ctx context.Context, itemID, text string) (Comment, error)

	// FetchComments returns the comments for an item, newest first.
	FetchComments(ctx context.Context, itemID string) ([]Comment, error)

	// IncrementShare bumps the share counter for an item.
	IncrementShare(ctx context.Context, itemID string) error
}
