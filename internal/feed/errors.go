package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is a transient transport failure. Retry policy belongs to the caller.
	ErrNetwork = errors.New("network error")

	// ErrAuth is an unauthenticated mutation attempt; permanent until re-auth.
	ErrAuth = errors.New("authentication required")

	// ErrDecode is a malformed page or item payload.
	ErrDecode = errors.New("malformed payload")

	// ErrResource is a media load or decode failure inside a playback cell.
	ErrResource = errors.New("media unavailable")
)

// GatewayError records a failed gateway operation.
type GatewayError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Wrap returns err as a *GatewayError for op. Errors that already are a
// GatewayError are returned unchanged; nil stays nil.
func Wrap(op, itemID string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, ItemID: itemID, Err: err}
}

// IsRetryable reports whether err is worth retrying from a user affordance.
// Auth failures need a sign-in first, so they are not.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrAuth)
}
