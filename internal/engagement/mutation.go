package engagement

import (
	"context"
	"sync"
)

// MutationKind identifies what a mutation changes.
type MutationKind string

const (
	KindLike    MutationKind = "like"
	KindComment MutationKind = "comment"
	KindShare   MutationKind = "share"
)

// MutationStatus is the lifecycle state of a mutation.
type MutationStatus string

const (
	// StatusIdle means the mutation was created but not yet sent
	StatusIdle MutationStatus = "Idle"

	// StatusPending means the gateway call is in flight
	StatusPending MutationStatus = "Pending"

	// StatusCommitted means the gateway confirmed the change
	StatusCommitted MutationStatus = "Committed"

	// StatusRolledBack means the gateway call failed and local state was restored
	StatusRolledBack MutationStatus = "RolledBack"
)

// String returns the string representation of MutationStatus
func (s MutationStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the mutation is committed or rolled back
func (s MutationStatus) IsTerminal() bool {
	return s == StatusCommitted || s == StatusRolledBack
}

// Mutation is one user engagement action in flight. It behaves like a future:
// Done is closed when the gateway call resolves, after which Err and Status
// are final.
type Mutation struct {
	ID     string
	ItemID string
	Kind   MutationKind
	Delta  int64

	// Optimistic is the state handed back to the caller when the mutation
	// started. For non-optimistic kinds it is the state at creation.
	Optimistic Engagement

	mu     sync.Mutex
	status MutationStatus
	err    error
	done   chan struct{}
}

func newMutation(id, itemID string, kind MutationKind, delta int64) *Mutation {
	return &Mutation{
		ID:     id,
		ItemID: itemID,
		Kind:   kind,
		Delta:  delta,
		status: StatusIdle,
		done:   make(chan struct{}),
	}
}

// Status returns the current status.
func (m *Mutation) Status() MutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Done is closed once the mutation reaches a terminal status.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Err returns the gateway failure for a rolled back mutation, nil otherwise.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the mutation resolves or ctx is done.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) markPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusIdle {
		m.status = StatusPending
	}
}

// resolve moves a pending mutation to its terminal status. Later calls are ignored.
func (m *Mutation) resolve(err error) {
	m.mu.Lock()
	if m.status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.status = StatusRolledBack
		m.err = err
	} else {
		m.status = StatusCommitted
	}
	m.mu.Unlock()
	close(m.done)
}
