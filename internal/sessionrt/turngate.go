package sessionrt

import "context"

// TurnGate is a process-wide counting semaphore a session actor's turn
// loop acquires around each provider call, bounding how many provider
// requests run concurrently across every session in the daemon. It is
// advisory only: an actor holds it just for the duration of one provider
// call, never across the rest of its mailbox processing, so Status,
// SetModel, and other control messages for any session are never blocked
// by it.
type TurnGate struct {
	sem chan struct{}
}

// NewTurnGate creates a gate admitting up to n concurrent provider calls.
// n <= 0 is treated as 1.
func NewTurnGate(n int) *TurnGate {
	if n <= 0 {
		n = 1
	}
	return &TurnGate{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is canceled.
func (g *TurnGate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot Acquire reserved.
func (g *TurnGate) Release() {
	select {
	case <-g.sem:
	default:
	}
}
