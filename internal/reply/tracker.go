// Package reply moves run output back to its channel: a dispatcher per
// run holding a delivery reservation, a follow-up queue for messages that
// arrive while the run is busy, and a typing indicator controller.
package reply

import (
	"context"
	"sync"
)

// Tracker counts outstanding delivery work across all runs: one count
// per live dispatcher reservation plus one per enqueued, undelivered
// message. A restart waits on it so queued replies are not lost
// mid-flight.
type Tracker struct {
	mu      sync.Mutex
	pending int
	waiters []chan struct{}
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) acquire() {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
}

func (t *Tracker) release() {
	t.mu.Lock()
	t.pending--
	if t.pending <= 0 {
		t.pending = 0
		for _, w := range t.waiters {
			close(w)
		}
		t.waiters = nil
	}
	t.mu.Unlock()
}

// Pending returns the current reservation count.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// WaitIdle blocks until no deliveries are outstanding or ctx is done.
func (t *Tracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	if t.pending == 0 {
		t.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	t.waiters = append(t.waiters, w)
	t.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
