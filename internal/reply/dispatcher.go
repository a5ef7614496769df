package reply

import (
	"context"
	"sync"

	. "github.com/gateward/gateward/internal/logging"
)

// Delivery is one outbound message.
type Delivery struct {
	Channel   string
	To        string
	AccountID string
	Text      string
}

// Sender pushes a delivery onto its channel transport.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// Dispatcher serializes the deliveries of one run. It holds a tracker
// reservation from creation until the run is marked complete AND every
// queued delivery has drained, so shutdown never races an in-flight reply.
type Dispatcher struct {
	sender  Sender
	tracker *Tracker

	mu       sync.Mutex
	queue    []Delivery
	complete bool
	released bool
	running  bool

	onIdle []func()
	done   chan struct{}
}

func NewDispatcher(sender Sender, tracker *Tracker) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		tracker: tracker,
		done:    make(chan struct{}),
	}
	tracker.acquire()
	return d
}

// Enqueue queues a delivery and starts the drain worker if idle. Each
// queued delivery holds its own tracker count until it is handed to the
// sender, so Pending covers undelivered messages, not just live runs.
// Enqueueing after MarkComplete is a programming error and is dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, delivery Delivery) {
	d.mu.Lock()
	if d.complete {
		d.mu.Unlock()
		L_warn("delivery enqueued after completion, dropping")
		return
	}
	d.queue = append(d.queue, delivery)
	d.tracker.acquire()
	d.startLocked(ctx)
	d.mu.Unlock()
}

// MarkComplete flags the run as finished. The reservation is released once
// the queue drains; with an empty queue it releases immediately.
func (d *Dispatcher) MarkComplete() {
	d.mu.Lock()
	d.complete = true
	if !d.running && len(d.queue) == 0 {
		d.releaseLocked()
	}
	d.mu.Unlock()
}

// OnIdle registers a callback fired once, after completion and drain.
func (d *Dispatcher) OnIdle(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		go fn()
		return
	}
	d.onIdle = append(d.onIdle, fn)
}

// Done is closed once the dispatcher has fully drained after completion.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) startLocked(ctx context.Context) {
	if d.running {
		return
	}
	d.running = true
	go d.drain(ctx)
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			if d.complete {
				d.releaseLocked()
			}
			d.mu.Unlock()
			return
		}
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.sender.Send(ctx, next); err != nil {
			L_error("failed to deliver reply to %s/%s: %v", next.Channel, next.To, err)
		}
		d.tracker.release()
	}
}

func (d *Dispatcher) releaseLocked() {
	if d.released {
		return
	}
	d.released = true
	d.tracker.release()
	callbacks := d.onIdle
	d.onIdle = nil
	close(d.done)
	for _, fn := range callbacks {
		go fn()
	}
}
