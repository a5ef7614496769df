// Package orchestrator tracks questions a delegated run asks of its
// orchestrator, from creation through resolution or abandonment.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	. "github.com/gateward/gateward/internal/logging"
)

// Request lifecycle. pending and notified are live; everything else is
// terminal.
const (
	StatusPending   = "pending"
	StatusNotified  = "notified"
	StatusResolved  = "resolved"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusOrphaned  = "orphaned"
)

// Resolve outcomes.
const (
	ResolveOK              = "ok"
	ResolveNotFound        = "not_found"
	ResolveForbidden       = "forbidden"
	ResolveAlreadyResolved = "already_resolved"
)

// DefaultRequestTimeout applies when the child asks without a deadline.
const DefaultRequestTimeout = 300 * time.Second

// Request is one question from a delegated run to its orchestrator.
type Request struct {
	ID               string    `json:"id"`
	ChildSessionKey  string    `json:"childSessionKey"`
	ParentSessionKey string    `json:"parentSessionKey"`
	RunID            string    `json:"runId"`
	Question         string    `json:"question"`
	Status           string    `json:"status"`
	Response         string    `json:"response,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	Deadline         time.Time `json:"deadline"`
	ResolvedAt       time.Time `json:"resolvedAt,omitempty"`
}

// Outcome is what a waiting child receives.
type Outcome struct {
	Status   string
	Response string
}

// Registry holds live and recently terminal requests, plus the channels of
// children blocked waiting on an answer.
type Registry struct {
	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string][]chan Outcome
}

func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[string]*Request),
		waiters:  make(map[string][]chan Outcome),
	}
}

// Create registers a pending request and returns it.
func (r *Registry) Create(childKey, parentKey, runID, question string, timeout time.Duration) *Request {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	now := time.Now()
	req := &Request{
		ID:               uuid.NewString(),
		ChildSessionKey:  childKey,
		ParentSessionKey: parentKey,
		RunID:            runID,
		Question:         question,
		Status:           StatusPending,
		CreatedAt:        now,
		Deadline:         now.Add(timeout),
	}

	r.mu.Lock()
	r.requests[req.ID] = req
	r.mu.Unlock()

	L_debug("orchestrator request %s created for %s (deadline %s)", req.ID, parentKey, req.Deadline.Format(time.RFC3339))
	return req
}

// Get returns a copy of the request.
func (r *Registry) Get(id string) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// MarkNotified records that the orchestrator has been told about the
// request. Only a pending request can move to notified.
func (r *Registry) MarkNotified(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != StatusPending {
		return false
	}
	req.Status = StatusNotified
	return true
}

// Resolve delivers an answer. Only the exact parent session may resolve.
// A terminal request reports already_resolved before the resolver is
// checked, so a stale resolver learns the request is settled rather
// than being told off.
func (r *Registry) Resolve(id, resolverKey, response string) (string, Request) {
	r.mu.Lock()
	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return ResolveNotFound, Request{}
	}
	if req.Status != StatusPending && req.Status != StatusNotified {
		snapshot := *req
		r.mu.Unlock()
		return ResolveAlreadyResolved, snapshot
	}
	if req.ParentSessionKey != resolverKey {
		snapshot := *req
		r.mu.Unlock()
		return ResolveForbidden, snapshot
	}

	req.Status = StatusResolved
	req.Response = response
	req.ResolvedAt = time.Now()
	snapshot := *req
	waiters := r.takeWaitersLocked(id)
	r.mu.Unlock()

	notify(waiters, Outcome{Status: StatusResolved, Response: response})
	return ResolveOK, snapshot
}

// Cancel moves a live request to cancelled.
func (r *Registry) Cancel(id string) bool {
	return r.terminate(id, StatusCancelled)
}

// OrphanByParent marks every live request addressed to parentKey as
// orphaned. Used when the orchestrator's run ends with questions still
// open.
func (r *Registry) OrphanByParent(parentKey string) int {
	r.mu.Lock()
	var ids []string
	for id, req := range r.requests {
		if req.ParentSessionKey == parentKey && isLive(req.Status) {
			req.Status = StatusOrphaned
			ids = append(ids, id)
		}
	}
	pendingWaiters := make(map[string][]chan Outcome, len(ids))
	for _, id := range ids {
		pendingWaiters[id] = r.takeWaitersLocked(id)
	}
	r.mu.Unlock()

	for _, ws := range pendingWaiters {
		notify(ws, Outcome{Status: StatusOrphaned})
	}
	return len(ids)
}

// ListByParent returns live requests awaiting an answer from parentKey.
func (r *Registry) ListByParent(parentKey string) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.requests {
		if req.ParentSessionKey == parentKey && isLive(req.Status) {
			out = append(out, *req)
		}
	}
	return out
}

// Wait blocks until the request reaches a terminal state or ctx is done.
// A request already terminal returns immediately.
func (r *Registry) Wait(ctx context.Context, id string) (Outcome, bool) {
	r.mu.Lock()
	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return Outcome{}, false
	}
	if !isLive(req.Status) {
		out := Outcome{Status: req.Status, Response: req.Response}
		r.mu.Unlock()
		return out, true
	}
	ch := make(chan Outcome, 1)
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	select {
	case out := <-ch:
		return out, true
	case <-ctx.Done():
		return Outcome{Status: StatusTimeout}, true
	}
}

// StartSweep runs the deadline sweep until ctx is cancelled. Live requests
// past their deadline become timeouts and their waiters are woken.
func (r *Registry) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepExpired(time.Now())
			}
		}
	}()
}

func (r *Registry) sweepExpired(now time.Time) {
	r.mu.Lock()
	var ids []string
	for id, req := range r.requests {
		if isLive(req.Status) && now.After(req.Deadline) {
			req.Status = StatusTimeout
			ids = append(ids, id)
		}
	}
	woken := make(map[string][]chan Outcome, len(ids))
	for _, id := range ids {
		woken[id] = r.takeWaitersLocked(id)
	}
	r.mu.Unlock()

	for id, ws := range woken {
		L_debug("orchestrator request %s timed out", id)
		notify(ws, Outcome{Status: StatusTimeout})
	}
}

// ResetForTests clears all state.
func (r *Registry) ResetForTests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = make(map[string]*Request)
	r.waiters = make(map[string][]chan Outcome)
}

func (r *Registry) terminate(id, status string) bool {
	r.mu.Lock()
	req, ok := r.requests[id]
	if !ok || !isLive(req.Status) {
		r.mu.Unlock()
		return false
	}
	req.Status = status
	waiters := r.takeWaitersLocked(id)
	r.mu.Unlock()

	notify(waiters, Outcome{Status: status})
	return true
}

func (r *Registry) takeWaitersLocked(id string) []chan Outcome {
	ws := r.waiters[id]
	delete(r.waiters, id)
	return ws
}

func notify(waiters []chan Outcome, out Outcome) {
	for _, ch := range waiters {
		ch <- out
	}
}

func isLive(status string) bool {
	return status == StatusPending || status == StatusNotified
}
