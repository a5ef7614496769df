package reply

import (
	"strings"
	"sync"
)

// Queue modes decide what happens when a message arrives mid-run.
const (
	ModeCollect   = "collect"   // hold and merge for the next run
	ModeInterrupt = "interrupt" // abort the run, start over with the new prompt
	ModeSteer     = "steer"     // abort the run, replace the prompt but keep context
)

// Actions returned to the inbound path.
const (
	ActionQueued    = "queued"
	ActionInterrupt = "interrupt"
	ActionSteer     = "steer"
	ActionDropped   = "dropped"
)

const mergedHeader = "[Queued messages while agent was busy]"

// FollowUp is one message that arrived while a run was active.
type FollowUp struct {
	Prompt      string
	Channel     string
	Destination string
}

// Queue buffers follow-ups per session. In collect mode, exact duplicate
// prompts for the same destination are dropped; distinct destinations are
// kept apart and never merged into one prompt.
type Queue struct {
	mode string
	cap  int

	mu    sync.Mutex
	items []FollowUp
}

func NewQueue(mode string, capLimit int) *Queue {
	if mode == "" {
		mode = ModeCollect
	}
	if capLimit <= 0 {
		capLimit = 50
	}
	return &Queue{mode: mode, cap: capLimit}
}

func (q *Queue) Mode() string { return q.mode }

// Add records a follow-up and returns the action the caller should take.
func (q *Queue) Add(f FollowUp) string {
	switch q.mode {
	case ModeInterrupt:
		return ActionInterrupt
	case ModeSteer:
		return ActionSteer
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cap {
		return ActionDropped
	}
	for _, existing := range q.items {
		if existing.Prompt == f.Prompt && sameDestination(existing, f) {
			return ActionDropped
		}
	}
	q.items = append(q.items, f)
	return ActionQueued
}

// DrainFor removes and merges the follow-ups for one destination. Multiple
// prompts merge under a header; a single prompt passes through untouched.
func (q *Queue) DrainFor(channel, destination string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var matched []string
	rest := q.items[:0]
	for _, f := range q.items {
		if f.Channel == channel && f.Destination == destination {
			matched = append(matched, f.Prompt)
		} else {
			rest = append(rest, f)
		}
	}
	q.items = rest

	switch len(matched) {
	case 0:
		return "", false
	case 1:
		return matched[0], true
	}
	return mergedHeader + "\n\n" + strings.Join(matched, "\n\n"), true
}

// Destinations lists the (channel, destination) pairs with queued items,
// in arrival order.
func (q *Queue) Destinations() []FollowUp {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool)
	var out []FollowUp
	for _, f := range q.items {
		k := f.Channel + "\x00" + f.Destination
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, FollowUp{Channel: f.Channel, Destination: f.Destination})
	}
	return out
}

// Len returns the number of queued follow-ups.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func sameDestination(a, b FollowUp) bool {
	return a.Channel == b.Channel && a.Destination == b.Destination
}
