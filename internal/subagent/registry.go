// Package subagent tracks delegated runs: which child session belongs to
// which parent, how deep the chain goes, and how many slots are in use.
package subagent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gateward/gateward/internal/sessionkey"
)

// RunRecord describes one active delegated run.
type RunRecord struct {
	RunID            string
	ChildKey         string
	ParentSessionKey string
	AgentID          string
	Label            string
	Depth            int
	SpawnedAt        time.Time
	Artifacts        []ArtifactContract
}

// Registry is the authoritative map of child session key to run record.
// It also arbitrates spawn slots: callers reserve a slot before starting
// a run and release it once the run is registered or the start fails.
type Registry struct {
	mu         sync.RWMutex
	byChildKey map[string]*RunRecord
	reserved   map[string]int // parent key -> pending reservations
	globalResv int
}

func NewRegistry() *Registry {
	return &Registry{
		byChildKey: make(map[string]*RunRecord),
		reserved:   make(map[string]int),
	}
}

// DepthByChildKey implements sessionkey.DepthSource. Registered depth wins
// over whatever the key's shape suggests.
func (r *Registry) DepthByChildKey(key string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byChildKey[key]
	if !ok {
		return 0, false
	}
	return rec.Depth, true
}

// RegisterRun records a started run. The child's depth is always the
// parent's registered depth plus one, regardless of key shape.
func (r *Registry) RegisterRun(rec RunRecord) (*RunRecord, error) {
	if rec.ChildKey == "" || rec.RunID == "" {
		return nil, fmt.Errorf("run record needs a child key and run id")
	}

	// resolve the fallback before taking the write lock; Depth reads
	// back through DepthByChildKey
	fallbackDepth := sessionkey.Depth(rec.ParentSessionKey, r)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byChildKey[rec.ChildKey]; ok {
		return nil, fmt.Errorf("child key %s already registered to run %s", rec.ChildKey, existing.RunID)
	}

	parentDepth := fallbackDepth
	if parent, ok := r.byChildKey[rec.ParentSessionKey]; ok {
		parentDepth = parent.Depth
	}
	rec.Depth = parentDepth + 1
	if rec.SpawnedAt.IsZero() {
		rec.SpawnedAt = time.Now()
	}

	stored := rec
	r.byChildKey[rec.ChildKey] = &stored
	return &stored, nil
}

// GetRunByChildKey returns a copy of the record for a child key.
func (r *Registry) GetRunByChildKey(key string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byChildKey[key]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// GetRunByID returns the record with the given run id.
func (r *Registry) GetRunByID(runID string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byChildKey {
		if rec.RunID == runID {
			return *rec, true
		}
	}
	return RunRecord{}, false
}

// RemoveRun drops the record for a child key.
func (r *Registry) RemoveRun(childKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byChildKey, childKey)
}

// ActiveCount returns registered runs plus pending reservations.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChildKey) + r.globalResv
}

// CountByParent returns active children of a parent, reservations included.
func (r *Registry) CountByParent(parentKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countByParentLocked(parentKey)
}

func (r *Registry) countByParentLocked(parentKey string) int {
	n := r.reserved[parentKey]
	for _, rec := range r.byChildKey {
		if rec.ParentSessionKey == parentKey {
			n++
		}
	}
	return n
}

// ReserveChildSlot claims a slot under parentKey against both the per-agent
// and the global concurrency limits. The caller must release the
// reservation once the run is registered, or on spawn failure.
func (r *Registry) ReserveChildSlot(parentKey string, maxChildren, maxConcurrent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.countByParentLocked(parentKey) >= maxChildren {
		return fmt.Errorf("agent already has %d active subagents (limit %d)", r.countByParentLocked(parentKey), maxChildren)
	}
	if len(r.byChildKey)+r.globalResv >= maxConcurrent {
		return fmt.Errorf("global subagent limit reached (%d)", maxConcurrent)
	}

	r.reserved[parentKey]++
	r.globalResv++
	return nil
}

// ReleaseChildSlot returns a reservation taken by ReserveChildSlot.
func (r *Registry) ReleaseChildSlot(parentKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved[parentKey] > 0 {
		r.reserved[parentKey]--
		if r.reserved[parentKey] == 0 {
			delete(r.reserved, parentKey)
		}
	}
	if r.globalResv > 0 {
		r.globalResv--
	}
}

// IsAncestor reports whether ancestorKey appears on the parent chain of
// key, walking parent links one level at a time. A key is not its own
// ancestor.
func (r *Registry) IsAncestor(ancestorKey, key string) bool {
	cur := key
	for i := 0; i < 64; i++ {
		rec, ok := r.GetRunByChildKey(cur)
		var parent string
		if ok {
			parent = rec.ParentSessionKey
		} else if p, valid := sessionkey.ParentKey(cur, r); valid {
			parent = p
		}
		if parent == "" || parent == cur {
			return false
		}
		if parent == ancestorKey {
			return true
		}
		cur = parent
	}
	return false
}

// GetSubtreeLeafFirst returns every registered run strictly below rootKey,
// deepest first, so a cascade kill tears down leaves before their parents.
// The root's own record is not included.
func (r *Registry) GetSubtreeLeafFirst(rootKey string) []RunRecord {
	r.mu.RLock()
	keys := make([]string, 0, len(r.byChildKey))
	for k := range r.byChildKey {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	var out []RunRecord
	for _, k := range keys {
		rec, ok := r.GetRunByChildKey(k)
		if !ok {
			continue
		}
		if k != rootKey && r.IsAncestor(rootKey, k) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth > out[j].Depth
		}
		return out[i].ChildKey < out[j].ChildKey
	})
	return out
}

// ResetForTests clears all state.
func (r *Registry) ResetForTests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChildKey = make(map[string]*RunRecord)
	r.reserved = make(map[string]int)
	r.globalResv = 0
}
