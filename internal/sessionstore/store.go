// Package sessionstore persists per-session routing and usage metadata in a
// single JSON object file keyed by session key.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/atomicfile"
)

// DebounceEnvVar overrides the inbound-meta write debounce in milliseconds.
// Zero disables coalescing entirely.
const DebounceEnvVar = "GATEWARD_SESSION_META_DEBOUNCE_MS"

const defaultMetaDebounce = 25 * time.Millisecond

// ErrSessionNotFound reports a lookup against a key the store has no entry
// for, where absence is not a valid answer (forking, explicit reads).
var ErrSessionNotFound = errors.New("session not found")

// Entry is one session record. updatedAt is epoch milliseconds.
type Entry struct {
	SessionID   string `json:"sessionId,omitempty"`
	SessionFile string `json:"sessionFile,omitempty"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`

	LastChannel   string `json:"lastChannel,omitempty"`
	LastTo        string `json:"lastTo,omitempty"`
	LastAccountID string `json:"lastAccountId,omitempty"`

	DisplayName string `json:"displayName,omitempty"`
	ChatType    string `json:"chatType,omitempty"`
	SendPolicy  string `json:"sendPolicy,omitempty"`
	Model       string `json:"model,omitempty"` // per-session override via /model

	TotalTokens                int    `json:"totalTokens,omitempty"`
	InputTokens                int    `json:"inputTokens,omitempty"`
	OutputTokens               int    `json:"outputTokens,omitempty"`
	CompactionCount            int    `json:"compactionCount,omitempty"`
	MemoryFlushAt              int64  `json:"memoryFlushAt,omitempty"`
	MemoryFlushCompactionCount int    `json:"memoryFlushCompactionCount,omitempty"`
	ParentSession              string `json:"parentSession,omitempty"`
}

// InboundMeta is the context captured from an inbound message.
type InboundMeta struct {
	Channel     string
	To          string
	AccountID   string
	DisplayName string
	ChatType    string
}

// Store reads and writes the session file. All writes go through an atomic
// temp+rename so readers never observe a torn file.
type Store struct {
	path     string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*pendingMeta
}

type pendingMeta struct {
	meta    InboundMeta
	timer   *time.Timer
	waiters []chan error
}

// New opens a store at path. The inbound-meta debounce comes from
// GATEWARD_SESSION_META_DEBOUNCE_MS when set.
func New(path string) *Store {
	s := &Store{
		path:     path,
		debounce: defaultMetaDebounce,
		pending:  make(map[string]*pendingMeta),
	}
	if raw := os.Getenv(DebounceEnvVar); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			s.debounce = time.Duration(ms) * time.Millisecond
		}
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads all entries. A missing file yields an empty map.
func (s *Store) Load() (map[string]*Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read session store: %w", err)
	}

	entries := map[string]*Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session store: %w", err)
	}
	return entries, nil
}

// Save writes all entries atomically.
func (s *Store) Save(entries map[string]*Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	return atomicfile.WriteJSON(s.path, entries, 0o644)
}

// Get returns the entry for a key, or nil when absent.
func (s *Store) Get(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	return entries[key], nil
}

// Update applies fn to the entry for key (creating it when absent) and
// saves. fn returning false skips the write.
func (s *Store) Update(key string, fn func(*Entry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(key, fn)
}

func (s *Store) updateLocked(key string, fn func(*Entry) bool) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}
	entry := entries[key]
	if entry == nil {
		entry = &Entry{}
		entries[key] = entry
	}
	if !fn(entry) {
		return nil
	}
	entry.UpdatedAt = time.Now().UnixMilli()
	return s.Save(entries)
}

// Delete removes an entry and its transcript file, if any.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.Load()
	if err != nil {
		return err
	}
	entry, ok := entries[key]
	if !ok {
		return nil
	}
	if entry.SessionFile != "" {
		if err := os.Remove(entry.SessionFile); err != nil && !os.IsNotExist(err) {
			L_warn("failed to remove transcript %s: %v", entry.SessionFile, err)
		}
	}
	delete(entries, key)
	return s.Save(entries)
}

// UpdateLastRoute records where the last reply for a session went. Route
// updates are never debounced: a restart must not lose the reply address.
func (s *Store) UpdateLastRoute(key, channel, to, accountID string) error {
	return s.Update(key, func(e *Entry) bool {
		e.LastChannel = channel
		e.LastTo = to
		e.LastAccountID = accountID
		return true
	})
}

// RecordSessionMetaFromInbound captures inbound context for a session.
// Calls within the debounce window coalesce into a single write carrying
// the most recent metadata; every pending caller receives the write's
// error, if any. A zero debounce writes immediately.
func (s *Store) RecordSessionMetaFromInbound(key string, meta InboundMeta) error {
	if s.debounce == 0 {
		return s.applyMeta(key, meta)
	}

	done := make(chan error, 1)

	s.mu.Lock()
	p, ok := s.pending[key]
	if ok {
		p.meta = meta
		p.waiters = append(p.waiters, done)
		s.mu.Unlock()
		return <-done
	}

	p = &pendingMeta{meta: meta, waiters: []chan error{done}}
	s.pending[key] = p
	p.timer = time.AfterFunc(s.debounce, func() { s.flushMeta(key) })
	s.mu.Unlock()

	return <-done
}

func (s *Store) flushMeta(key string) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	meta := p.meta
	waiters := p.waiters
	s.mu.Unlock()

	err := s.applyMeta(key, meta)
	for _, w := range waiters {
		w <- err
	}
}

func (s *Store) applyMeta(key string, meta InboundMeta) error {
	return s.Update(key, func(e *Entry) bool {
		e.LastChannel = meta.Channel
		e.LastTo = meta.To
		e.LastAccountID = meta.AccountID
		if meta.DisplayName != "" {
			e.DisplayName = meta.DisplayName
		}
		if meta.ChatType != "" {
			e.ChatType = meta.ChatType
		}
		return true
	})
}

// ForkThread creates childKey as a fork of parentKey: the parent transcript
// is copied under a header naming the parent, and the child gets a fresh
// session id so provider-side state never aliases the parent's.
func (s *Store) ForkThread(parentKey, childKey string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	parent := entries[parentKey]
	if parent == nil {
		return nil, fmt.Errorf("parent session %s: %w", parentKey, ErrSessionNotFound)
	}

	child := &Entry{
		SessionID:     uuid.NewString(),
		UpdatedAt:     time.Now().UnixMilli(),
		LastChannel:   parent.LastChannel,
		LastTo:        parent.LastTo,
		LastAccountID: parent.LastAccountID,
		ChatType:      parent.ChatType,
		ParentSession: parentKey,
	}

	if parent.SessionFile != "" {
		transcript, err := os.ReadFile(parent.SessionFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read parent transcript: %w", err)
		}
		childFile := filepath.Join(filepath.Dir(parent.SessionFile), child.SessionID+".jsonl")
		// the header names the parent transcript file, so the fork can be
		// traced on disk without consulting the session store
		header, _ := json.Marshal(map[string]string{
			"type":          "fork",
			"parentSession": parent.SessionFile,
		})
		body := append(append(header, '\n'), transcript...)
		if err := atomicfile.Write(childFile, body, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write forked transcript: %w", err)
		}
		child.SessionFile = childFile
	}

	entries[childKey] = child
	if err := s.Save(entries); err != nil {
		return nil, err
	}
	L_debug("forked session %s -> %s", parentKey, childKey)
	return child, nil
}
