// Package authprofile rotates between provider credentials, backing off
// profiles that keep failing.
package authprofile

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/atomicfile"
)

// Credential types.
const (
	TypeAPIKey = "api_key"
	TypeOAuth  = "oauth"
)

// Profile is one credential for a provider, stored under the
// provider-qualified key "provider:label". The credential fields depend
// on Type: api_key carries Key, oauth carries Access/Refresh/Expires.
type Profile struct {
	Provider string `json:"provider"`
	Label    string `json:"label"`
	Type     string `json:"type"`

	Key string `json:"key,omitempty"`

	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
	Expires int64  `json:"expires,omitempty"` // epoch ms

	FailureCount  int   `json:"failureCount,omitempty"`
	CooldownUntil int64 `json:"cooldownUntil,omitempty"` // epoch ms
	LastUsedAt    int64 `json:"lastUsedAt,omitempty"`
	Disabled      bool  `json:"disabled,omitempty"`
}

// StoreKey returns the provider-qualified key the profile is filed under.
func (p Profile) StoreKey() string {
	return p.Provider + ":" + p.Label
}

// Credential returns the secret to present for this profile.
func (p Profile) Credential() string {
	if p.Type == TypeOAuth {
		return p.Access
	}
	return p.Key
}

// CalculateCooldownMs returns the backoff for the nth consecutive failure:
// 1m, 5m, 25m, then capped at 1h.
func CalculateCooldownMs(failureCount int) int64 {
	if failureCount < 1 {
		return 0
	}
	const maxMs = 3_600_000
	ms := int64(60_000)
	for i := 1; i < failureCount; i++ {
		ms *= 5
		if ms >= maxMs {
			return maxMs
		}
	}
	return ms
}

// Store persists profiles to a JSON file keyed by provider:label.
type Store struct {
	path string

	mu       sync.Mutex
	profiles map[string]*Profile
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path, profiles: make(map[string]*Profile)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read auth profiles: %w", err)
	}
	if err := json.Unmarshal(data, &s.profiles); err != nil {
		return nil, fmt.Errorf("failed to parse auth profiles: %w", err)
	}
	return s, nil
}

// Add registers a profile under its provider:label key, replacing any
// existing entry at that key.
func (s *Store) Add(p Profile) error {
	switch p.Type {
	case TypeAPIKey, TypeOAuth:
	default:
		return fmt.Errorf("unknown auth profile type %q", p.Type)
	}
	if p.Provider == "" || p.Label == "" {
		return fmt.Errorf("auth profile needs both provider and label")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := p
	s.profiles[p.StoreKey()] = &clone
	return s.saveLocked()
}

// Next returns the best available profile for a provider: not disabled,
// not cooling down, least recently used first.
func (s *Store) Next(provider string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	var best *Profile
	for _, p := range s.profiles {
		if p.Provider != provider || p.Disabled || p.CooldownUntil > now {
			continue
		}
		if best == nil || p.LastUsedAt < best.LastUsedAt {
			best = p
		}
	}
	if best == nil {
		return Profile{}, false
	}
	best.LastUsedAt = now
	_ = s.saveLocked()
	return *best, true
}

// MarkFailure bumps the failure count and applies the cooldown schedule.
// key is the provider-qualified "provider:label".
func (s *Store) MarkFailure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[key]
	if !ok {
		return
	}
	p.FailureCount++
	cooldown := CalculateCooldownMs(p.FailureCount)
	p.CooldownUntil = time.Now().UnixMilli() + cooldown
	L_warn("auth profile %s failed %d times, cooling down %dms", key, p.FailureCount, cooldown)
	_ = s.saveLocked()
}

// MarkSuccess clears failure state for a profile.
func (s *Store) MarkSuccess(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[key]
	if !ok {
		return
	}
	p.FailureCount = 0
	p.CooldownUntil = 0
	_ = s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	return atomicfile.WriteJSON(s.path, s.profiles, 0o600)
}
