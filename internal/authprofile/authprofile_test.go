package authprofile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCalculateCooldownMs(t *testing.T) {
	cases := []struct {
		failures int
		want     int64
	}{
		{0, 0},
		{1, 60_000},
		{2, 300_000},
		{3, 1_500_000},
		{4, 3_600_000},
		{5, 3_600_000},
		{10, 3_600_000},
	}
	for _, tc := range cases {
		if got := CalculateCooldownMs(tc.failures); got != tc.want {
			t.Errorf("CalculateCooldownMs(%d) = %d, want %d", tc.failures, got, tc.want)
		}
	}
}

func TestProfileShapes(t *testing.T) {
	s, _ := NewStore("")

	if err := s.Add(Profile{Provider: "openai", Label: "work", Type: TypeAPIKey, Key: "sk-1"}); err != nil {
		t.Fatalf("api_key profile: %v", err)
	}
	if err := s.Add(Profile{
		Provider: "anthropic", Label: "main", Type: TypeOAuth,
		Access: "at-1", Refresh: "rt-1", Expires: time.Now().Add(time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatalf("oauth profile: %v", err)
	}
	if err := s.Add(Profile{Provider: "openai", Label: "bad", Type: "password"}); err == nil {
		t.Error("unknown credential type should be rejected")
	}
	if err := s.Add(Profile{Provider: "openai", Type: TypeAPIKey, Key: "sk-2"}); err == nil {
		t.Error("a profile without a label should be rejected")
	}

	apiKey, _ := s.Next("openai")
	if apiKey.StoreKey() != "openai:work" {
		t.Errorf("store key = %q, want provider-qualified", apiKey.StoreKey())
	}
	if apiKey.Credential() != "sk-1" {
		t.Errorf("api_key credential = %q", apiKey.Credential())
	}

	oauth, _ := s.Next("anthropic")
	if oauth.Credential() != "at-1" {
		t.Errorf("oauth credential should be the access token, got %q", oauth.Credential())
	}
	if oauth.Refresh != "rt-1" || oauth.Expires == 0 {
		t.Errorf("oauth shape lost: %+v", oauth)
	}
}

func TestNextSkipsCooldownAndRotates(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "profiles.json"))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(Profile{Provider: "openai", Label: "a", Type: TypeAPIKey, Key: "k-a"})
	_ = s.Add(Profile{Provider: "openai", Label: "b", Type: TypeAPIKey, Key: "k-b"})
	_ = s.Add(Profile{Provider: "anthropic", Label: "c", Type: TypeAPIKey, Key: "k-c"})

	first, ok := s.Next("openai")
	if !ok {
		t.Fatal("expected a profile")
	}
	second, _ := s.Next("openai")
	if first.Label == second.Label {
		t.Errorf("rotation should prefer the least recently used, got %s twice", first.Label)
	}

	s.MarkFailure("openai:a")
	s.MarkFailure("openai:b")
	if _, ok := s.Next("openai"); ok {
		t.Error("all openai profiles cooling down, Next should fail")
	}
	if p, ok := s.Next("anthropic"); !ok || p.Label != "c" {
		t.Errorf("other provider unaffected, got %+v, %v", p, ok)
	}
}

func TestMarkSuccessClearsCooldown(t *testing.T) {
	s, _ := NewStore("")
	_ = s.Add(Profile{Provider: "openai", Label: "a", Type: TypeAPIKey, Key: "k"})
	s.MarkFailure("openai:a")
	s.MarkFailure("openai:a")
	s.MarkSuccess("openai:a")

	p, ok := s.Next("openai")
	if !ok {
		t.Fatal("profile should be available after success")
	}
	if p.FailureCount != 0 || p.CooldownUntil != 0 {
		t.Errorf("failure state not cleared: %+v", p)
	}
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	s, _ := NewStore(path)
	_ = s.Add(Profile{
		Provider: "openai", Label: "a", Type: TypeAPIKey, Key: "sk-1",
		LastUsedAt: time.Now().UnixMilli(),
	})

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	p, ok := reloaded.Next("openai")
	if !ok || p.Label != "a" {
		t.Fatalf("profile lost across reload: %+v, %v", p, ok)
	}
	if p.Key != "sk-1" || p.Type != TypeAPIKey {
		t.Errorf("credential fields lost across reload: %+v", p)
	}
}
