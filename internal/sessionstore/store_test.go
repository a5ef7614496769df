package sessionstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, debounce time.Duration) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "sessions.json"))
	s.debounce = debounce
	return s
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t, 0)
	entries, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty store, got %d entries", len(entries))
	}
}

func TestUpdateLastRouteImmediate(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)
	if err := s.UpdateLastRoute("agent:main:main", "telegram", "12345", "acct"); err != nil {
		t.Fatalf("UpdateLastRoute: %v", err)
	}
	// route updates bypass the debounce entirely
	entry, err := s.Get("agent:main:main")
	if err != nil || entry == nil {
		t.Fatalf("Get: %v entry=%v", err, entry)
	}
	if entry.LastChannel != "telegram" || entry.LastTo != "12345" {
		t.Errorf("route not persisted: %+v", entry)
	}
	if entry.UpdatedAt == 0 {
		t.Error("expected updatedAt to be set")
	}
}

func TestInboundMetaCoalesces(t *testing.T) {
	s := newTestStore(t, 30*time.Millisecond)
	key := "agent:main:whatsapp:g1"

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		name := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_ = s.RecordSessionMetaFromInbound(key, InboundMeta{
				Channel:     "whatsapp",
				To:          "g1",
				DisplayName: name,
			})
		}()
	}
	wg.Wait()

	entry, err := s.Get(key)
	if err != nil || entry == nil {
		t.Fatalf("Get: %v entry=%v", err, entry)
	}
	if entry.LastChannel != "whatsapp" {
		t.Errorf("expected coalesced write, got %+v", entry)
	}
	// exactly one of the display names survives, whichever arrived last
	if len(entry.DisplayName) != 1 {
		t.Errorf("expected single-char display name, got %q", entry.DisplayName)
	}
}

func TestInboundMetaZeroDebounceWritesEachCall(t *testing.T) {
	s := newTestStore(t, 0)
	key := "agent:main:main"
	for i := 0; i < 3; i++ {
		if err := s.RecordSessionMetaFromInbound(key, InboundMeta{Channel: "gateway"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	entry, _ := s.Get(key)
	if entry == nil || entry.LastChannel != "gateway" {
		t.Fatalf("expected entry persisted, got %+v", entry)
	}
}

func TestInboundMetaErrorFanOut(t *testing.T) {
	s := newTestStore(t, 20*time.Millisecond)
	// point the store at a path whose parent cannot be created
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.path = filepath.Join(blocker, "sub", "sessions.json")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordSessionMetaFromInbound("agent:main:main", InboundMeta{Channel: "x"})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil {
			t.Error("every coalesced caller should receive the write error")
		}
	}
}

func TestForkThreadCopiesTranscript(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "sessions.json"))
	s.debounce = 0

	transcript := filepath.Join(dir, "parent.jsonl")
	if err := os.WriteFile(transcript, []byte(`{"role":"user"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := s.Update("agent:main:main", func(e *Entry) bool {
		e.SessionID = "parent-id"
		e.SessionFile = transcript
		e.LastChannel = "discord"
		return true
	})
	if err != nil {
		t.Fatal(err)
	}

	child, err := s.ForkThread("agent:main:main", "agent:main:main:thread:42")
	if err != nil {
		t.Fatalf("ForkThread: %v", err)
	}
	if child.SessionID == "" || child.SessionID == "parent-id" {
		t.Errorf("child must get a fresh session id, got %q", child.SessionID)
	}
	if child.ParentSession != "agent:main:main" {
		t.Errorf("child must record its parent, got %q", child.ParentSession)
	}
	if child.LastChannel != "discord" {
		t.Errorf("child should inherit routing, got %q", child.LastChannel)
	}

	data, err := os.ReadFile(child.SessionFile)
	if err != nil {
		t.Fatalf("read child transcript: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + copied line, got %d lines", len(lines))
	}
	var header map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("fork header is not JSON: %q", lines[0])
	}
	// the header points at the parent transcript file itself
	if header["type"] != "fork" || header["parentSession"] != transcript {
		t.Errorf("fork header = %v, want parentSession %q", header, transcript)
	}
	if lines[1] != `{"role":"user"}` {
		t.Errorf("parent transcript not copied: %q", lines[1])
	}
}

func TestForkThreadMissingParent(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.ForkThread("agent:main:main", "agent:main:main:thread:1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteRemovesTranscript(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "sessions.json"))
	transcript := filepath.Join(dir, "t.jsonl")
	if err := os.WriteFile(transcript, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = s.Update("agent:main:main", func(e *Entry) bool {
		e.SessionFile = transcript
		return true
	})

	if err := s.Delete("agent:main:main"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(transcript); !os.IsNotExist(err) {
		t.Error("transcript should be removed")
	}
	entry, _ := s.Get("agent:main:main")
	if entry != nil {
		t.Error("entry should be gone")
	}
}
