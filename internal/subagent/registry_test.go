package subagent

import (
	"strings"
	"testing"
)

func register(t *testing.T, r *Registry, runID, childKey, parentKey string) *RunRecord {
	t.Helper()
	rec, err := r.RegisterRun(RunRecord{
		RunID:            runID,
		ChildKey:         childKey,
		ParentSessionKey: parentKey,
		AgentID:          "main",
	})
	if err != nil {
		t.Fatalf("RegisterRun(%s): %v", childKey, err)
	}
	return rec
}

func TestRegisterRunDepthChain(t *testing.T) {
	r := NewRegistry()
	root := register(t, r, "run-1",
		"agent:main:subagent:a", "agent:main:main")
	if root.Depth != 1 {
		t.Errorf("first-level child depth = %d, want 1", root.Depth)
	}

	child := register(t, r, "run-2",
		"agent:main:subagent:a:sub:b", "agent:main:subagent:a")
	if child.Depth != 2 {
		t.Errorf("nested child depth = %d, want 2", child.Depth)
	}

	// the registry is the depth authority for registered keys
	if d, ok := r.DepthByChildKey("agent:main:subagent:a:sub:b"); !ok || d != 2 {
		t.Errorf("DepthByChildKey = %d,%v, want 2,true", d, ok)
	}
}

func TestRegisterRunDuplicateChildKey(t *testing.T) {
	r := NewRegistry()
	register(t, r, "run-1", "agent:main:subagent:a", "agent:main:main")
	_, err := r.RegisterRun(RunRecord{
		RunID:            "run-2",
		ChildKey:         "agent:main:subagent:a",
		ParentSessionKey: "agent:main:main",
	})
	if err == nil {
		t.Fatal("expected duplicate child key to be rejected")
	}
}

func TestIsAncestor(t *testing.T) {
	r := NewRegistry()
	register(t, r, "run-1", "agent:main:subagent:a", "agent:main:main")
	register(t, r, "run-2", "agent:main:subagent:a:sub:b", "agent:main:subagent:a")
	register(t, r, "run-3", "agent:other:subagent:c", "agent:other:main")

	if !r.IsAncestor("agent:main:main", "agent:main:subagent:a:sub:b") {
		t.Error("grandparent should be an ancestor")
	}
	if !r.IsAncestor("agent:main:subagent:a", "agent:main:subagent:a:sub:b") {
		t.Error("direct parent should be an ancestor")
	}
	if r.IsAncestor("agent:main:subagent:a:sub:b", "agent:main:subagent:a") {
		t.Error("child is not an ancestor of its parent")
	}
	if r.IsAncestor("agent:main:main", "agent:other:subagent:c") {
		t.Error("unrelated trees must not be ancestors")
	}
	if r.IsAncestor("agent:main:subagent:a", "agent:main:subagent:a") {
		t.Error("a key is not its own ancestor")
	}
}

func TestSubtreeLeafFirst(t *testing.T) {
	r := NewRegistry()
	register(t, r, "run-root", "agent:main:subagent:root", "agent:main:main")
	register(t, r, "run-a", "agent:main:subagent:root:sub:childa", "agent:main:subagent:root")
	register(t, r, "run-b", "agent:main:subagent:root:sub:childa:sub:childb", "agent:main:subagent:root:sub:childa")
	register(t, r, "run-x", "agent:main:subagent:other", "agent:main:main")

	subtree := r.GetSubtreeLeafFirst("agent:main:subagent:root")
	if len(subtree) != 2 {
		t.Fatalf("expected 2 descendant records, got %d", len(subtree))
	}
	got := []string{subtree[0].RunID, subtree[1].RunID}
	want := []string{"run-b", "run-a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leaf-first order = %v, want %v", got, want)
		}
	}
	for _, rec := range subtree {
		if rec.RunID == "run-root" {
			t.Fatal("root record must not appear among its own descendants")
		}
	}
}

func TestSlotReservations(t *testing.T) {
	r := NewRegistry()

	if err := r.ReserveChildSlot("agent:main:main", 2, 10); err != nil {
		t.Fatalf("first reservation: %v", err)
	}
	if err := r.ReserveChildSlot("agent:main:main", 2, 10); err != nil {
		t.Fatalf("second reservation: %v", err)
	}
	if err := r.ReserveChildSlot("agent:main:main", 2, 10); err == nil {
		t.Fatal("third reservation should hit the per-agent limit")
	}

	// rollback frees the slot again
	r.ReleaseChildSlot("agent:main:main")
	if err := r.ReserveChildSlot("agent:main:main", 2, 10); err != nil {
		t.Fatalf("reservation after release: %v", err)
	}
}

func TestSlotGlobalLimit(t *testing.T) {
	r := NewRegistry()
	register(t, r, "run-1", "agent:main:subagent:a", "agent:main:main")
	register(t, r, "run-2", "agent:other:subagent:b", "agent:other:main")

	err := r.ReserveChildSlot("agent:third:main", 5, 2)
	if err == nil {
		t.Fatal("expected global limit to reject reservation")
	}
	if !strings.Contains(err.Error(), "global") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRemoveRunFreesSlots(t *testing.T) {
	r := NewRegistry()
	register(t, r, "run-1", "agent:main:subagent:a", "agent:main:main")
	if n := r.CountByParent("agent:main:main"); n != 1 {
		t.Fatalf("CountByParent = %d, want 1", n)
	}
	r.RemoveRun("agent:main:subagent:a")
	if n := r.CountByParent("agent:main:main"); n != 0 {
		t.Fatalf("CountByParent after remove = %d, want 0", n)
	}
	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", r.ActiveCount())
	}
}
