package orchestrate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gateward/gateward/internal/orchestrator"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/types"
)

const (
	childKey  = "agent:main:subagent:x"
	parentKey = "agent:main:main"
)

func payload(t *testing.T, res *types.ToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(res.Content[0].Text), &out); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return out
}

func registries(t *testing.T) (*orchestrator.Registry, *subagent.Registry) {
	t.Helper()
	subs := subagent.NewRegistry()
	if _, err := subs.RegisterRun(subagent.RunRecord{
		RunID: "run-1", ChildKey: childKey, ParentSessionKey: parentKey,
	}); err != nil {
		t.Fatal(err)
	}
	return orchestrator.NewRegistry(), subs
}

func TestRequestAndRespondRoundTrip(t *testing.T) {
	reqs, subs := registries(t)

	notified := make(chan orchestrator.Request, 1)
	ask := NewRequestTool(reqs, subs, "run-1", childKey, time.Time{},
		func(pk string, req orchestrator.Request) error {
			if pk != parentKey {
				t.Errorf("notified %q, want parent", pk)
			}
			notified <- req
			return nil
		})

	done := make(chan map[string]interface{}, 1)
	go func() {
		res, err := ask.Execute(context.Background(),
			json.RawMessage(`{"question":"prod or staging?"}`))
		if err != nil {
			t.Error(err)
			return
		}
		done <- payload(t, res)
	}()

	var req orchestrator.Request
	select {
	case req = <-notified:
	case <-time.After(time.Second):
		t.Fatal("parent never notified")
	}
	if got, _ := reqs.Get(req.ID); got.Status != orchestrator.StatusNotified {
		t.Errorf("status after notify = %q", got.Status)
	}

	respond := NewRespondTool(reqs, parentKey)
	args, _ := json.Marshal(map[string]string{"requestId": req.ID, "response": "staging"})
	res, err := respond.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if out := payload(t, res); out["status"] != "ok" {
		t.Fatalf("respond status = %v", out["status"])
	}

	select {
	case out := <-done:
		if out["status"] != "resolved" || out["response"] != "staging" {
			t.Errorf("child outcome = %v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("child never woke")
	}
}

func TestRespondWrongSessionForbidden(t *testing.T) {
	reqs, _ := registries(t)
	req := reqs.Create(childKey, parentKey, "run-1", "q", time.Minute)

	respond := NewRespondTool(reqs, "agent:other:main")
	args, _ := json.Marshal(map[string]string{"requestId": req.ID, "response": "no"})
	res, _ := respond.Execute(context.Background(), args)
	if out := payload(t, res); out["status"] != "forbidden" {
		t.Errorf("status = %v", out["status"])
	}
}

func TestRespondTerminalCarriesDiagnostic(t *testing.T) {
	reqs, _ := registries(t)
	req := reqs.Create(childKey, parentKey, "run-1", "q", time.Minute)
	reqs.Cancel(req.ID)

	respond := NewRespondTool(reqs, parentKey)
	args, _ := json.Marshal(map[string]string{"requestId": req.ID, "response": "late"})
	res, _ := respond.Execute(context.Background(), args)
	out := payload(t, res)
	if out["status"] != "already_resolved" {
		t.Errorf("status = %v", out["status"])
	}
	if out["requestStatus"] != "cancelled" {
		t.Errorf("requestStatus = %v", out["requestStatus"])
	}
}

func TestRespondUnknownRequest(t *testing.T) {
	reqs, _ := registries(t)
	respond := NewRespondTool(reqs, parentKey)
	res, _ := respond.Execute(context.Background(),
		json.RawMessage(`{"requestId":"nope","response":"hi"}`))
	if out := payload(t, res); out["status"] != "not_found" {
		t.Errorf("status = %v", out["status"])
	}
}

func TestRequestFromNonDelegatedSession(t *testing.T) {
	reqs, _ := registries(t)
	subs := subagent.NewRegistry() // empty: the session has no run record
	ask := NewRequestTool(reqs, subs, "run-1", childKey, time.Time{}, nil)

	res, _ := ask.Execute(context.Background(), json.RawMessage(`{"question":"q"}`))
	if !res.IsError {
		t.Error("a session without an orchestrator must get a tool error")
	}
}

func TestRequestDeadlineTooClose(t *testing.T) {
	reqs, subs := registries(t)
	// run deadline inside the buffer: no time left to wait
	ask := NewRequestTool(reqs, subs, "run-1", childKey,
		time.Now().Add(10*time.Second), nil)

	res, err := ask.Execute(context.Background(), json.RawMessage(`{"question":"q"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out := payload(t, res); out["status"] != "timeout" {
		t.Errorf("status = %v, want timeout", out["status"])
	}
}

func TestRequestTimesOutWithoutAnswer(t *testing.T) {
	reqs, subs := registries(t)
	ask := NewRequestTool(reqs, subs, "run-1", childKey, time.Time{}, nil)

	args, _ := json.Marshal(map[string]interface{}{"question": "q", "timeoutSeconds": 1})
	start := time.Now()
	res, err := ask.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Error("returned before the timeout elapsed")
	}
	if out := payload(t, res); out["status"] != "timeout" {
		t.Errorf("status = %v", out["status"])
	}
}
