package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestInProcessCall(t *testing.T) {
	p := NewInProcess()
	p.Handle(MethodAgent, func(_ context.Context, params json.RawMessage) (any, error) {
		var in AgentParams
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, err
		}
		return AgentResult{RunID: "run-1", Reply: "echo: " + in.Message}, nil
	})

	var out AgentResult
	err := p.Call(context.Background(), MethodAgent, AgentParams{
		SessionKey: "agent:main:main",
		Message:    "hi",
	}, &out)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.RunID != "run-1" || out.Reply != "echo: hi" {
		t.Errorf("result = %+v", out)
	}
}

func TestInProcessUnknownMethod(t *testing.T) {
	p := NewInProcess()
	if err := p.Call(context.Background(), "nope", nil, nil); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestInProcessHandlerError(t *testing.T) {
	p := NewInProcess()
	p.Handle(MethodAgentAbort, func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	err := p.Call(context.Background(), MethodAgentAbort, AbortParams{RunID: "r"}, nil)
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req requestFrame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			var params WaitParams
			_ = json.Unmarshal(req.Params, &params)
			payload, _ := json.Marshal(WaitResult{
				RunID:  params.RunID,
				Status: "completed",
				Reply:  "done",
			})
			_ = conn.WriteJSON(responseFrame{Type: "res", ID: req.ID, OK: true, Payload: payload})
		}
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "secret")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	var out WaitResult
	if err := c.Call(context.Background(), MethodAgentWait, WaitParams{RunID: "run-9"}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.RunID != "run-9" || out.Status != "completed" || out.Reply != "done" {
		t.Errorf("result = %+v", out)
	}
}

func TestClientCallWithoutConnect(t *testing.T) {
	c := NewClient("ws://nowhere", "")
	if err := c.Call(context.Background(), MethodAgent, nil, nil); err == nil {
		t.Error("expected error when not connected")
	}
}
