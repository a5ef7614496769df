// Package gateway talks to the agent runtime. Runs are started, awaited,
// and aborted through a small RPC surface that works the same over a
// websocket or in process.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// RPC methods.
const (
	MethodAgent      = "agent"
	MethodAgentAbort = "agent.abort"
	MethodAgentWait  = "agent.wait"
	MethodTyping     = "typing"
)

// Caller invokes a gateway method and decodes the response into result.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// ToolSpec describes one tool offered to a run.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// AgentParams starts or continues a run for a session.
type AgentParams struct {
	SessionKey   string     `json:"sessionKey"`
	AgentID      string     `json:"agentId,omitempty"`
	Message      string     `json:"message"`
	SystemPrompt string     `json:"systemPrompt,omitempty"`
	Thinking     string     `json:"thinking,omitempty"`
	Model        string     `json:"model,omitempty"`
	TimeoutSec   int        `json:"timeoutSeconds,omitempty"`
	Tools        []ToolSpec `json:"tools,omitempty"`
}

// TypingParams toggles a session's channel typing indicator.
type TypingParams struct {
	SessionKey string `json:"sessionKey"`
	Active     bool   `json:"active"`
}

// AgentResult is the immediate response to an agent call.
type AgentResult struct {
	RunID string `json:"runId"`
	Reply string `json:"reply,omitempty"`
}

// AbortParams stops a running session.
type AbortParams struct {
	SessionKey string `json:"sessionKey,omitempty"`
	RunID      string `json:"runId,omitempty"`
}

// AbortResult reports what the abort did.
type AbortResult struct {
	Aborted bool `json:"aborted"`
}

// WaitParams blocks on a run finishing.
type WaitParams struct {
	RunID      string `json:"runId"`
	TimeoutSec int    `json:"timeoutSeconds,omitempty"`
}

// WaitResult carries the run's final reply.
type WaitResult struct {
	RunID  string `json:"runId"`
	Reply  string `json:"reply,omitempty"`
	Status string `json:"status"` // completed | aborted | timeout | error
	Error  string `json:"error,omitempty"`
}

// Handler serves one method for the in-process dispatcher.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// InProcess dispatches calls directly to registered handlers. The embedded
// runtime and tests use it in place of a live websocket.
type InProcess struct {
	handlers map[string]Handler
}

func NewInProcess() *InProcess {
	return &InProcess{handlers: make(map[string]Handler)}
}

// Handle registers the handler for a method, replacing any existing one.
func (p *InProcess) Handle(method string, h Handler) {
	p.handlers[method] = h
}

func (p *InProcess) Call(ctx context.Context, method string, params any, result any) error {
	h, ok := p.handlers[method]
	if !ok {
		return fmt.Errorf("no handler for method %s", method)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	out, err := h(ctx, raw)
	if err != nil {
		return err
	}
	if result == nil || out == nil {
		return nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return json.Unmarshal(encoded, result)
}
