// Package orchestrate implements the two ends of the orchestrator
// question channel: request_orchestrator for the asking child and
// respond_orchestrator_request for the answering parent.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/orchestrator"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/types"
)

// deadlineBuffer keeps the question from outliving the asking run: the
// wait always ends at least this long before the run's own timeout.
const deadlineBuffer = 30 * time.Second

// Notifier tells the parent session it has a question waiting.
type Notifier func(parentKey string, req orchestrator.Request) error

type requestInput struct {
	Question       string `json:"question"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// RequestTool lets a delegated run block on a question to its
// orchestrator.
type RequestTool struct {
	reqs        *orchestrator.Registry
	subs        *subagent.Registry
	runID       string
	sessionKey  string
	runDeadline time.Time // zero when the run has no deadline
	notify      Notifier
}

func NewRequestTool(reqs *orchestrator.Registry, subs *subagent.Registry, runID, sessionKey string, runDeadline time.Time, notify Notifier) *RequestTool {
	return &RequestTool{
		reqs:        reqs,
		subs:        subs,
		runID:       runID,
		sessionKey:  sessionKey,
		runDeadline: runDeadline,
		notify:      notify,
	}
}

func (t *RequestTool) Name() string  { return "request_orchestrator" }
func (t *RequestTool) Label() string { return "Ask Orchestrator" }

func (t *RequestTool) Description() string {
	return "Ask your orchestrator a question and wait for the answer. " +
		"Use only when you are blocked on a decision you cannot make yourself."
}

func (t *RequestTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question": map[string]interface{}{
				"type":        "string",
				"description": "The decision you need",
			},
			"timeoutSeconds": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for an answer",
			},
		},
		"required": []string{"question"},
	}
}

func (t *RequestTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in requestInput
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Question == "" {
		return types.ErrorResult("question is required"), nil
	}

	rec, ok := t.subs.GetRunByChildKey(t.sessionKey)
	if !ok {
		return types.ErrorResult("this session is not a delegated run; there is no orchestrator to ask"), nil
	}

	timeout := orchestrator.DefaultRequestTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	// never wait past the run's own deadline
	if !t.runDeadline.IsZero() {
		remaining := time.Until(t.runDeadline) - deadlineBuffer
		if remaining <= 0 {
			return types.JSONResult(map[string]interface{}{
				"status": "timeout",
				"error":  "run deadline too close to wait for an answer",
			}), nil
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	req := t.reqs.Create(t.sessionKey, rec.ParentSessionKey, t.runID, in.Question, timeout)

	if t.notify != nil {
		if err := t.notify(rec.ParentSessionKey, *req); err != nil {
			L_warn("failed to notify orchestrator %s: %v", rec.ParentSessionKey, err)
		} else {
			t.reqs.MarkNotified(req.ID)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	outcome, ok := t.reqs.Wait(waitCtx, req.ID)
	if !ok {
		return types.ErrorResult("request disappeared while waiting"), nil
	}

	payload := map[string]interface{}{
		"status":    outcome.Status,
		"requestId": req.ID,
	}
	if outcome.Status == orchestrator.StatusResolved {
		payload["response"] = outcome.Response
	}
	return types.JSONResult(payload), nil
}
