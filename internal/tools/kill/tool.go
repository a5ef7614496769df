// Package kill implements the sessions_kill tool.
package kill

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/sessionkey"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/types"
)

// Aborter stops a running session.
type Aborter interface {
	AbortRun(ctx context.Context, runID, sessionKey string) error
}

type input struct {
	SessionKey string `json:"sessionKey"`
	Cascade    *bool  `json:"cascade,omitempty"` // default true
}

type keyResult struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
	Status     string `json:"status"` // aborted | not_found | error
	Error      string `json:"error,omitempty"`
}

// Tool kills a subagent run, by default with its whole subtree, leaves
// first. Subagent requesters may only kill runs inside their own subtree.
type Tool struct {
	reg          *subagent.Registry
	aborter      Aborter
	requesterKey string
}

func New(reg *subagent.Registry, aborter Aborter, requesterKey string) *Tool {
	return &Tool{reg: reg, aborter: aborter, requesterKey: requesterKey}
}

func (t *Tool) Name() string  { return "sessions_kill" }
func (t *Tool) Label() string { return "Kill Subagent" }

func (t *Tool) Description() string {
	return "Abort a subagent run you spawned. By default the run's own subagents " +
		"are killed too, deepest first."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sessionKey": map[string]interface{}{
				"type":        "string",
				"description": "Child session key to kill",
			},
			"cascade": map[string]interface{}{
				"type":        "boolean",
				"description": "Also kill the target's own subagents (default true)",
			},
		},
		"required": []string{"sessionKey"},
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.SessionKey == "" {
		return types.ErrorResult("sessionKey is required"), nil
	}
	if !sessionkey.IsSubagentKey(in.SessionKey) {
		return types.ErrorResult(fmt.Sprintf("sessionKey %q is not a subagent session key", in.SessionKey)), nil
	}

	// subagent callers may only kill within their own subtree; the main
	// session (and any non-subagent caller) may kill anything
	if sessionkey.IsSubagentKey(t.requesterKey) &&
		t.requesterKey != in.SessionKey &&
		!t.reg.IsAncestor(t.requesterKey, in.SessionKey) {
		return types.JSONResult(map[string]interface{}{
			"status":     "forbidden",
			"sessionKey": in.SessionKey,
			"error":      "session is not a descendant of the requester",
		}), nil
	}

	cascade := in.Cascade == nil || *in.Cascade

	var targets []subagent.RunRecord
	if cascade {
		targets = t.reg.GetSubtreeLeafFirst(in.SessionKey)
	}
	if rec, ok := t.reg.GetRunByChildKey(in.SessionKey); ok {
		targets = append(targets, rec)
	}

	if len(targets) == 0 {
		return types.JSONResult(map[string]interface{}{
			"status":     "not_found",
			"sessionKey": in.SessionKey,
		}), nil
	}

	results := make([]keyResult, 0, len(targets))
	aborted, failed := 0, 0
	for _, rec := range targets {
		res := keyResult{SessionKey: rec.ChildKey, RunID: rec.RunID}
		if _, ok := t.reg.GetRunByChildKey(rec.ChildKey); !ok {
			res.Status = "not_found"
		} else if err := t.aborter.AbortRun(ctx, rec.RunID, rec.ChildKey); err != nil {
			res.Status = "error"
			res.Error = err.Error()
			failed++
			L_warn("failed to abort run %s: %v", rec.RunID, err)
		} else {
			res.Status = "aborted"
			aborted++
			t.reg.RemoveRun(rec.ChildKey)
		}
		results = append(results, res)
	}

	overall := "ok"
	if failed > 0 {
		overall = "partial"
	}
	return types.JSONResult(map[string]interface{}{
		"status":  overall,
		"aborted": aborted,
		"results": results,
	}), nil
}
