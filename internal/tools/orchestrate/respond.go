package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gateward/gateward/internal/orchestrator"
	"github.com/gateward/gateward/internal/types"
)

type respondInput struct {
	RequestID string `json:"requestId"`
	Response  string `json:"response"`
}

// RespondTool answers a child's pending question. Only the session the
// question was addressed to can answer it.
type RespondTool struct {
	reqs         *orchestrator.Registry
	requesterKey string
}

func NewRespondTool(reqs *orchestrator.Registry, requesterKey string) *RespondTool {
	return &RespondTool{reqs: reqs, requesterKey: requesterKey}
}

func (t *RespondTool) Name() string  { return "respond_orchestrator_request" }
func (t *RespondTool) Label() string { return "Answer Subagent" }

func (t *RespondTool) Description() string {
	return "Answer a pending question from one of your subagents."
}

func (t *RespondTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"requestId": map[string]interface{}{
				"type":        "string",
				"description": "Id of the request to answer",
			},
			"response": map[string]interface{}{
				"type":        "string",
				"description": "Your answer",
			},
		},
		"required": []string{"requestId", "response"},
	}
}

func (t *RespondTool) Execute(_ context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in respondInput
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.RequestID == "" || in.Response == "" {
		return types.ErrorResult("requestId and response are required"), nil
	}

	code, snapshot := t.reqs.Resolve(in.RequestID, t.requesterKey, in.Response)
	payload := map[string]interface{}{
		"status":    code,
		"requestId": in.RequestID,
	}
	// terminal requests all answer the same way; the original status is
	// kept for diagnostics
	if code == orchestrator.ResolveAlreadyResolved {
		payload["requestStatus"] = snapshot.Status
	}
	return types.JSONResult(payload), nil
}
