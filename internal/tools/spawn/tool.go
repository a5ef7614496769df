// Package spawn implements the sessions_spawn tool.
package spawn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/types"
)

type input struct {
	AgentID        string                      `json:"agentId"`
	Task           string                      `json:"task"`
	Label          string                      `json:"label,omitempty"`
	TimeoutSeconds int                         `json:"timeoutSeconds,omitempty"`
	Artifacts      []subagent.ArtifactContract `json:"artifacts,omitempty"`
}

// Tool spawns a delegated run on behalf of the requesting session.
type Tool struct {
	spawner      *subagent.Spawner
	requesterKey string
}

func New(spawner *subagent.Spawner, requesterKey string) *Tool {
	return &Tool{spawner: spawner, requesterKey: requesterKey}
}

func (t *Tool) Name() string  { return "sessions_spawn" }
func (t *Tool) Label() string { return "Spawn Subagent" }

func (t *Tool) Description() string {
	return "Spawn a subagent run on any configured agent to work on a task. " +
		"Returns the child session key and run id; the child reports back via report_completion."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"agentId": map[string]interface{}{
				"type":        "string",
				"description": "Target agent id. Any configured agent may be targeted.",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "What the subagent should do",
			},
			"label": map[string]interface{}{
				"type":        "string",
				"description": "Short label shown in listings",
			},
			"timeoutSeconds": map[string]interface{}{
				"type":        "integer",
				"description": "Run timeout override",
			},
			"artifacts": map[string]interface{}{
				"type":        "array",
				"description": "Files the run must produce, verified on completion",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path":     map[string]interface{}{"type": "string"},
						"minBytes": map[string]interface{}{"type": "integer"},
						"json": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"minItems":     map[string]interface{}{"type": "integer"},
								"requiredKeys": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
							},
						},
					},
					"required": []string{"path"},
				},
			},
		},
		"required": []string{"agentId", "task"},
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	res, err := t.spawner.Spawn(ctx, subagent.SpawnRequest{
		RequesterKey:   t.requesterKey,
		TargetAgentID:  in.AgentID,
		Task:           in.Task,
		Label:          in.Label,
		TimeoutSeconds: in.TimeoutSeconds,
		Artifacts:      in.Artifacts,
	})
	if err != nil {
		return types.JSONResult(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}), nil
	}
	return types.JSONResult(map[string]interface{}{
		"status":          "accepted",
		"childSessionKey": res.ChildSessionKey,
		"runId":           res.RunID,
		"depth":           res.Depth,
	}), nil
}
