// Package agentslist implements the agents_list tool.
package agentslist

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/sessionkey"
	"github.com/gateward/gateward/internal/types"
)

type agentEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Model       string   `json:"model,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CostTier    string   `json:"costTier,omitempty"`
	Configured  bool     `json:"configured"`
	Requester   bool     `json:"requester,omitempty"`
}

// Tool lists the agents available as spawn targets. The requester's own
// agent is listed first even when it has no config entry.
type Tool struct {
	cfg          *config.Config
	requesterKey string
}

func New(cfg *config.Config, requesterKey string) *Tool {
	return &Tool{cfg: cfg, requesterKey: requesterKey}
}

func (t *Tool) Name() string  { return "agents_list" }
func (t *Tool) Label() string { return "List Agents" }

func (t *Tool) Description() string {
	return "List all agents that can be targeted with sessions_spawn, with their capabilities."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *Tool) Execute(_ context.Context, _ json.RawMessage) (*types.ToolResult, error) {
	requesterID := ""
	if parsed, ok := sessionkey.Parse(t.requesterKey); ok {
		requesterID = sessionkey.NormalizeAgentID(parsed.AgentID)
	}

	var requester *agentEntry
	var rest []agentEntry
	seen := false
	for _, a := range t.cfg.Agents.List {
		entry := agentEntry{
			ID:          sessionkey.NormalizeAgentID(a.ID),
			Name:        a.Name,
			Description: a.Description,
			Model:       a.Model,
			Configured:  true,
		}
		if a.Capabilities != nil {
			entry.Tags = a.Capabilities.Tags
			entry.CostTier = a.Capabilities.CostTier
		}
		if entry.ID == requesterID {
			entry.Requester = true
			requester = &entry
			seen = true
			continue
		}
		rest = append(rest, entry)
	}

	// requester without a config entry still leads the list
	if !seen && requesterID != "" {
		requester = &agentEntry{ID: requesterID, Configured: false, Requester: true}
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })

	agents := make([]agentEntry, 0, len(rest)+1)
	if requester != nil {
		agents = append(agents, *requester)
	}
	agents = append(agents, rest...)

	return types.JSONResult(map[string]interface{}{
		"agents":   agents,
		"allowAny": true,
	}), nil
}
