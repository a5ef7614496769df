// Package discovery implements list_tools and list_tool, the cheap way
// for an agent to learn its own tool surface without carrying every full
// schema in context. Both names share one handler: called without a
// tool argument it lists summaries, called with one it returns the full
// descriptor.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gateward/gateward/internal/tools"
	"github.com/gateward/gateward/internal/types"
)

const summaryWordLimit = 5

// Tool is the shared discovery handler. Register it once per name so
// both list_tools and list_tool resolve to the same behavior.
type Tool struct {
	reg  *tools.Registry
	name string
}

func New(reg *tools.Registry, name string) *Tool {
	return &Tool{reg: reg, name: name}
}

func (t *Tool) Name() string  { return t.name }
func (t *Tool) Label() string { return "Tool Discovery" }

func (t *Tool) Description() string {
	return "List available tools with one-line summaries, or pass a tool name " +
		"for its full description and input schema."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tool": map[string]interface{}{
				"type":        "string",
				"description": "Optional tool name; when set, the full descriptor is returned",
			},
		},
	}
}

func (t *Tool) Execute(_ context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in struct {
		Tool string `json:"tool"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}

	if strings.TrimSpace(in.Tool) == "" {
		return t.list(), nil
	}
	return t.describe(in.Tool), nil
}

func (t *Tool) list() *types.ToolResult {
	type entry struct {
		Name    string `json:"name"`
		Summary string `json:"summary"`
	}
	var out []entry
	for _, tool := range t.reg.List() {
		out = append(out, entry{
			Name:    tool.Name(),
			Summary: summarize(tool.Description()),
		})
	}
	return types.JSONResult(map[string]interface{}{"tools": out})
}

func (t *Tool) describe(name string) *types.ToolResult {
	tool, ok := t.reg.Get(name)
	if !ok {
		return types.JSONResult(map[string]interface{}{
			"status":    "not_found",
			"tool":      name,
			"available": t.reg.Names(),
		})
	}
	return types.JSONResult(map[string]interface{}{
		"name":        tool.Name(),
		"label":       tool.Label(),
		"description": tool.Description(),
		"inputSchema": tool.Schema(),
	})
}

// summarize clips a description to its first clause, at most five words.
func summarize(desc string) string {
	if idx := strings.IndexAny(desc, ".;"); idx > 0 {
		desc = desc[:idx]
	}
	words := strings.Fields(desc)
	if len(words) > summaryWordLimit {
		words = words[:summaryWordLimit]
	}
	return strings.Join(words, " ")
}
