// Package tools provides the tool execution framework.
package tools

import (
	"context"
	"encoding/json"

	"github.com/gateward/gateward/internal/types"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Label returns a short human-readable group label
	Label() string

	// Description returns a human-readable description for the LLM
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters
	Schema() map[string]any

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*types.ToolResult, error)
}

// ToDefinition converts a Tool to the API format
func ToDefinition(t Tool) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Label:       t.Label(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}
