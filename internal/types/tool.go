package types

// ToolDefinition is the format required by LLM APIs for tool/function
// calling. This lives in types to break the runner → tools import cycle.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
