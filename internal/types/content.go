// Package types provides shared types for content blocks and tool results.
package types

import "encoding/json"

// ContentBlock represents a single block of content in a message or tool
// result.
type ContentBlock struct {
	Type string `json:"type"` // "text"

	Text string `json:"text,omitempty"`

	// Source tracking
	Source string `json:"source,omitempty"` // "telegram", "gateway", "internal", etc.
}

// ToolResult represents the structured result from a tool execution.
// Tools return this instead of a plain string.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"is_error,omitempty"`
}

// TextResult creates a ToolResult with a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// ErrorResult creates a ToolResult with an error message.
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// JSONResult marshals a payload and wraps it in a text block. Tool-level
// errors travel inside these payloads, not as Go errors, so the calling
// agent turn can react to them in-band.
func JSONResult(payload interface{}) *ToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ErrorResult("failed to encode tool result: " + err.Error())
	}
	return TextResult(string(data))
}
