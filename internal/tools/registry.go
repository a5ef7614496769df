package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gateward/gateward/internal/types"
)

// Registry holds all registered tools
type Registry struct {
	tools map[string]Tool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name. Lookup tolerates case differences and
// surrounding whitespace in the requested name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

// Has returns true if a tool with the given name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Execute runs a tool by name with the given input
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (*types.ToolResult, error) {
	r.mu.RLock()
	tool, ok := r.lookupLocked(name)
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	return tool.Execute(ctx, input)
}

func (r *Registry) lookupLocked(name string) (Tool, bool) {
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for registered, t := range r.tools {
		if strings.ToLower(registered) == want {
			return t, true
		}
	}
	return nil, false
}

// List returns all registered tools in registration order
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns all registered tool names sorted lexicographically
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tools in API format
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToDefinition(r.tools[name]))
	}
	return defs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// BuildToolSummary generates a system prompt section listing available
// tools, one line per tool with a truncated description.
func (r *Registry) BuildToolSummary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return ""
	}

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("## Available Tools\n")
	sb.WriteString("Call tools by the names listed below.\n")

	for _, name := range names {
		tool := r.tools[name]
		summary := truncateDescription(tool.Description(), 100)
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, summary))
	}

	return sb.String()
}

// truncateDescription shortens a description for the summary view
func truncateDescription(desc string, maxLen int) string {
	if idx := strings.Index(desc, ". "); idx > 0 && idx < maxLen {
		return desc[:idx+1]
	}

	if len(desc) <= maxLen {
		return desc
	}

	truncated := desc[:maxLen]
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
