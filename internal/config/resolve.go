package config

import (
	"strings"

	"dario.cat/mergo"
)

// Built-in bottom layer of the spawn-limit resolution.
var builtinSubagentDefaults = SubagentSettings{
	AllowRecursiveSpawn: boolPtr(false),
	MaxSpawnDepth:       3,
	MaxChildrenPerAgent: 5,
	MaxConcurrent:       10,
	RunTimeoutSeconds:   900,
	Thinking:            "low",
}

var builtinMemoryFlushDefaults = MemoryFlushSettings{
	Enabled: boolPtr(true),
	Prompt: "Write any lasting notes to memory now. If there is nothing " +
		"worth keeping, reply with NO_REPLY.",
	SystemPrompt: "Pre-compaction memory flush. The session is about to be " +
		"compacted; persist anything you need to remember.",
}

// ResolveSubagentSettings merges the spawn limits for an agent:
// built-in defaults, then agents.defaults, then the per-agent override,
// then an optional call-site override. Later layers win field by field.
func (c *Config) ResolveSubagentSettings(agentID string, override *SubagentSettings) SubagentSettings {
	out := builtinSubagentDefaults

	layers := []*SubagentSettings{&c.Agents.Defaults.Subagents}
	if agent := c.FindAgent(agentID); agent != nil && agent.Subagents != nil {
		layers = append(layers, agent.Subagents)
	}
	if override != nil {
		layers = append(layers, override)
	}

	for _, layer := range layers {
		// mergo ignores zero-value source fields, which is exactly the
		// "unset means inherit" contract of SubagentSettings.
		_ = mergo.Merge(&out, *layer, mergo.WithOverride)
	}

	clampSubagentSettings(&out)
	return out
}

// ResolveMemoryFlush merges memory-flush settings for an agent.
func (c *Config) ResolveMemoryFlush(agentID string) MemoryFlushSettings {
	out := builtinMemoryFlushDefaults

	layers := []*MemoryFlushSettings{&c.Agents.Defaults.MemoryFlush}
	if agent := c.FindAgent(agentID); agent != nil && agent.MemoryFlush != nil {
		layers = append(layers, agent.MemoryFlush)
	}
	for _, layer := range layers {
		_ = mergo.Merge(&out, *layer, mergo.WithOverride)
	}
	return out
}

// clampSubagentSettings enforces sane floors. Depth and slot counts below
// zero become zero; per-agent and concurrency limits have a floor of one.
func clampSubagentSettings(s *SubagentSettings) {
	if s.MaxSpawnDepth < 0 {
		s.MaxSpawnDepth = 0
	}
	if s.MaxChildrenPerAgent < 1 {
		s.MaxChildrenPerAgent = 1
	}
	if s.MaxConcurrent < 1 {
		s.MaxConcurrent = 1
	}
	if s.RunTimeoutSeconds < 1 {
		s.RunTimeoutSeconds = builtinSubagentDefaults.RunTimeoutSeconds
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func boolPtr(v bool) *bool { return &v }
