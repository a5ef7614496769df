// Package delegation builds the system prompt handed to spawned runs and
// ranks fleet agents against a task description.
package delegation

import (
	"fmt"
	"strings"

	"github.com/gateward/gateward/internal/config"
)

// PromptInput carries everything the delegation briefing renders.
type PromptInput struct {
	AgentID   string
	Depth     int
	MaxDepth  int
	ParentKey string

	ChildSlotsAvailable  int
	MaxChildrenPerAgent  int
	GlobalSlotsAvailable int
	MaxConcurrent        int
}

// Builder renders delegation prompts from the configured fleet.
type Builder struct {
	cfg *config.Config
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// DelegationPrompt produces the system prompt for a child run at the given
// depth. Three tiers: a full orchestrator briefing while further delegation
// is open, a reduced briefing for the last level that may still spawn, and
// a leaf-worker briefing once the depth budget is spent. Slot and limit
// inputs are clamped so a misconfigured negative value never renders.
func (b *Builder) DelegationPrompt(in PromptInput) string {
	maxDepth := clampLimit(in.MaxDepth)
	depth := in.Depth
	if depth < 0 {
		depth = 0
	}
	childSlots := clampSlot(in.ChildSlotsAvailable)
	maxChildren := clampLimit(in.MaxChildrenPerAgent)
	globalSlots := clampSlot(in.GlobalSlotsAvailable)
	maxConcurrent := clampLimit(in.MaxConcurrent)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are running as a delegated subagent (%s) at depth %d.\n\n", in.AgentID, depth)

	switch {
	case depth >= maxDepth:
		sb.WriteString("You are a leaf worker. You cannot spawn further subagents; ")
		sb.WriteString("complete the task yourself with the tools available.\n")
		if in.ParentKey != "" {
			fmt.Fprintf(&sb, "When you need your orchestrator, message your parent at session key: %s\n", in.ParentKey)
		}
	case depth == maxDepth-1:
		sb.WriteString("You may delegate with sessions_spawn, but anything you spawn ")
		sb.WriteString("will be a leaf worker unable to delegate further. ")
		sb.WriteString("Prefer doing the work yourself unless splitting it clearly helps.\n")
		b.writeSpawnLimits(&sb, depth, maxDepth, childSlots, maxChildren, globalSlots, maxConcurrent, in.ParentKey)
		b.writeFleetTable(&sb)
	default:
		sb.WriteString("You are an orchestrator. Break the task down and delegate ")
		sb.WriteString("pieces with sessions_spawn where parallelism or specialization helps.\n")
		b.writeSpawnLimits(&sb, depth, maxDepth, childSlots, maxChildren, globalSlots, maxConcurrent, in.ParentKey)
		b.writeFleetTable(&sb)
	}

	sb.WriteString("\nReport meaningful progress with report_progress. ")
	sb.WriteString("When you finish, call report_completion with a summary of what you did. ")
	sb.WriteString("If you are blocked on a decision only your orchestrator can make, use request_orchestrator.\n")
	return sb.String()
}

func (b *Builder) writeSpawnLimits(sb *strings.Builder, depth, maxDepth, childSlots, maxChildren, globalSlots, maxConcurrent int, parentKey string) {
	sb.WriteString("\nSpawn limits:\n")
	fmt.Fprintf(sb, "- depth: %d of %d\n", depth, maxDepth)
	fmt.Fprintf(sb, "- your child slots: %d/%d available\n", childSlots, maxChildren)
	fmt.Fprintf(sb, "- global slots: %d/%d available\n", globalSlots, maxConcurrent)
	if parentKey != "" {
		fmt.Fprintf(sb, "- parent session key: %s\n", parentKey)
	}
}

// writeFleetTable renders the configured agents as a markdown table.
func (b *Builder) writeFleetTable(sb *strings.Builder) {
	if len(b.cfg.Agents.List) == 0 {
		return
	}
	sb.WriteString("\nAvailable agents:\n\n")
	sb.WriteString("| Agent | Model | Cost | Latency | Description |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, a := range b.cfg.Agents.List {
		cost, latency := "", ""
		if a.Capabilities != nil {
			cost = a.Capabilities.CostTier
			latency = a.Capabilities.TypicalLatency
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n",
			tableCell(a.ID), tableCell(a.Model), tableCell(cost),
			tableCell(latency), tableCell(a.Description))
	}
}

// tableCell escapes pipes so agent-supplied text cannot break the table.
// Empty cells render as a dash.
func tableCell(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(v, "|", "\\|")
}

func clampSlot(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
