package delegation

import (
	"strings"
	"testing"

	"github.com/gateward/gateward/internal/config"
)

func builderFixture() *Builder {
	cfg := config.Default()
	cfg.Agents.List = []config.AgentConfig{
		{
			ID:          "writer",
			Model:       "openai/gpt-4o",
			Description: "Prose and docs | changelogs",
			Capabilities: &config.Capabilities{
				CostTier:       "cheap",
				TypicalLatency: "2s",
			},
		},
		{ID: "engineer"},
	}
	return NewBuilder(cfg)
}

func promptInput(depth, maxDepth int) PromptInput {
	return PromptInput{
		AgentID:              "writer",
		Depth:                depth,
		MaxDepth:             maxDepth,
		ParentKey:            "agent:main:main",
		ChildSlotsAvailable:  3,
		MaxChildrenPerAgent:  3,
		GlobalSlotsAvailable: 7,
		MaxConcurrent:        10,
	}
}

func TestDelegationPromptTiers(t *testing.T) {
	b := builderFixture()

	full := b.DelegationPrompt(promptInput(1, 3))
	if !strings.Contains(full, "orchestrator") || !strings.Contains(full, "sessions_spawn") {
		t.Errorf("depth 1 of 3 should get the full briefing:\n%s", full)
	}
	if !strings.Contains(full, "depth: 1 of 3") {
		t.Errorf("full briefing should state depth vs max:\n%s", full)
	}

	last := b.DelegationPrompt(promptInput(2, 3))
	if !strings.Contains(last, "leaf worker unable to delegate further") {
		t.Errorf("second-to-last depth should warn children are leaves:\n%s", last)
	}

	leaf := b.DelegationPrompt(promptInput(3, 3))
	if !strings.Contains(leaf, "leaf worker") || strings.Contains(leaf, "sessions_spawn") {
		t.Errorf("at max depth the briefing must not mention spawning:\n%s", leaf)
	}
	if !strings.Contains(leaf, "message your parent at session key: agent:main:main") {
		t.Errorf("leaf briefing must point at the parent key:\n%s", leaf)
	}
	// every tier keeps the reporting instructions
	for _, p := range []string{full, last, leaf} {
		if !strings.Contains(p, "report_completion") {
			t.Error("all tiers must instruct completion reporting")
		}
	}
}

func TestDelegationPromptSpawnLimitsBlock(t *testing.T) {
	b := builderFixture()
	p := b.DelegationPrompt(promptInput(1, 3))

	for _, want := range []string{
		"your child slots: 3/3 available",
		"global slots: 7/10 available",
		"parent session key: agent:main:main",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("missing %q in:\n%s", want, p)
		}
	}
}

func TestDelegationPromptClampsNegativeInputs(t *testing.T) {
	b := builderFixture()
	in := promptInput(1, 3)
	in.ChildSlotsAvailable = -2
	in.GlobalSlotsAvailable = -1
	in.MaxChildrenPerAgent = -5
	in.MaxConcurrent = 0

	p := b.DelegationPrompt(in)
	if !strings.Contains(p, "your child slots: 0/1 available") {
		t.Errorf("negative slots/limits should clamp to 0 and 1:\n%s", p)
	}
	if !strings.Contains(p, "global slots: 0/1 available") {
		t.Errorf("negative global slots should clamp:\n%s", p)
	}
}

func TestDelegationPromptBeyondMaxDepth(t *testing.T) {
	b := builderFixture()
	// depth past the limit is a leaf briefing, never a negative tier
	p := b.DelegationPrompt(promptInput(5, 3))
	if !strings.Contains(p, "leaf worker") {
		t.Errorf("over-depth should be a leaf briefing:\n%s", p)
	}
}

func TestFleetTableEscaping(t *testing.T) {
	b := builderFixture()
	p := b.DelegationPrompt(promptInput(1, 3))

	if !strings.Contains(p, "| Agent | Model | Cost | Latency | Description |") {
		t.Fatalf("missing fleet table header:\n%s", p)
	}
	if !strings.Contains(p, `Prose and docs \| changelogs`) {
		t.Errorf("pipes in descriptions must be escaped:\n%s", p)
	}
	// engineer has no capabilities or description: cells become dashes
	if !strings.Contains(p, "| engineer | - | - | - | - |") {
		t.Errorf("empty cells should render as dashes:\n%s", p)
	}
}
