package delegation

import (
	"testing"

	"github.com/gateward/gateward/internal/config"
)

func fleetFixture() []config.AgentConfig {
	return []config.AgentConfig{
		{
			ID:          "writer",
			Description: "Long-form prose and documentation",
			Capabilities: &config.Capabilities{
				Tags:     []string{"writing", "docs", "changelog", "release notes"},
				CostTier: "cheap",
			},
		},
		{
			ID:          "engineer",
			Description: "Writes and reviews Go code",
			Capabilities: &config.Capabilities{
				Tags:     []string{"golang", "refactoring", "testing"},
				CostTier: "expensive",
			},
			CapabilityCards: []config.CapabilityCard{
				{
					Title:       "Code review",
					Description: "Reviews Go changes for correctness",
					Keywords:    []string{"golang", "refactoring"},
				},
			},
		},
	}
}

func TestRankAgentsTagSourceWins(t *testing.T) {
	ranked := RankAgentsForTask("Prepare release notes and changelog summary", fleetFixture())
	if ranked[0].AgentID != "writer" {
		t.Fatalf("writer should outrank engineer, got %+v", ranked)
	}
	top := ranked[0]
	if top.MatchedCardTitle != "capabilities" {
		t.Errorf("matched source = %q, want capabilities", top.MatchedCardTitle)
	}
	hasTag := func(tag string) bool {
		for _, mt := range top.MatchedTags {
			if mt == tag {
				return true
			}
		}
		return false
	}
	if !hasTag("changelog") || !hasTag("release notes") {
		t.Errorf("matched tags = %v", top.MatchedTags)
	}
}

func TestRankAgentsBestSingleSourceNotSum(t *testing.T) {
	// one weak tag plus a strong card: the score is the card's alone
	agents := []config.AgentConfig{{
		ID:           "analyst",
		Capabilities: &config.Capabilities{Tags: []string{"numbers"}},
		CapabilityCards: []config.CapabilityCard{{
			Title:    "quarterly numbers report",
			Keywords: []string{"quarterly", "report"},
		}},
	}}
	ranked := RankAgentsForTask("build the quarterly numbers report", agents)
	top := ranked[0]
	if top.MatchedCardTitle != "quarterly numbers report" {
		t.Fatalf("matched source = %q, want the card", top.MatchedCardTitle)
	}
	// title phrase 3 + two keyword phrases 2 each
	if top.Score != 7 {
		t.Errorf("score = %d, want the card score alone", top.Score)
	}
	if top.MatchedTags != nil {
		t.Errorf("tags did not win, matchedTags = %v", top.MatchedTags)
	}
}

func TestRankAgentsDescriptionFallback(t *testing.T) {
	ranked := RankAgentsForTask("review this code", []config.AgentConfig{
		{ID: "engineer", Description: "Writes and reviews Go code"},
	})
	if ranked[0].Score == 0 {
		t.Fatal("description overlap should still score")
	}
	if ranked[0].MatchedCardTitle != "agent engineer description" {
		t.Errorf("fallback marker = %q", ranked[0].MatchedCardTitle)
	}
}

func TestRankAgentsCostTieBreak(t *testing.T) {
	agents := []config.AgentConfig{
		{ID: "zeta", Capabilities: &config.Capabilities{Tags: []string{"search"}, CostTier: "expensive"}},
		{ID: "alpha", Capabilities: &config.Capabilities{Tags: []string{"search"}, CostTier: "cheap"}},
	}
	ranked := RankAgentsForTask("search the archive", agents)
	if ranked[0].AgentID != "alpha" {
		t.Errorf("equal scores should break on cost tier, got %+v", ranked)
	}
}

func TestRankAgentsLatencyAndLexTieBreaks(t *testing.T) {
	agents := []config.AgentConfig{
		{ID: "slow", Capabilities: &config.Capabilities{Tags: []string{"search"}, CostTier: "cheap", TypicalLatency: "5m"}},
		{ID: "fast", Capabilities: &config.Capabilities{Tags: []string{"search"}, CostTier: "cheap", TypicalLatency: "500ms"}},
	}
	ranked := RankAgentsForTask("search the archive", agents)
	if ranked[0].AgentID != "fast" {
		t.Errorf("latency should break the tie, got %+v", ranked)
	}

	agents = []config.AgentConfig{
		{ID: "bbb", Capabilities: &config.Capabilities{Tags: []string{"search"}}},
		{ID: "aaa", Capabilities: &config.Capabilities{Tags: []string{"search"}}},
	}
	ranked = RankAgentsForTask("search the archive", agents)
	if ranked[0].AgentID != "aaa" {
		t.Errorf("id should be the final tie break, got %+v", ranked)
	}
}

func TestSuggestAgentsDropsZeroScores(t *testing.T) {
	cfg := config.Default()
	cfg.Agents.List = fleetFixture()
	got := SuggestAgents("draft the release notes", cfg, nil, 5)
	for _, s := range got {
		if s.Score <= 0 {
			t.Errorf("zero-score suggestion leaked: %+v", s)
		}
	}
	if len(got) == 0 || got[0].AgentID != "writer" {
		t.Errorf("suggestions = %+v", got)
	}
}

func TestSuggestAgentsAllowlist(t *testing.T) {
	cfg := config.Default()
	cfg.Agents.List = fleetFixture()
	got := SuggestAgents("draft the release notes and review the Go code", cfg, []string{"Engineer"}, 5)
	for _, s := range got {
		if s.AgentID != "engineer" {
			t.Errorf("allowlist leaked agent %q", s.AgentID)
		}
	}
	if len(got) == 0 {
		t.Fatal("allowed agent should still rank")
	}
}

func TestParseCapabilityCardsDropsUntitled(t *testing.T) {
	cards := ParseCapabilityCards([]config.CapabilityCard{
		{Title: "  ", Description: "orphan"},
		{Title: "Data Cleanup", Keywords: []string{"CSV", "de-dupe", "x"}},
	})
	if len(cards) != 1 {
		t.Fatalf("expected untitled card dropped, got %d", len(cards))
	}
	if cards[0].Title != "data cleanup" {
		t.Errorf("title = %q", cards[0].Title)
	}
	// "x" is below the token length floor
	if len(cards[0].Keywords) != 2 {
		t.Errorf("keywords = %v", cards[0].Keywords)
	}
}

func TestNormalizeTagsDedupes(t *testing.T) {
	caps := ParseAgentCapabilities(&config.Capabilities{
		Tags:     []string{" Writing ", "writing", "ab", "docs"},
		CostTier: " Cheap ",
	})
	if len(caps.Tags) != 2 {
		t.Errorf("tags = %v", caps.Tags)
	}
	if caps.CostTier != "cheap" {
		t.Errorf("cost tier = %q", caps.CostTier)
	}
}
