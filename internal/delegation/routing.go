package delegation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gateward/gateward/internal/config"
)

// minTokenLen drops noise words like "a", "to", "of" from matching.
const minTokenLen = 3

// Normalized capability data, ready for matching.
type NormalizedCapabilities struct {
	Tags           []string
	CostTier       string
	TypicalLatency string
}

type NormalizedCard struct {
	Title       string
	Description string
	Keywords    []string
}

// Suggestion is one ranked delegation target.
type Suggestion struct {
	AgentID          string   `json:"agentId"`
	Score            int      `json:"score"`
	MatchedTags      []string `json:"matchedTags,omitempty"`
	MatchedCardTitle string   `json:"matchedCardTitle,omitempty"`
}

// ParseAgentCapabilities normalizes routing hints: lowercased, trimmed,
// deduplicated tags with short tokens dropped.
func ParseAgentCapabilities(c *config.Capabilities) NormalizedCapabilities {
	if c == nil {
		return NormalizedCapabilities{}
	}
	return NormalizedCapabilities{
		Tags:           normalizeTerms(c.Tags),
		CostTier:       strings.ToLower(strings.TrimSpace(c.CostTier)),
		TypicalLatency: strings.ToLower(strings.TrimSpace(c.TypicalLatency)),
	}
}

// ParseCapabilityCards normalizes cards. Cards without a title are dropped;
// a card nobody can name is a card nobody can match.
func ParseCapabilityCards(cards []config.CapabilityCard) []NormalizedCard {
	out := make([]NormalizedCard, 0, len(cards))
	for _, c := range cards {
		title := strings.ToLower(strings.TrimSpace(c.Title))
		if title == "" {
			continue
		}
		out = append(out, NormalizedCard{
			Title:       title,
			Description: strings.ToLower(strings.TrimSpace(c.Description)),
			Keywords:    normalizeTerms(c.Keywords),
		})
	}
	return out
}

// RankAgentsForTask scores every configured agent against a task
// description. Each source is scored on its own and the best single source
// wins: capability tags first (exact phrase 3, single-token overlap 1),
// then the best capability card (title 3, keyword phrase 2, keyword token
// 1, description overlap), then the free-text agent description as a
// fallback. MatchedCardTitle names the winning source: "capabilities" for
// tags, the card title, or "agent <id> description".
func RankAgentsForTask(task string, agents []config.AgentConfig) []Suggestion {
	taskLower := strings.ToLower(task)
	taskTokens := tokenSet(taskLower)

	suggestions := make([]Suggestion, 0, len(agents))
	for _, agent := range agents {
		id := strings.ToLower(strings.TrimSpace(agent.ID))
		caps := ParseAgentCapabilities(agent.Capabilities)
		cards := ParseCapabilityCards(agent.CapabilityCards)

		s := Suggestion{AgentID: id}

		tagScore := 0
		var matchedTags []string
		for _, tag := range caps.Tags {
			if strings.Contains(taskLower, tag) {
				tagScore += 3
				matchedTags = append(matchedTags, tag)
			} else if anyTokenIn(tag, taskTokens) {
				tagScore++
				matchedTags = append(matchedTags, tag)
			}
		}

		bestCardScore := 0
		bestCardTitle := ""
		for _, card := range cards {
			cardScore := 0
			if strings.Contains(taskLower, card.Title) {
				cardScore += 3
			}
			for _, kw := range card.Keywords {
				if strings.Contains(taskLower, kw) {
					cardScore += 2
				} else if anyTokenIn(kw, taskTokens) {
					cardScore++
				}
			}
			cardScore += overlapCount(card.Description, taskTokens)
			if cardScore > bestCardScore {
				bestCardScore = cardScore
				bestCardTitle = card.Title
			}
		}

		// highest-scoring single source wins; tags take priority on ties
		switch {
		case tagScore > 0 && tagScore >= bestCardScore:
			s.Score = tagScore
			s.MatchedTags = matchedTags
			s.MatchedCardTitle = "capabilities"
		case bestCardScore > 0:
			s.Score = bestCardScore
			s.MatchedCardTitle = bestCardTitle
		default:
			if n := overlapCount(strings.ToLower(agent.Description), taskTokens); n > 0 {
				s.Score = n
				s.MatchedCardTitle = fmt.Sprintf("agent %s description", id)
			}
		}

		suggestions = append(suggestions, s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ca, cb := costRank(capsFor(agents, a.AgentID)), costRank(capsFor(agents, b.AgentID))
		if ca != cb {
			return ca < cb
		}
		la, lb := latencyRank(capsFor(agents, a.AgentID)), latencyRank(capsFor(agents, b.AgentID))
		if la != lb {
			return la < lb
		}
		return a.AgentID < b.AgentID
	})
	return suggestions
}

// SuggestAgents returns up to limit positive-scoring targets for a task.
// A non-empty allowIDs restricts ranking to those agent ids.
func SuggestAgents(task string, cfg *config.Config, allowIDs []string, limit int) []Suggestion {
	fleet := cfg.Agents.List
	if len(allowIDs) > 0 {
		allowed := make(map[string]bool, len(allowIDs))
		for _, id := range allowIDs {
			allowed[strings.ToLower(strings.TrimSpace(id))] = true
		}
		filtered := make([]config.AgentConfig, 0, len(fleet))
		for _, a := range fleet {
			if allowed[strings.ToLower(strings.TrimSpace(a.ID))] {
				filtered = append(filtered, a)
			}
		}
		fleet = filtered
	}
	ranked := RankAgentsForTask(task, fleet)
	out := make([]Suggestion, 0, limit)
	for _, s := range ranked {
		if s.Score <= 0 {
			break
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func capsFor(agents []config.AgentConfig, id string) *config.Capabilities {
	for i := range agents {
		if strings.ToLower(strings.TrimSpace(agents[i].ID)) == id {
			return agents[i].Capabilities
		}
	}
	return nil
}

// costRank orders free < cheap < medium < expensive; unknown tiers sort
// last.
func costRank(c *config.Capabilities) int {
	if c == nil {
		return 4
	}
	switch strings.ToLower(strings.TrimSpace(c.CostTier)) {
	case "free":
		return 0
	case "cheap":
		return 1
	case "medium":
		return 2
	case "expensive":
		return 3
	default:
		return 4
	}
}

// latencyRank parses values like "500ms", "2s", "5m", "1h". Unparseable
// latency sorts last.
func latencyRank(c *config.Capabilities) time.Duration {
	const worst = time.Duration(1<<63 - 1)
	if c == nil {
		return worst
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.TypicalLatency), "~"))
	if raw == "" {
		return worst
	}
	d, err := time.ParseDuration(strings.ToLower(raw))
	if err != nil {
		return worst
	}
	return d
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if len(t) < minTokenLen || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) >= minTokenLen {
			set[tok] = true
		}
	}
	return set
}

func anyTokenIn(term string, tokens map[string]bool) bool {
	for _, tok := range strings.Fields(term) {
		if tokens[tok] {
			return true
		}
	}
	return false
}

func overlapCount(text string, tokens map[string]bool) int {
	n := 0
	for tok := range tokenSet(text) {
		if tokens[tok] {
			n++
		}
	}
	return n
}
