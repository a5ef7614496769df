// Package sessionkey parses and classifies agent session keys.
//
// A well-formed key has the shape agent:<agentId>:<scope>, where scope is
// "main", a channel scope like telegram:group:123, or a subagent chain
// subagent:<id>(:sub:<id>)*. Bare aliases such as "main" are legacy keys and
// stay valid.
package sessionkey

import "strings"

// DefaultAgentID is used when no agent id can be resolved.
const DefaultAgentID = "main"

// Shape classifies the structural validity of a session key.
type Shape string

const (
	ShapeMissing        Shape = "missing"
	ShapeAgent          Shape = "agent"
	ShapeMalformedAgent Shape = "malformed_agent"
	ShapeLegacyOrAlias  Shape = "legacy_or_alias"
)

const (
	subagentMarker = "subagent"
	subMarker      = "sub"
)

// Parsed is the decomposition of an agent-form session key.
type Parsed struct {
	AgentID string
	Rest    string
}

// DepthSource resolves subagent depth from live run records. The subagent
// registry implements it; string parsing is the fallback when no record
// exists, and the registry wins on conflict.
type DepthSource interface {
	DepthByChildKey(key string) (depth int, ok bool)
}

// Parse splits a key into agent id and scope remainder. Empty segments are
// dropped, matching the permissive reader used for stored keys.
func Parse(key string) (Parsed, bool) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return Parsed{}, false
	}
	parts := splitNonEmpty(raw)
	if len(parts) < 3 || parts[0] != "agent" {
		return Parsed{}, false
	}
	agentID := strings.TrimSpace(parts[1])
	rest := strings.Join(parts[2:], ":")
	if agentID == "" || rest == "" {
		return Parsed{}, false
	}
	return Parsed{AgentID: agentID, Rest: rest}, true
}

// ClassifyShape reports how a key should be treated for compatibility-error
// reporting. Bare aliases like "main" are legitimate and never flagged
// malformed.
func ClassifyShape(key string) Shape {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return ShapeMissing
	}
	if _, ok := Parse(raw); ok {
		return ShapeAgent
	}
	if strings.HasPrefix(raw, "agent:") {
		return ShapeMalformedAgent
	}
	return ShapeLegacyOrAlias
}

// NormalizeAgentID lowercases and trims an agent id, falling back to
// DefaultAgentID when empty.
func NormalizeAgentID(id string) string {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return DefaultAgentID
	}
	return normalized
}

// IsSubagentKey reports whether the key addresses a subagent session.
func IsSubagentKey(key string) bool {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(raw), "subagent:") {
		return true
	}
	parsed, ok := Parse(raw)
	return ok && strings.HasPrefix(strings.ToLower(parsed.Rest), "subagent:")
}

// IsCronRunKey reports whether the key addresses an isolated cron run
// session (scope cron:<jobId>:run:<runId>).
func IsCronRunKey(key string) bool {
	parsed, ok := Parse(key)
	if !ok {
		return false
	}
	parts := strings.Split(parsed.Rest, ":")
	if len(parts) != 4 {
		return false
	}
	return parts[0] == "cron" && parts[1] != "" && parts[2] == "run" && parts[3] != ""
}

// Depth returns the subagent nesting depth of a key: 0 for non-subagent or
// malformed keys, otherwise the number of chain segments. When reg holds a
// live record with depth > 0 for the key, the registry value is
// authoritative.
func Depth(key string, reg DepthSource) int {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return 0
	}
	parsed, ok := Parse(raw)
	if !ok || !strings.HasPrefix(strings.ToLower(parsed.Rest), "subagent:") {
		return 0
	}
	segments := validatedSubagentSegments(raw)
	if segments == nil {
		return 0
	}
	if reg != nil {
		if depth, found := reg.DepthByChildKey(raw); found && depth > 0 {
			return depth
		}
	}
	return len(segments)
}

// ParentKey returns the parent session key of a subagent key. Depth 1
// resolves to the agent's main session; deeper keys drop the trailing
// :sub:<id> segment. Returns ok=false for non-subagent keys.
func ParentKey(key string, reg DepthSource) (string, bool) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return "", false
	}
	depth := Depth(raw, reg)
	if depth == 0 {
		return "", false
	}
	if depth == 1 {
		parsed, ok := Parse(raw)
		if !ok {
			return "", false
		}
		return "agent:" + parsed.AgentID + ":main", true
	}
	lastSub := strings.LastIndex(strings.ToLower(raw), ":sub:")
	if lastSub <= 0 {
		return "", false
	}
	return raw[:lastSub], true
}

// ChildKey constructs the session key for a subagent spawned from
// requesterKey. A subagent requester nests with :sub:<id>; anything else
// starts a fresh chain under the target agent.
func ChildKey(requesterKey, targetAgentID, childID string) string {
	if IsSubagentKey(requesterKey) {
		return requesterKey + ":sub:" + childID
	}
	return "agent:" + NormalizeAgentID(targetAgentID) + ":subagent:" + childID
}

// ResolveThreadParentKey strips the last :thread:<id> or :topic:<id> suffix,
// preferring whichever marker occurs later in the string. Returns ok=false
// when no marker is present.
func ResolveThreadParentKey(key string) (string, bool) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return "", false
	}
	normalized := strings.ToLower(raw)
	idx := -1
	for _, marker := range []string{":thread:", ":topic:"} {
		if candidate := strings.LastIndex(normalized, marker); candidate > idx {
			idx = candidate
		}
	}
	if idx <= 0 {
		return "", false
	}
	parent := strings.TrimSpace(raw[:idx])
	if parent == "" {
		return "", false
	}
	return parent, true
}

// validatedSubagentSegments parses the strict subagent chain grammar.
// Any deviation (missing id, wrong marker, trailing colon) returns nil
// rather than a partial chain.
func validatedSubagentSegments(raw string) []string {
	restStart := nthColonIndex(raw, 2)
	if restStart < 0 {
		return nil
	}
	rest := raw[restStart+1:]
	if rest == "" {
		return nil
	}
	tokens := strings.Split(strings.ToLower(rest), ":")
	if tokens[0] != subagentMarker {
		return nil
	}
	if len(tokens) < 2 || strings.TrimSpace(tokens[1]) == "" {
		return nil
	}
	segments := []string{strings.TrimSpace(tokens[1])}
	for i := 2; i < len(tokens); i += 2 {
		if strings.TrimSpace(tokens[i]) != subMarker {
			return nil
		}
		if i+1 >= len(tokens) {
			return nil
		}
		child := strings.TrimSpace(tokens[i+1])
		if child == "" {
			return nil
		}
		segments = append(segments, child)
	}
	return segments
}

func nthColonIndex(raw string, n int) int {
	count := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			count++
			if count == n {
				return i
			}
		}
	}
	return -1
}

func splitNonEmpty(raw string) []string {
	parts := strings.Split(raw, ":")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
