// Package report handles the two reporting surfaces of delegated runs:
// structured completion reports and append-only progress logs.
package report

import (
	"strings"
)

// Artifact is one deliverable a run claims to have produced.
type Artifact struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// CompletionReport is what a finished run claims about its own work.
type CompletionReport struct {
	Status     string     `json:"status,omitempty"`     // complete | partial | failed
	Confidence string     `json:"confidence,omitempty"` // high | medium | low
	Summary    string     `json:"summary,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	Blockers   []string   `json:"blockers,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// ValidStatus reports whether s is a recognized completion status.
func ValidStatus(s string) bool {
	switch s {
	case "complete", "partial", "failed":
		return true
	}
	return false
}

// ValidConfidence reports whether s is a recognized confidence level.
func ValidConfidence(s string) bool {
	switch s {
	case "high", "medium", "low":
		return true
	}
	return false
}

// Normalize trims fields and drops empty list entries. Called on reports
// arriving through the tool before they are stored.
func (r *CompletionReport) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.Confidence = strings.ToLower(strings.TrimSpace(r.Confidence))
	r.Summary = strings.TrimSpace(r.Summary)

	arts := make([]Artifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		a.Path = strings.TrimSpace(a.Path)
		a.Description = strings.TrimSpace(a.Description)
		if a.Path != "" {
			arts = append(arts, a)
		}
	}
	if len(arts) == 0 {
		arts = nil
	}
	r.Artifacts = arts
	r.Blockers = cleanList(r.Blockers)
	r.Warnings = cleanList(r.Warnings)
}

// ParseCompletionReport extracts a report from a run's free-text reply.
// Field lines look like "Status: complete" or "Artifacts: a.txt, b.txt".
// Fenced code blocks are ignored so example reports inside code samples
// never parse. Lines are scanned from the end: the latest valid occurrence
// of each field wins, and an invalid occurrence falls through to an older
// one. Returns nil when no field parses.
func ParseCompletionReport(text string) *CompletionReport {
	lines := strings.Split(blankOutFences(text), "\n")

	report := &CompletionReport{}
	found := false
	have := map[string]bool{}
	take := func(key string) {
		have[key] = true
		found = true
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		key, value, ok := splitField(line)
		if !ok || have[key] {
			continue
		}
		switch key {
		case "status":
			v := strings.ToLower(value)
			if !ValidStatus(v) {
				continue
			}
			report.Status = v
			take(key)
		case "confidence":
			v := strings.ToLower(value)
			if !ValidConfidence(v) {
				continue
			}
			report.Confidence = v
			take(key)
		case "summary":
			if value == "" {
				continue
			}
			report.Summary = value
			take(key)
		case "artifacts":
			items := splitList(value)
			if len(items) == 0 {
				continue
			}
			arts := make([]Artifact, 0, len(items))
			for _, it := range items {
				arts = append(arts, parseArtifactEntry(it))
			}
			report.Artifacts = arts
			take(key)
		case "blockers":
			items := splitList(value)
			if len(items) == 0 {
				continue
			}
			report.Blockers = items
			take(key)
		case "warnings":
			items := splitList(value)
			if len(items) == 0 {
				continue
			}
			report.Warnings = items
			take(key)
		}
	}

	if !found {
		return nil
	}
	return report
}

// parseArtifactEntry splits "path - description" when the separator is
// present; a bare entry is a path with no description.
func parseArtifactEntry(entry string) Artifact {
	if idx := strings.Index(entry, " - "); idx > 0 {
		return Artifact{
			Path:        strings.TrimSpace(entry[:idx]),
			Description: strings.TrimSpace(entry[idx+3:]),
		}
	}
	return Artifact{Path: entry}
}

// blankOutFences replaces fenced code block contents with empty lines so
// line offsets outside the fences are preserved. A closing fence must use
// the same character as the opener and be at least as long.
func blankOutFences(text string) string {
	lines := strings.Split(text, "\n")
	inFence := false
	var fenceChar byte
	fenceLen := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inFence {
			if n, c := fenceMarker(trimmed); n >= 3 {
				inFence = true
				fenceChar = c
				fenceLen = n
				lines[i] = ""
			}
			continue
		}
		lines[i] = ""
		if n, c := fenceMarker(trimmed); n >= fenceLen && c == fenceChar {
			inFence = false
		}
	}
	return strings.Join(lines, "\n")
}

// fenceMarker returns the length and character of a leading ``` or ~~~
// run, or 0 when the line is not a fence.
func fenceMarker(line string) (int, byte) {
	if line == "" {
		return 0, 0
	}
	c := line[0]
	if c != '`' && c != '~' {
		return 0, 0
	}
	n := 0
	for n < len(line) && line[n] == c {
		n++
	}
	return n, c
}

func splitField(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	switch key {
	case "status", "confidence", "summary", "artifacts", "blockers", "warnings":
		return key, strings.TrimSpace(line[idx+1:]), true
	}
	return "", "", false
}

func splitList(value string) []string {
	return cleanList(strings.Split(value, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
