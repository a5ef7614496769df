// Package progress implements the report_progress tool.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gateward/gateward/internal/report"
	"github.com/gateward/gateward/internal/types"
)

// RateLimitWindow is the minimum spacing between accepted reports per run.
const RateLimitWindow = 30 * time.Second

type input struct {
	Phase           string         `json:"phase"`
	PercentComplete *int           `json:"percentComplete,omitempty"`
	Level           string         `json:"level,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
}

// Tool appends progress records for the calling run, rate limited so a
// chatty subagent cannot flood the log.
type Tool struct {
	writer *report.ProgressWriter
	runID  string
	now    func() time.Time

	mu          sync.Mutex
	lastAllowed map[string]time.Time
}

func New(writer *report.ProgressWriter, runID string) *Tool {
	return &Tool{
		writer:      writer,
		runID:       runID,
		now:         time.Now,
		lastAllowed: make(map[string]time.Time),
	}
}

func (t *Tool) Name() string  { return "report_progress" }
func (t *Tool) Label() string { return "Report Progress" }

func (t *Tool) Description() string {
	return "Record a progress update for your current run. At most one update per 30 seconds is kept."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"phase": map[string]interface{}{
				"type":        "string",
				"description": "What you are working on right now",
			},
			"percentComplete": map[string]interface{}{
				"type":        "integer",
				"description": "Estimated completion percentage, 0-100",
			},
			"level": map[string]interface{}{
				"type": "string",
				"enum": []string{"info", "warn", "error"},
			},
			"metrics": map[string]interface{}{
				"type":        "object",
				"description": "Optional numeric or string metrics",
			},
		},
		"required": []string{"phase"},
	}
}

func (t *Tool) Execute(_ context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Phase == "" {
		return types.ErrorResult("phase is required"), nil
	}
	if in.PercentComplete != nil && (*in.PercentComplete < 0 || *in.PercentComplete > 100) {
		return types.ErrorResult(fmt.Sprintf("percentComplete %d is out of range 0-100", *in.PercentComplete)), nil
	}

	now := t.now()
	t.mu.Lock()
	last, reported := t.lastAllowed[t.runID]
	if reported && now.Sub(last) < RateLimitWindow {
		next := last.Add(RateLimitWindow)
		t.mu.Unlock()
		return types.JSONResult(map[string]interface{}{
			"status":        "rate_limited",
			"nextAllowedAt": next.UnixMilli(),
		}), nil
	}
	t.lastAllowed[t.runID] = now
	t.mu.Unlock()

	// fire and forget: the writer serializes the actual append
	t.writer.Append(report.ProgressRecord{
		RunID:           t.runID,
		Phase:           in.Phase,
		PercentComplete: in.PercentComplete,
		Level:           in.Level,
		Metrics:         in.Metrics,
		UpdatedAt:       now.UnixMilli(),
	})

	return types.JSONResult(map[string]interface{}{"status": "accepted"}), nil
}
