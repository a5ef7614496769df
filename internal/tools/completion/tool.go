// Package completion implements the report_completion tool.
package completion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gateward/gateward/internal/report"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/types"
)

// Sink receives the finished report and its verification outcome.
type Sink func(sessionKey, runID string, rep report.CompletionReport, verification subagent.VerificationResult)

type input struct {
	Status     string            `json:"status,omitempty"`
	Confidence string            `json:"confidence,omitempty"`
	Summary    string            `json:"summary"`
	Artifacts  []report.Artifact `json:"artifacts,omitempty"`
	Blockers   []string          `json:"blockers,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// Tool records a run's completion report and verifies any artifact
// contracts attached at spawn time.
type Tool struct {
	reg        *subagent.Registry
	runID      string
	sessionKey string
	sink       Sink
}

func New(reg *subagent.Registry, runID, sessionKey string, sink Sink) *Tool {
	return &Tool{reg: reg, runID: runID, sessionKey: sessionKey, sink: sink}
}

func (t *Tool) Name() string  { return "report_completion" }
func (t *Tool) Label() string { return "Report Completion" }

func (t *Tool) Description() string {
	return "Report that your task is finished, with a summary and any artifacts you produced."
}

func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type": "string",
				"enum": []string{"complete", "partial", "failed"},
			},
			"confidence": map[string]interface{}{
				"type": "string",
				"enum": []string{"high", "medium", "low"},
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "What you accomplished",
			},
			"artifacts": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path":        map[string]interface{}{"type": "string"},
						"description": map[string]interface{}{"type": "string"},
					},
					"required": []string{"path"},
				},
			},
			"blockers": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"warnings": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required": []string{"summary"},
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	rep := report.CompletionReport{
		Status:     in.Status,
		Confidence: in.Confidence,
		Summary:    in.Summary,
		Artifacts:  in.Artifacts,
		Blockers:   in.Blockers,
		Warnings:   in.Warnings,
	}
	rep.Normalize()

	if rep.Summary == "" {
		return types.ErrorResult("summary is required"), nil
	}
	if rep.Status != "" && !report.ValidStatus(rep.Status) {
		return types.ErrorResult(fmt.Sprintf("invalid status %q: must be complete, partial, or failed", rep.Status)), nil
	}
	if rep.Confidence != "" && !report.ValidConfidence(rep.Confidence) {
		return types.ErrorResult(fmt.Sprintf("invalid confidence %q: must be high, medium, or low", rep.Confidence)), nil
	}

	var contracts []subagent.ArtifactContract
	if rec, ok := t.reg.GetRunByChildKey(t.sessionKey); ok {
		contracts = rec.Artifacts
	}
	verification := subagent.RunVerificationChecks(ctx, contracts, subagent.DefaultVerificationTimeout)

	if t.sink != nil {
		t.sink(t.sessionKey, t.runID, rep, verification)
	}

	return types.JSONResult(map[string]interface{}{
		"status":       "recorded",
		"report":       rep,
		"verification": verification,
	}), nil
}
