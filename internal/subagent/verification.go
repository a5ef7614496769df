package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultVerificationTimeout bounds a whole verification pass.
const DefaultVerificationTimeout = 30 * time.Second

// ArtifactContract declares what a completed run must leave on disk.
type ArtifactContract struct {
	Path         string   `json:"path"`
	MinBytes     int      `json:"minBytes,omitempty"`
	JSON         bool     `json:"json,omitempty"`
	MinItems     int      `json:"minItems,omitempty"`
	RequiredKeys []string `json:"requiredKeys,omitempty"`
}

// VerificationCheck is the outcome of verifying one artifact.
type VerificationCheck struct {
	Target string `json:"target,omitempty"`
	Status string `json:"status"` // ok | failed
	Reason string `json:"reason,omitempty"`
}

// VerificationResult is the outcome of a whole pass.
type VerificationResult struct {
	Status string              `json:"status"` // passed | failed | skipped
	Checks []VerificationCheck `json:"checks"`
}

// RunVerificationChecks verifies each artifact contract in order. With no
// contracts the result is skipped with an empty check list. If the pass as a
// whole exceeds the timeout, the checks collapse to one synthetic failure so
// the caller never blocks on a slow filesystem.
func RunVerificationChecks(ctx context.Context, contracts []ArtifactContract, timeout time.Duration) VerificationResult {
	if len(contracts) == 0 {
		return VerificationResult{Status: "skipped", Checks: []VerificationCheck{}}
	}
	if timeout <= 0 {
		timeout = DefaultVerificationTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan []VerificationCheck, 1)
	go func() {
		checks := make([]VerificationCheck, 0, len(contracts))
		for _, c := range contracts {
			checks = append(checks, checkArtifact(c))
		}
		done <- checks
	}()

	var checks []VerificationCheck
	select {
	case checks = <-done:
	case <-ctx.Done():
		checks = []VerificationCheck{{
			Target: "<verification>",
			Status: "failed",
			Reason: "verification_timeout",
		}}
	}

	status := "passed"
	for _, c := range checks {
		if c.Status == "failed" {
			status = "failed"
			break
		}
	}
	return VerificationResult{Status: status, Checks: checks}
}

// checkArtifact runs the checks for one contract in order and stops at the
// first failure.
func checkArtifact(c ArtifactContract) VerificationCheck {
	fail := func(reason string) VerificationCheck {
		return VerificationCheck{Target: c.Path, Status: "failed", Reason: reason}
	}

	info, err := os.Stat(c.Path)
	if err != nil {
		return fail("artifact_not_found")
	}
	if info.IsDir() {
		return fail("artifact_not_file")
	}
	if c.MinBytes > 0 && info.Size() < int64(c.MinBytes) {
		return fail(fmt.Sprintf("artifact_too_small (%d < %d bytes)", info.Size(), c.MinBytes))
	}

	if c.JSON {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return fail("artifact_not_found")
		}
		var parsed any
		if json.Unmarshal(data, &parsed) != nil {
			return fail("artifact_json_parse_failed")
		}
		var items []json.RawMessage
		if json.Unmarshal(data, &items) != nil {
			return fail("artifact_json_not_array")
		}
		if c.MinItems > 0 && len(items) < c.MinItems {
			return fail(fmt.Sprintf("artifact_json_too_few_items (%d < %d)", len(items), c.MinItems))
		}
		// element shape is only constrained when required keys are declared
		if len(c.RequiredKeys) > 0 {
			for i, raw := range items {
				var obj map[string]json.RawMessage
				if json.Unmarshal(raw, &obj) != nil {
					return fail(fmt.Sprintf("artifact_json_item_not_object_%d", i))
				}
				for _, key := range c.RequiredKeys {
					if _, ok := obj[key]; !ok {
						return fail(fmt.Sprintf("artifact_json_item_missing_required_key_%d.%s", i, key))
					}
				}
			}
		}
	}

	return VerificationCheck{Target: c.Path, Status: "ok"}
}
