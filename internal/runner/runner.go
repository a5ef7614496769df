// Package runner coordinates one agent turn: directives, the optional
// pre-compaction memory flush, the model call itself, and session
// bookkeeping afterwards.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/sessionstore"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/tokens"
	"github.com/gateward/gateward/internal/tools"
)

// NoReply is the sentinel a silent sub-turn answers with when it has
// nothing to say.
const NoReply = "NO_REPLY"

// memoryFlushTokenThreshold is the context size at which a flush sub-turn
// runs before the main turn.
const memoryFlushTokenThreshold = 100_000

// Runtime executes one model turn for a session.
type Runtime interface {
	Run(ctx context.Context, req RuntimeRequest) (*RuntimeResult, error)
}

// RuntimeRequest is one turn handed to the backend.
type RuntimeRequest struct {
	SessionKey     string
	AgentID        string
	Message        string
	SystemPrompt   string
	Model          string
	Thinking       string
	TimeoutSeconds int
	Tools          *tools.Registry
	Silent         bool // flush sub-turns never reach the user
}

// RuntimeResult is what came back.
type RuntimeResult struct {
	Reply        string
	InputTokens  int
	OutputTokens int
	Compacted    bool
}

// RunRequest is one inbound turn for the coordinator.
type RunRequest struct {
	SessionKey     string
	AgentID        string
	Message        string
	SystemPrompt   string
	Thinking       string
	TimeoutSeconds int
}

// RunResult always carries a user-visible reply, even for failures.
type RunResult struct {
	RunID string
	Reply string
}

// Coordinator owns the turn lifecycle for every session.
type Coordinator struct {
	cfg     *config.Config
	store   *sessionstore.Store
	runtime Runtime

	// OnRunComplete fires after an asynchronous delegated run finishes.
	OnRunComplete func(sessionKey, runID, reply string)

	// BuildTools assembles the tool surface for one run. The deadline is
	// zero when the run has no timeout.
	BuildTools func(sessionKey, runID string, deadline time.Time) *tools.Registry
}

func NewCoordinator(cfg *config.Config, store *sessionstore.Store, runtime Runtime) *Coordinator {
	return &Coordinator{cfg: cfg, store: store, runtime: runtime}
}

// Run executes one turn. Errors from the backend are folded into the
// reply: the session's channel always hears something back.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	runID := uuid.NewString()

	if reply, handled := c.handleDirective(req); handled {
		return &RunResult{RunID: runID, Reply: reply}, nil
	}

	entry, err := c.store.Get(req.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", req.SessionKey, err)
	}
	if entry == nil {
		entry = &sessionstore.Entry{}
	}

	agent := c.cfg.FindAgent(req.AgentID)
	c.maybeFlushMemory(ctx, req, agent, entry)

	model := entry.Model
	if model == "" && agent != nil {
		model = agent.Model
	}

	var deadline time.Time
	if req.TimeoutSeconds > 0 {
		deadline = time.Now().Add(time.Duration(req.TimeoutSeconds) * time.Second)
	}
	var toolset *tools.Registry
	if c.BuildTools != nil {
		toolset = c.BuildTools(req.SessionKey, runID, deadline)
	}

	res, err := c.runtime.Run(ctx, RuntimeRequest{
		SessionKey:     req.SessionKey,
		AgentID:        req.AgentID,
		Message:        req.Message,
		SystemPrompt:   req.SystemPrompt,
		Model:          model,
		Thinking:       req.Thinking,
		TimeoutSeconds: req.TimeoutSeconds,
		Tools:          toolset,
	})
	if err != nil {
		if isCorruptedSessionError(err) {
			L_warn("session %s corrupted, resetting: %v", req.SessionKey, err)
			if delErr := c.store.Delete(req.SessionKey); delErr != nil {
				L_error("failed to reset corrupted session %s: %v", req.SessionKey, delErr)
			}
			return &RunResult{
				RunID: runID,
				Reply: "Session history was corrupted, starting fresh. Please resend your message.",
			}, nil
		}
		L_error("run %s failed for %s: %v", runID, req.SessionKey, err)
		return &RunResult{
			RunID: runID,
			Reply: fmt.Sprintf("Agent failed before reply: %v", err),
		}, nil
	}

	reply := res.Reply
	compacted := res.Compacted
	updateErr := c.store.Update(req.SessionKey, func(e *sessionstore.Entry) bool {
		used := res.InputTokens + res.OutputTokens
		if used == 0 {
			used = tokens.EstimateAll(req.Message, res.Reply)
		}
		e.TotalTokens += used
		e.InputTokens += res.InputTokens
		e.OutputTokens += res.OutputTokens
		if compacted {
			e.CompactionCount++
			e.TotalTokens = tokens.Estimate(res.Reply)
		}
		return true
	})
	if updateErr != nil {
		L_warn("failed to record usage for %s: %v", req.SessionKey, updateErr)
	}

	if compacted && c.cfg.Verbose {
		reply += "\n\nAuto-compaction complete"
	}
	return &RunResult{RunID: runID, Reply: reply}, nil
}

// handleDirective intercepts control messages that never reach the model.
func (c *Coordinator) handleDirective(req RunRequest) (string, bool) {
	msg := strings.TrimSpace(req.Message)
	if !strings.HasPrefix(msg, "/model") {
		return "", false
	}
	ref := strings.TrimSpace(strings.TrimPrefix(msg, "/model"))
	if ref == "" {
		entry, _ := c.store.Get(req.SessionKey)
		current := ""
		if entry != nil {
			current = entry.Model
		}
		if current == "" {
			if agent := c.cfg.FindAgent(req.AgentID); agent != nil {
				current = agent.Model
			}
		}
		if current == "" {
			current = "(default)"
		}
		return fmt.Sprintf("Current model: %s", current), true
	}

	if err := c.store.Update(req.SessionKey, func(e *sessionstore.Entry) bool {
		e.Model = ref
		return true
	}); err != nil {
		return fmt.Sprintf("Failed to set model: %v", err), true
	}
	return fmt.Sprintf("Model set to %s", ref), true
}

// maybeFlushMemory runs the silent flush sub-turn when the session is
// close to compaction. CLI providers manage their own context, and agents
// without writable workspace have nowhere to flush to.
func (c *Coordinator) maybeFlushMemory(ctx context.Context, req RunRequest, agent *config.AgentConfig, entry *sessionstore.Entry) {
	if agent != nil && agent.Provider == "cli" {
		return
	}
	if agent == nil || agent.SandboxWorkspaceAccess != "write" {
		return
	}
	flush := c.cfg.ResolveMemoryFlush(req.AgentID)
	if flush.Enabled == nil || !*flush.Enabled {
		return
	}
	if entry.TotalTokens < memoryFlushTokenThreshold {
		return
	}
	// one flush per compaction cycle
	if entry.MemoryFlushCompactionCount > entry.CompactionCount {
		return
	}

	res, err := c.runtime.Run(ctx, RuntimeRequest{
		SessionKey:   req.SessionKey,
		AgentID:      req.AgentID,
		Message:      flush.Prompt,
		SystemPrompt: flush.SystemPrompt,
		Silent:       true,
	})
	if err != nil {
		L_warn("memory flush failed for %s: %v", req.SessionKey, err)
		return
	}
	if res.Reply != "" && res.Reply != NoReply {
		L_debug("memory flush for %s replied non-silently, suppressing", req.SessionKey)
	}

	if err := c.store.Update(req.SessionKey, func(e *sessionstore.Entry) bool {
		e.MemoryFlushAt = time.Now().UnixMilli()
		e.MemoryFlushCompactionCount = e.CompactionCount + 1
		return true
	}); err != nil {
		L_warn("failed to record memory flush for %s: %v", req.SessionKey, err)
	}
	entry.MemoryFlushCompactionCount = entry.CompactionCount + 1
}

// StartRun implements subagent.RunStarter: delegated runs execute in the
// background and report through OnRunComplete.
func (c *Coordinator) StartRun(ctx context.Context, spec subagent.StartSpec) (string, error) {
	runID := uuid.NewString()
	go func() {
		res, err := c.Run(context.WithoutCancel(ctx), RunRequest{
			SessionKey:     spec.ChildSessionKey,
			AgentID:        spec.AgentID,
			Message:        spec.Task,
			SystemPrompt:   spec.SystemPrompt,
			Thinking:       spec.Thinking,
			TimeoutSeconds: spec.TimeoutSeconds,
		})
		reply := ""
		if err != nil {
			reply = fmt.Sprintf("Agent failed before reply: %v", err)
		} else {
			reply = res.Reply
		}
		if c.OnRunComplete != nil {
			c.OnRunComplete(spec.ChildSessionKey, runID, reply)
		}
	}()
	return runID, nil
}

// corrupted transcripts show up as provider-side turn ordering errors;
// retrying without a reset just fails again.
var corruptedSessionSignatures = []string{
	"function call turn",
	"function response turn",
	"turn ordering",
	"contents.parts must not be empty",
}

func isCorruptedSessionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range corruptedSessionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
