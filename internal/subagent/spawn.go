package subagent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/sessionkey"
)

// StartSpec is everything a run backend needs to start a delegated run.
type StartSpec struct {
	ChildSessionKey string
	AgentID         string
	Task            string
	SystemPrompt    string
	Label           string
	Thinking        string
	TimeoutSeconds  int
}

// RunStarter starts a delegated run and returns its run id. Starting is
// asynchronous; the run reports back through the orchestration tools.
type RunStarter interface {
	StartRun(ctx context.Context, spec StartSpec) (string, error)
}

// SpawnRequest describes one requested delegation.
type SpawnRequest struct {
	RequesterKey   string
	TargetAgentID  string
	Task           string
	Label          string
	TimeoutSeconds int
	Artifacts      []ArtifactContract
}

// SpawnResult is returned to the requesting agent.
type SpawnResult struct {
	ChildSessionKey string `json:"childSessionKey"`
	RunID           string `json:"runId"`
	Depth           int    `json:"depth"`
}

// PromptContext is everything the injected prompt builder needs to brief a
// child run: its place in the delegation tree and the slot headroom it
// starts with.
type PromptContext struct {
	TargetAgentID string
	ParentKey     string
	ChildDepth    int
	MaxDepth      int

	ChildSlotsAvailable  int
	MaxChildrenPerAgent  int
	GlobalSlotsAvailable int
	MaxConcurrent        int
}

// Spawner enforces spawn limits and hands validated requests to the run
// backend.
type Spawner struct {
	cfg     *config.Config
	reg     *Registry
	starter RunStarter

	// BuildPrompt produces the delegation system prompt for the child.
	// Injected so the prompt tiering lives with the delegation logic.
	BuildPrompt func(PromptContext) string
}

func NewSpawner(cfg *config.Config, reg *Registry, starter RunStarter) *Spawner {
	return &Spawner{cfg: cfg, reg: reg, starter: starter}
}

// Spawn validates limits, reserves a slot, starts the run, and registers
// it. The reservation is rolled back if the backend fails to start.
//
// Any configured agent id is a valid target: the requester does not need
// to be on an allowlist to delegate across agents.
func (s *Spawner) Spawn(ctx context.Context, req SpawnRequest) (*SpawnResult, error) {
	targetID := sessionkey.NormalizeAgentID(req.TargetAgentID)
	if req.Task == "" {
		return nil, fmt.Errorf("task is required")
	}

	parsed, ok := sessionkey.Parse(req.RequesterKey)
	if !ok {
		return nil, fmt.Errorf("invalid requester session key %q", req.RequesterKey)
	}

	settings := s.cfg.ResolveSubagentSettings(parsed.AgentID, nil)

	depth := sessionkey.Depth(req.RequesterKey, s.reg)
	childDepth := depth + 1

	if depth >= 1 && (settings.AllowRecursiveSpawn == nil || !*settings.AllowRecursiveSpawn) {
		return nil, fmt.Errorf("recursive spawning is disabled; set subagents.allowRecursiveSpawn to permit subagents to spawn their own")
	}
	if childDepth > settings.MaxSpawnDepth {
		return nil, fmt.Errorf("max spawn depth %d exceeded", settings.MaxSpawnDepth)
	}

	if err := s.reg.ReserveChildSlot(req.RequesterKey, settings.MaxChildrenPerAgent, settings.MaxConcurrent); err != nil {
		return nil, err
	}

	childID := uuid.NewString()
	childKey := sessionkey.ChildKey(req.RequesterKey, targetID, childID)

	systemPrompt := ""
	if s.BuildPrompt != nil {
		// a fresh child starts with its full fan-out available
		systemPrompt = s.BuildPrompt(PromptContext{
			TargetAgentID:        targetID,
			ParentKey:            req.RequesterKey,
			ChildDepth:           childDepth,
			MaxDepth:             settings.MaxSpawnDepth,
			ChildSlotsAvailable:  settings.MaxChildrenPerAgent,
			MaxChildrenPerAgent:  settings.MaxChildrenPerAgent,
			GlobalSlotsAvailable: settings.MaxConcurrent - s.reg.ActiveCount(),
			MaxConcurrent:        settings.MaxConcurrent,
		})
	}

	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = settings.RunTimeoutSeconds
	}

	runID, err := s.starter.StartRun(ctx, StartSpec{
		ChildSessionKey: childKey,
		AgentID:         targetID,
		Task:            req.Task,
		SystemPrompt:    systemPrompt,
		Label:           req.Label,
		Thinking:        settings.Thinking,
		TimeoutSeconds:  timeout,
	})
	if err != nil {
		s.reg.ReleaseChildSlot(req.RequesterKey)
		return nil, fmt.Errorf("failed to start subagent run: %w", err)
	}

	rec, err := s.reg.RegisterRun(RunRecord{
		RunID:            runID,
		ChildKey:         childKey,
		ParentSessionKey: req.RequesterKey,
		AgentID:          targetID,
		Label:            req.Label,
		Artifacts:        req.Artifacts,
	})
	// reservation converts into the registered run either way
	s.reg.ReleaseChildSlot(req.RequesterKey)
	if err != nil {
		return nil, err
	}

	L_info("spawned subagent %s (run %s, depth %d) for %s", targetID, runID, rec.Depth, req.RequesterKey)
	return &SpawnResult{
		ChildSessionKey: childKey,
		RunID:           runID,
		Depth:           rec.Depth,
	}, nil
}
