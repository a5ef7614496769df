// Package toolkit assembles the per-session tool registry. Every run gets
// its own registry because most tools are bound to the calling session.
package toolkit

import (
	"time"

	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/orchestrator"
	"github.com/gateward/gateward/internal/report"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/tools"
	"github.com/gateward/gateward/internal/tools/agentslist"
	"github.com/gateward/gateward/internal/tools/completion"
	"github.com/gateward/gateward/internal/tools/discovery"
	"github.com/gateward/gateward/internal/tools/kill"
	"github.com/gateward/gateward/internal/tools/orchestrate"
	"github.com/gateward/gateward/internal/tools/progress"
	"github.com/gateward/gateward/internal/tools/spawn"
)

// Deps are the shared services behind the tools.
type Deps struct {
	Cfg      *config.Config
	SubReg   *subagent.Registry
	OrchReg  *orchestrator.Registry
	Spawner  *subagent.Spawner
	Aborter  kill.Aborter
	Progress *report.ProgressWriter

	// Notify tells an orchestrator session about a pending question.
	Notify orchestrate.Notifier
	// OnCompletion receives completion reports with their verification.
	OnCompletion completion.Sink
}

// Session identifies the run the registry is built for.
type Session struct {
	SessionKey  string
	RunID       string
	RunDeadline time.Time
}

// Build returns the tool registry for one session.
func Build(deps Deps, s Session) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(spawn.New(deps.Spawner, s.SessionKey))
	reg.Register(kill.New(deps.SubReg, deps.Aborter, s.SessionKey))
	reg.Register(agentslist.New(deps.Cfg, s.SessionKey))
	reg.Register(progress.New(deps.Progress, s.RunID))
	reg.Register(completion.New(deps.SubReg, s.RunID, s.SessionKey, deps.OnCompletion))
	reg.Register(orchestrate.NewRequestTool(deps.OrchReg, deps.SubReg, s.RunID, s.SessionKey, s.RunDeadline, deps.Notify))
	reg.Register(orchestrate.NewRespondTool(deps.OrchReg, s.SessionKey))
	reg.Register(discovery.New(reg, "list_tools"))
	reg.Register(discovery.New(reg, "list_tool"))

	return reg
}
