package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/authprofile"
	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/cron"
	"github.com/gateward/gateward/internal/delegation"
	"github.com/gateward/gateward/internal/gateway"
	"github.com/gateward/gateward/internal/orchestrator"
	"github.com/gateward/gateward/internal/reply"
	"github.com/gateward/gateward/internal/report"
	"github.com/gateward/gateward/internal/runner"
	"github.com/gateward/gateward/internal/sessionstore"
	"github.com/gateward/gateward/internal/subagent"
	"github.com/gateward/gateward/internal/tools"
	"github.com/gateward/gateward/internal/tools/toolkit"
)

const version = "0.1.0"

type cli struct {
	Config   string `help:"Path to gateward.yaml" type:"path"`
	LogLevel string `help:"Override log level (trace|debug|info|warn|error)"`

	Serve   serveCmd   `cmd:"" default:"1" help:"Run the gateward service"`
	Version versionCmd `cmd:"" help:"Print the version"`
}

type versionCmd struct{}

func (versionCmd) Run(*cli) error {
	fmt.Printf("gateward %s\n", version)
	return nil
}

type serveCmd struct{}

func (serveCmd) Run(root *cli) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Logging.Level
	if root.LogLevel != "" {
		level = root.LogLevel
	}
	Init(&Config{
		Level:      ParseLevel(level),
		TimeFormat: "15:04:05",
		ShowCaller: cfg.Logging.ShowCaller,
	})
	L_info("gateward %s starting", version)
	L_object("config", cfg)

	if cfg.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles, err := authprofile.NewStore(filepath.Join(cfg.StateDir, "auth-profiles.json"))
	if err != nil {
		return err
	}

	token := cfg.Gateway.Token
	profileKey := ""
	if p, ok := profiles.Next("gateway"); ok {
		if cred := p.Credential(); cred != "" {
			token = cred
			profileKey = p.StoreKey()
		}
	}

	client := gateway.NewClient(cfg.Gateway.URL, token)
	if err := client.Connect(ctx); err != nil {
		if profileKey != "" {
			profiles.MarkFailure(profileKey)
		}
		return err
	}
	if profileKey != "" {
		profiles.MarkSuccess(profileKey)
	}
	defer client.Close()

	store := sessionstore.New(cfg.SessionStore)
	subReg := subagent.NewRegistry()
	orchReg := orchestrator.NewRegistry()
	orchReg.StartSweep(ctx, time.Second)

	runtime := runner.NewGatewayRuntime(client)
	coord := runner.NewCoordinator(cfg, store, runtime)

	spawner := subagent.NewSpawner(cfg, subReg, coord)
	promptBuilder := delegation.NewBuilder(cfg)
	spawner.BuildPrompt = func(pc subagent.PromptContext) string {
		return promptBuilder.DelegationPrompt(delegation.PromptInput{
			AgentID:              pc.TargetAgentID,
			Depth:                pc.ChildDepth,
			MaxDepth:             pc.MaxDepth,
			ParentKey:            pc.ParentKey,
			ChildSlotsAvailable:  pc.ChildSlotsAvailable,
			MaxChildrenPerAgent:  pc.MaxChildrenPerAgent,
			GlobalSlotsAvailable: pc.GlobalSlotsAvailable,
			MaxConcurrent:        pc.MaxConcurrent,
		})
	}

	progressWriter := report.NewProgressWriter(cfg.StateDir)
	defer progressWriter.Close()

	tracker := reply.NewTracker()

	deps := toolkit.Deps{
		Cfg:      cfg,
		SubReg:   subReg,
		OrchReg:  orchReg,
		Spawner:  spawner,
		Aborter:  runtime,
		Progress: progressWriter,
		Notify: func(parentKey string, req orchestrator.Request) error {
			_, err := coord.Run(ctx, runner.RunRequest{
				SessionKey: parentKey,
				Message: fmt.Sprintf(
					"Your subagent asks (request %s): %s\nAnswer with respond_orchestrator_request.",
					req.ID, req.Question),
			})
			return err
		},
		OnCompletion: func(sessionKey, runID string, rep report.CompletionReport, verification subagent.VerificationResult) {
			L_info("run %s (%s) completed: %s", runID, sessionKey, rep.Status)
			for _, c := range verification.Checks {
				if c.Status == "failed" {
					L_warn("verification failed for %s: %s", c.Target, c.Reason)
				}
			}
		},
	}

	coord.BuildTools = func(sessionKey, runID string, deadline time.Time) *tools.Registry {
		return toolkit.Build(deps, toolkit.Session{
			SessionKey:  sessionKey,
			RunID:       runID,
			RunDeadline: deadline,
		})
	}

	// announcements to a busy parent queue up and merge; each delivery
	// round keeps the parent's typing indicator on until it drains
	announce := parentAnnouncer{coord: coord}
	followUps := reply.NewQueue(cfg.Queue.Mode, cfg.Queue.Cap)

	var announceMu sync.Mutex
	announcing := make(map[string]*reply.Dispatcher)

	var deliverToParent func(parentKey, text string)
	deliverToParent = func(parentKey, text string) {
		announceMu.Lock()
		if _, busy := announcing[parentKey]; busy {
			announceMu.Unlock()
			action := followUps.Add(reply.FollowUp{Prompt: text, Destination: parentKey})
			if action == reply.ActionQueued || action == reply.ActionDropped {
				return
			}
			// interrupt and steer modes deliver immediately
			announceMu.Lock()
		}
		d := reply.NewDispatcher(announce, tracker)
		announcing[parentKey] = d
		announceMu.Unlock()

		typing := reply.NewTypingController(typingTransport{caller: client, sessionKey: parentKey})
		typing.Start()
		d.OnIdle(func() {
			typing.DispatcherIdle()
			announceMu.Lock()
			if announcing[parentKey] == d {
				delete(announcing, parentKey)
			}
			announceMu.Unlock()
			if queued, ok := followUps.DrainFor("", parentKey); ok {
				deliverToParent(parentKey, queued)
			}
		})
		d.Enqueue(ctx, reply.Delivery{To: parentKey, Text: text})
		d.MarkComplete()
		typing.RunComplete()
	}

	// delegated runs tear down their registry state when they finish; a
	// completion report may still arrive first via the tool
	coord.OnRunComplete = func(sessionKey, runID, runReply string) {
		if rep := report.ParseCompletionReport(runReply); rep != nil {
			L_debug("run %s left an inline completion report (%s)", runID, rep.Status)
		}
		rec, wasDelegated := subReg.GetRunByChildKey(sessionKey)
		orchReg.OrphanByParent(sessionKey)
		subReg.RemoveRun(sessionKey)

		if !wasDelegated {
			return
		}
		deliverToParent(rec.ParentSessionKey, fmt.Sprintf(
			"Subagent %s (run %s) finished:\n%s", rec.AgentID, runID, runReply))
	}

	mainTools := coord.BuildTools("agent:main:main", "", time.Time{})
	L_debug("tool surface:\n%s", mainTools.BuildToolSummary())

	if err := cron.NewService(cfg, coord).Start(ctx); err != nil {
		return err
	}
	if err := store.Watch(ctx, func() {
		L_debug("session store changed on disk")
	}); err != nil {
		L_warn("session store watcher unavailable: %v", err)
	}

	L_info("gateward ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	SetShuttingDown()
	cancel()

	// let in-flight replies land before exiting
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := tracker.WaitIdle(drainCtx); err != nil {
		L_warn("shutdown with deliveries pending: %v", err)
	}
	return nil
}

// parentAnnouncer delivers subagent results as a turn on the parent
// session, so the orchestrator hears about them in its own context.
type parentAnnouncer struct {
	coord *runner.Coordinator
}

func (a parentAnnouncer) Send(ctx context.Context, d reply.Delivery) error {
	_, err := a.coord.Run(ctx, runner.RunRequest{
		SessionKey: d.To,
		Message:    d.Text,
	})
	return err
}

// typingTransport toggles the gateway typing indicator for one session.
type typingTransport struct {
	caller     gateway.Caller
	sessionKey string
}

func (t typingTransport) StartTyping() {
	if err := t.caller.Call(context.Background(), gateway.MethodTyping,
		gateway.TypingParams{SessionKey: t.sessionKey, Active: true}, nil); err != nil {
		L_debug("typing start for %s: %v", t.sessionKey, err)
	}
}

func (t typingTransport) StopTyping() {
	if err := t.caller.Call(context.Background(), gateway.MethodTyping,
		gateway.TypingParams{SessionKey: t.sessionKey, Active: false}, nil); err != nil {
		L_debug("typing stop for %s: %v", t.sessionKey, err)
	}
}

func main() {
	var root cli
	kctx := kong.Parse(&root,
		kong.Name("gateward"),
		kong.Description("Session orchestration and delegation routing for multi-channel agents"),
		kong.UsageOnError(),
	)
	if err := kctx.Run(&root); err != nil {
		L_fatal("%v", err)
	}
}
