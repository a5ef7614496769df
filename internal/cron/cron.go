// Package cron triggers scheduled agent runs. Each firing gets its own
// session key so scheduled work never pollutes the agent's main session.
package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	. "github.com/gateward/gateward/internal/logging"

	"github.com/gateward/gateward/internal/config"
	"github.com/gateward/gateward/internal/runner"
	"github.com/gateward/gateward/internal/sessionkey"
)

// Service schedules configured jobs against the run coordinator.
type Service struct {
	cfg   *config.Config
	coord *runner.Coordinator
	sched *cron.Cron
}

func NewService(cfg *config.Config, coord *runner.Coordinator) *Service {
	return &Service{
		cfg:   cfg,
		coord: coord,
		sched: cron.New(),
	}
}

// Start registers all configured jobs and starts the scheduler. Jobs with
// bad schedules or unknown agents are logged and skipped.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Cron.Enabled {
		L_debug("cron disabled")
		return nil
	}

	registered := 0
	for _, job := range s.cfg.Cron.Jobs {
		job := job
		if s.cfg.FindAgent(job.AgentID) == nil {
			L_warn("cron job %s targets unknown agent %s, skipping", job.ID, job.AgentID)
			continue
		}
		if _, err := s.sched.AddFunc(job.Schedule, func() { s.fire(ctx, job) }); err != nil {
			L_warn("cron job %s has invalid schedule %q: %v", job.ID, job.Schedule, err)
			continue
		}
		registered++
	}

	s.sched.Start()
	L_info("cron started with %d job(s)", registered)

	go func() {
		<-ctx.Done()
		s.sched.Stop()
	}()
	return nil
}

// fire runs one job occurrence under a fresh cron-run session key.
func (s *Service) fire(ctx context.Context, job config.CronJob) {
	key := RunKey(job.AgentID, job.ID)
	L_info("cron job %s firing as %s", job.ID, key)

	res, err := s.coord.Run(ctx, runner.RunRequest{
		SessionKey: key,
		AgentID:    sessionkey.NormalizeAgentID(job.AgentID),
		Message:    job.Message,
	})
	if err != nil {
		L_error("cron job %s failed: %v", job.ID, err)
		return
	}
	L_debug("cron job %s completed run %s", job.ID, res.RunID)
}

// RunKey builds the session key for one firing of a job.
func RunKey(agentID, jobID string) string {
	return fmt.Sprintf("agent:%s:cron:%s:run:%s",
		sessionkey.NormalizeAgentID(agentID), jobID, uuid.NewString())
}
