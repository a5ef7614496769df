package runner

import (
	"context"
	"fmt"

	"github.com/gateward/gateward/internal/gateway"
	"github.com/gateward/gateward/internal/tools"
)

// GatewayRuntime executes turns through the gateway RPC surface. It also
// satisfies the abort interface the kill tool needs.
type GatewayRuntime struct {
	caller gateway.Caller
}

func NewGatewayRuntime(caller gateway.Caller) *GatewayRuntime {
	return &GatewayRuntime{caller: caller}
}

func (g *GatewayRuntime) Run(ctx context.Context, req RuntimeRequest) (*RuntimeResult, error) {
	var started gateway.AgentResult
	err := g.caller.Call(ctx, gateway.MethodAgent, gateway.AgentParams{
		SessionKey:   req.SessionKey,
		AgentID:      req.AgentID,
		Message:      req.Message,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Thinking:     req.Thinking,
		TimeoutSec:   req.TimeoutSeconds,
		Tools:        toolSpecs(req.Tools),
	}, &started)
	if err != nil {
		return nil, err
	}

	// a fast path may answer inline without a wait round trip
	if started.Reply != "" {
		return &RuntimeResult{Reply: started.Reply}, nil
	}

	var waited gateway.WaitResult
	err = g.caller.Call(ctx, gateway.MethodAgentWait, gateway.WaitParams{
		RunID:      started.RunID,
		TimeoutSec: req.TimeoutSeconds,
	}, &waited)
	if err != nil {
		return nil, err
	}
	if waited.Status == "error" {
		return nil, fmt.Errorf("%s", waited.Error)
	}
	return &RuntimeResult{Reply: waited.Reply}, nil
}

// toolSpecs flattens a registry into the wire descriptors the gateway
// presents to the model.
func toolSpecs(reg *tools.Registry) []gateway.ToolSpec {
	if reg == nil {
		return nil
	}
	var specs []gateway.ToolSpec
	for _, t := range reg.List() {
		specs = append(specs, gateway.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return specs
}

// AbortRun stops a running session through the gateway.
func (g *GatewayRuntime) AbortRun(ctx context.Context, runID, sessionKey string) error {
	var res gateway.AbortResult
	return g.caller.Call(ctx, gateway.MethodAgentAbort, gateway.AbortParams{
		RunID:      runID,
		SessionKey: sessionKey,
	}, &res)
}
