package reply

import "sync"

// TypingTransport starts and stops a channel's typing indicator.
type TypingTransport interface {
	StartTyping()
	StopTyping()
}

// TypingController keeps the indicator on while either the run is still
// working or replies are still draining. It stops exactly once, when both
// conditions hold, and never restarts afterwards.
type TypingController struct {
	transport TypingTransport

	mu             sync.Mutex
	started        bool
	stopped        bool
	runComplete    bool
	dispatcherIdle bool
}

func NewTypingController(transport TypingTransport) *TypingController {
	return &TypingController{transport: transport}
}

// Start turns the indicator on. Starting after stop is a no-op.
func (c *TypingController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.transport.StartTyping()
}

// RunComplete records the run finishing.
func (c *TypingController) RunComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runComplete = true
	c.maybeStopLocked()
}

// DispatcherIdle records the reply queue draining.
func (c *TypingController) DispatcherIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatcherIdle = true
	c.maybeStopLocked()
}

// Active reports whether the indicator is currently on.
func (c *TypingController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped
}

func (c *TypingController) maybeStopLocked() {
	if c.stopped || !c.runComplete || !c.dispatcherIdle {
		return
	}
	c.stopped = true
	if c.started {
		c.transport.StopTyping()
	}
}
