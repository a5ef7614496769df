// Package config loads the gateward configuration and resolves layered
// per-agent settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked up under the state dir.
const DefaultConfigName = "gateward.yaml"

// Config represents the merged gateward configuration
type Config struct {
	StateDir     string `yaml:"stateDir"`
	SessionStore string `yaml:"sessionStore"` // path to sessions.json, defaults under stateDir

	Logging LoggingConfig `yaml:"logging"`
	Gateway GatewayConfig `yaml:"gateway"`
	Agents  AgentsConfig  `yaml:"agents"`
	Queue   QueueConfig   `yaml:"queue"`
	Cron    CronConfig    `yaml:"cron"`

	// Verbose surfaces auto-compaction notices in replies
	Verbose bool `yaml:"verbose"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"` // trace|debug|info|warn|error
	ShowCaller bool   `yaml:"showCaller"`
}

type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `yaml:"defaults"`
	List     []AgentConfig `yaml:"list"`
}

// AgentDefaults holds the global layer of per-agent settings.
type AgentDefaults struct {
	Subagents   SubagentSettings    `yaml:"subagents"`
	MemoryFlush MemoryFlushSettings `yaml:"memoryFlush"`
}

// AgentConfig describes one configured agent.
type AgentConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`

	// Provider kind gates memory-flush: "cli" providers manage their own
	// context and never run a flush sub-turn.
	Provider string `yaml:"provider"` // "api" | "cli"

	// SandboxWorkspaceAccess: "none" | "read" | "write"
	SandboxWorkspaceAccess string `yaml:"sandboxWorkspaceAccess"`

	Capabilities    *Capabilities        `yaml:"capabilities"`
	CapabilityCards []CapabilityCard     `yaml:"capabilityCards"`
	Subagents       *SubagentSettings    `yaml:"subagents"`
	MemoryFlush     *MemoryFlushSettings `yaml:"memoryFlush"`
}

// Capabilities are routing hints for delegation target suggestion.
type Capabilities struct {
	Tags           []string `yaml:"tags"`
	CostTier       string   `yaml:"costTier"` // free|cheap|medium|expensive
	TypicalLatency string   `yaml:"typicalLatency"`
	Notes          string   `yaml:"notes"`
}

// CapabilityCard is a structured description of one capability area.
type CapabilityCard struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// SubagentSettings are the spawn limits for one agent. Zero values mean
// "inherit from the layer below".
type SubagentSettings struct {
	AllowRecursiveSpawn *bool `yaml:"allowRecursiveSpawn"`
	MaxSpawnDepth       int   `yaml:"maxSpawnDepth"`
	MaxChildrenPerAgent int   `yaml:"maxChildrenPerAgent"`
	MaxConcurrent       int   `yaml:"maxConcurrent"`
	RunTimeoutSeconds   int   `yaml:"runTimeoutSeconds"`

	// AllowAgents is the legacy cross-agent spawn allowlist. It is parsed
	// for config compatibility but deliberately not enforced: cross-agent
	// spawning is unrestricted, and deployers who need isolation must
	// enforce it at the gateway boundary.
	AllowAgents []string `yaml:"allowAgents"`

	Thinking string `yaml:"thinking"`
}

// MemoryFlushSettings configure the silent pre-compaction flush sub-turn.
type MemoryFlushSettings struct {
	Enabled      *bool  `yaml:"enabled"`
	Prompt       string `yaml:"prompt"`
	SystemPrompt string `yaml:"systemPrompt"`
}

type QueueConfig struct {
	Mode       string `yaml:"mode"` // collect|interrupt|steer
	DebounceMs int    `yaml:"debounceMs"`
	Cap        int    `yaml:"cap"`
}

type CronConfig struct {
	Enabled bool      `yaml:"enabled"`
	Jobs    []CronJob `yaml:"jobs"`
}

type CronJob struct {
	ID       string `yaml:"id"`
	Schedule string `yaml:"schedule"` // cron expression
	AgentID  string `yaml:"agentId"`
	Message  string `yaml:"message"`
}

// DefaultStateDir returns ~/.gateward.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gateward"
	}
	return filepath.Join(home, ".gateward")
}

// Default returns a config with built-in defaults applied.
func Default() *Config {
	stateDir := DefaultStateDir()
	return &Config{
		StateDir:     stateDir,
		SessionStore: filepath.Join(stateDir, "sessions.json"),
		Logging: LoggingConfig{
			Level:      "info",
			ShowCaller: true,
		},
		Queue: QueueConfig{
			Mode:       "collect",
			DebounceMs: 1000,
			Cap:        50,
		},
	}
}

// Load reads the configuration from path, or from the default location when
// path is empty. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.StateDir, DefaultConfigName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	if cfg.SessionStore == "" {
		cfg.SessionStore = filepath.Join(cfg.StateDir, "sessions.json")
	}

	return cfg, nil
}

// FindAgent returns the configured agent entry for an id, or nil.
func (c *Config) FindAgent(agentID string) *AgentConfig {
	for i := range c.Agents.List {
		if normalizeID(c.Agents.List[i].ID) == normalizeID(agentID) {
			return &c.Agents.List[i]
		}
	}
	return nil
}

// AgentIDs returns all configured agent ids, normalized, in config order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents.List))
	for _, entry := range c.Agents.List {
		ids = append(ids, normalizeID(entry.ID))
	}
	return ids
}
