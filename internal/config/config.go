package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration for taskpilot.
type Config struct {
	Models    ModelsConfig     `json:"models" yaml:"models" toml:"models"`
	Agent     AgentConfig      `json:"agent" yaml:"agent" toml:"agent"`
	Sandbox   SandboxConfig    `json:"sandbox" yaml:"sandbox" toml:"sandbox"`
	WebSearch WebSearchConfig  `json:"web_search" yaml:"web_search" toml:"web_search"`
	Memory    MemoryConfig     `json:"memory" yaml:"memory" toml:"memory"`
	Gateway   GatewayConfig    `json:"gateway" yaml:"gateway" toml:"gateway"`
	Events    EventsConfig     `json:"events" yaml:"events" toml:"events"`
	Sessions  SessionsConfig   `json:"sessions" yaml:"sessions" toml:"sessions"`
	Schedules []ScheduleConfig `json:"schedules,omitempty" yaml:"schedules,omitempty" toml:"schedules,omitempty"`
	Log       LogConfig        `json:"log" yaml:"log" toml:"log"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default" yaml:"default" toml:"default"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver      string     `json:"driver" yaml:"driver" toml:"driver"` // "openai", "anthropic", "gemini", "ollama", "mistral"
	Model       string     `json:"model" yaml:"model" toml:"model"`
	BaseURL     string     `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Auth        AuthConfig `json:"auth" yaml:"auth" toml:"auth"`
	MaxTokens   int        `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Temperature *float32   `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	Timeout     Duration   `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
}

// AgentConfig holds the iteration settings applied to every session.
type AgentConfig struct {
	Variant        string `json:"variant" yaml:"variant" toml:"variant"` // "task_queue" or "goal_action"
	MaxIterations  int    `json:"max_iterations" yaml:"max_iterations" toml:"max_iterations"`
	ContextResults int    `json:"context_results" yaml:"context_results" toml:"context_results"`
}

// SandboxConfig confines file and shell tools. Each run works in its own
// subdirectory of WorkDir unless Shared is set.
type SandboxConfig struct {
	WorkDir      string   `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	Shared       bool     `json:"shared,omitempty" yaml:"shared,omitempty" toml:"shared,omitempty"`
	DenyPatterns []string `json:"deny_patterns,omitempty" yaml:"deny_patterns,omitempty" toml:"deny_patterns,omitempty"`
	MaxReadBytes int64    `json:"max_read_bytes,omitempty" yaml:"max_read_bytes,omitempty" toml:"max_read_bytes,omitempty"`
}

// SessionDir is the directory the tools of session sessionID are confined to.
func (c SandboxConfig) SessionDir(sessionID string) string {
	if c.Shared || sessionID == "" {
		return c.WorkDir
	}
	return filepath.Join(c.WorkDir, sessionID)
}

// WebSearchConfig selects the web_search backend.
type WebSearchConfig struct {
	Provider   string     `json:"provider" yaml:"provider" toml:"provider"` // "duckduckgo", "google", "bing"
	Enabled    bool       `json:"enabled" yaml:"enabled" toml:"enabled"`    // required opt-in for duckduckgo
	Auth       AuthConfig `json:"auth" yaml:"auth" toml:"auth"`
	EngineID   string     `json:"engine_id,omitempty" yaml:"engine_id,omitempty" toml:"engine_id,omitempty"`
	MaxResults int        `json:"max_results,omitempty" yaml:"max_results,omitempty" toml:"max_results,omitempty"`
	Timeout    Duration   `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// MemoryConfig configures durable memory.
type MemoryConfig struct {
	Path      string          `json:"path" yaml:"path" toml:"path"` // sqlite file; ":memory:" keeps memory in process
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" toml:"embedding"`
}

// EmbeddingConfig configures the optional embedder used for similarity queries.
type EmbeddingConfig struct {
	Driver     string     `json:"driver,omitempty" yaml:"driver,omitempty" toml:"driver,omitempty"` // "openai", "ollama"
	Model      string     `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	BaseURL    string     `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Auth       AuthConfig `json:"auth" yaml:"auth" toml:"auth"`
	Dimensions int        `json:"dimensions,omitempty" yaml:"dimensions,omitempty" toml:"dimensions,omitempty"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
	LogDir     string `json:"log_dir" yaml:"log_dir" toml:"log_dir"`
}

// SessionsConfig locates the archive of finished runs.
type SessionsConfig struct {
	Dir      string `json:"dir" yaml:"dir" toml:"dir"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// ScheduleConfig describes a run the gateway starts on its own. Exactly one of
// Cron, Interval and OnEvent must be set.
type ScheduleConfig struct {
	Name          string        `json:"name" yaml:"name" toml:"name"`
	Cron          string        `json:"cron,omitempty" yaml:"cron,omitempty" toml:"cron,omitempty"` // 5-field, minute precision
	Interval      Duration      `json:"interval,omitempty" yaml:"interval,omitempty" toml:"interval,omitempty"`
	OnEvent       *EventTrigger `json:"on_event,omitempty" yaml:"on_event,omitempty" toml:"on_event,omitempty"`
	AgentType     string        `json:"agent_type,omitempty" yaml:"agent_type,omitempty" toml:"agent_type,omitempty"`
	Input         string        `json:"input" yaml:"input" toml:"input"`
	Provider      string        `json:"provider,omitempty" yaml:"provider,omitempty" toml:"provider,omitempty"`
	MaxIterations *int          `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" toml:"max_iterations,omitempty"`
	Cooldown      Duration      `json:"cooldown,omitempty" yaml:"cooldown,omitempty" toml:"cooldown,omitempty"`
	MaxRuns       int           `json:"max_runs,omitempty" yaml:"max_runs,omitempty" toml:"max_runs,omitempty"`
	Disabled      bool          `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// EventTrigger matches bus events by type and string payload fields.
type EventTrigger struct {
	Event  string            `json:"event" yaml:"event" toml:"event"`
	Filter map[string]string `json:"filter,omitempty" yaml:"filter,omitempty" toml:"filter,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `json:"level" yaml:"level" toml:"level"`
	Format  string `json:"format" yaml:"format" toml:"format"` // "text" or "json"
	File    string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	Journal bool   `json:"journal,omitempty" yaml:"journal,omitempty" toml:"journal,omitempty"`
}

// Duration wraps time.Duration so it can be written as "30s" in any config format.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(b []byte) error {
	dur, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
