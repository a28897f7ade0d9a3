package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a config file, expands ${{ .Env.VAR }} templates, decodes it
// according to its extension (.jsonc/.json, .yaml/.yml, .toml) and applies
// defaults. A missing file yields the default config.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		applyDefaults(&cfg)
		return &cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := []byte(expandEnvTemplates(string(data)))
	if err := decode(path, expanded, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		std, err := hujson.Standardize(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(std, cfg)
	}
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Agent.Variant == "" {
		cfg.Agent.Variant = "task_queue"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 5
	}
	if cfg.Agent.ContextResults == 0 {
		cfg.Agent.ContextResults = 5
	}

	if cfg.Sandbox.WorkDir == "" {
		cfg.Sandbox.WorkDir = filepath.Join(DataPath(), "workspace")
	}
	if cfg.Sandbox.DenyPatterns == nil {
		cfg.Sandbox.DenyPatterns = []string{".env", ".env.*", "*.pem", "*.key"}
	}
	if cfg.Sandbox.MaxReadBytes == 0 {
		cfg.Sandbox.MaxReadBytes = 1 << 20
	}

	if cfg.Memory.Path == "" {
		cfg.Memory.Path = MemoryPath()
	}

	if cfg.WebSearch.Provider == "" {
		cfg.WebSearch.Provider = "duckduckgo"
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = 5
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogDir == "" {
		cfg.Events.LogDir = filepath.Join(DataPath(), "events")
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(DataPath(), "sessions")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
