package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"agent": {"variant": "goal_action", "max_iterations": 8},
	"models": {
		"default": "gpt",
		"providers": {
			"gpt": {
				"driver": "openai",
				"model": "gpt-4o-mini",
				"auth": {
					"api_key": "${{ .Env.OPENAI_API_KEY }}"
				},
				"max_tokens": 1000,
				"timeout": "45s"
			}
		}
	}
}`
	path := writeConfig(t, "config.jsonc", content)
	t.Setenv("OPENAI_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Agent.Variant != "goal_action" || cfg.Agent.MaxIterations != 8 {
		t.Errorf("unexpected agent config: %+v", cfg.Agent)
	}

	p, ok := cfg.Models.Providers["gpt"]
	if !ok {
		t.Fatal("expected gpt provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 1000 {
		t.Errorf("expected max_tokens 1000, got %d", p.MaxTokens)
	}
	if p.Timeout.Duration() != 45*time.Second {
		t.Errorf("expected timeout 45s, got %s", p.Timeout.Duration())
	}
}

func TestLoadYAML(t *testing.T) {
	content := `
agent:
  max_iterations: 3
sandbox:
  work_dir: /tmp/pilot
web_search:
  provider: google
  engine_id: cx-1
  timeout: 10s
schedules:
  - name: nightly
    cron: "0 3 * * *"
    input: summarize yesterday's runs
    max_iterations: 4
  - name: diagnose
    input: find out why the run failed
    cooldown: 5m
    on_event:
      event: run.aborted
      filter:
        fault_kind: collaborator
`
	cfg, err := Load(writeConfig(t, "config.yaml", content))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("expected max_iterations 3, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Sandbox.WorkDir != "/tmp/pilot" {
		t.Errorf("expected work_dir /tmp/pilot, got %s", cfg.Sandbox.WorkDir)
	}
	if cfg.WebSearch.Provider != "google" || cfg.WebSearch.EngineID != "cx-1" {
		t.Errorf("unexpected web_search: %+v", cfg.WebSearch)
	}
	if cfg.WebSearch.Timeout.Duration() != 10*time.Second {
		t.Errorf("expected timeout 10s, got %s", cfg.WebSearch.Timeout.Duration())
	}
	if len(cfg.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(cfg.Schedules))
	}
	if s := cfg.Schedules[0]; s.Cron != "0 3 * * *" || s.MaxIterations == nil || *s.MaxIterations != 4 {
		t.Errorf("unexpected schedule: %+v", s)
	}
	if s := cfg.Schedules[1]; s.OnEvent == nil || s.OnEvent.Filter["fault_kind"] != "collaborator" || s.Cooldown.Duration() != 5*time.Minute {
		t.Errorf("unexpected schedule: %+v", s)
	}
}

func TestLoadTOML(t *testing.T) {
	content := `
[agent]
variant = "goal_action"

[memory]
path = "/var/lib/pilot/memory.db"

[memory.embedding]
driver = "ollama"
model = "nomic-embed-text"
`
	cfg, err := Load(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.Variant != "goal_action" {
		t.Errorf("expected goal_action, got %s", cfg.Agent.Variant)
	}
	if cfg.Memory.Path != "/var/lib/pilot/memory.db" {
		t.Errorf("unexpected memory path %s", cfg.Memory.Path)
	}
	if cfg.Memory.Embedding.Driver != "ollama" {
		t.Errorf("expected ollama embedder, got %s", cfg.Memory.Embedding.Driver)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASKPILOT_PATH", "/data/pilot")
	cfg, err := Load(writeConfig(t, "config.jsonc", `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected default max_iterations 5, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.Variant != "task_queue" {
		t.Errorf("expected default variant task_queue, got %s", cfg.Agent.Variant)
	}
	if cfg.Sandbox.WorkDir != filepath.Join("/data/pilot", "workspace") {
		t.Errorf("unexpected default work_dir %s", cfg.Sandbox.WorkDir)
	}
	if len(cfg.Sandbox.DenyPatterns) == 0 {
		t.Error("expected default deny patterns")
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Sessions.Dir != filepath.Join("/data/pilot", "sessions") {
		t.Errorf("unexpected default sessions dir %s", cfg.Sessions.Dir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err != nil {
		t.Fatalf("missing config should fall back to defaults, got: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected default max_iterations 5, got %d", cfg.Agent.MaxIterations)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.jsonc", `{"agent": `)); err == nil {
		t.Error("expected error for truncated config")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
