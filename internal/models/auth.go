package models

import (
	"os"
	"strings"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

// defaultKeyEnv is the environment variable consulted per driver when the
// config carries no key.
var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// ResolveAuth resolves the API key for a provider.
// Resolution order: direct api_key (or ${VAR}) → driver default env.
// A missing key is a config fault.
func ResolveAuth(cfg config.ProviderConfig) (string, error) {
	if key := strings.TrimSpace(cfg.Auth.APIKey); key != "" {
		if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
			key = os.Getenv(key[2 : len(key)-1])
		}
		if key != "" {
			return key, nil
		}
	}

	driver := normalizeDriver(cfg.Driver)
	env, ok := defaultKeyEnv[driver]
	if !ok {
		return "", faults.Errorf(faults.Config, "resolve auth", "unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", faults.Errorf(faults.Config, "resolve auth", "%s not set", env)
}

func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "claude" {
		return "anthropic"
	}
	return driver
}
