package models

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	driver := normalizeDriver(cfg.Driver)
	if driver == "ollama" {
		return NewOllama(ctx, cfg)
	}
	if _, ok := defaultKeyEnv[driver]; !ok {
		return nil, faults.Errorf(faults.Config, "create model", "unknown driver: %s", cfg.Driver)
	}

	apiKey, err := ResolveAuth(cfg)
	if err != nil {
		return nil, err
	}
	switch driver {
	case "anthropic":
		return NewAnthropic(ctx, cfg, apiKey)
	case "gemini":
		return NewGemini(ctx, cfg, apiKey)
	default:
		return NewOpenAI(ctx, driver, cfg, apiKey)
	}
}
