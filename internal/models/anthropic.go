package models

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskpilot/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 4096
)

// NewAnthropic creates an Anthropic ChatModel.
func NewAnthropic(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	modelConfig := &claude.Config{
		APIKey:      apiKey,
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	return claude.NewChatModel(ctx, modelConfig)
}
