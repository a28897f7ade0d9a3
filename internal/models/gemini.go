package models

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/taskpilot/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// NewGemini creates a Gemini ChatModel on the Gemini API backend.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	modelConfig := &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	return gemini.NewChatModel(ctx, modelConfig)
}
