package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// compatDefaults holds the defaults of a driver speaking the OpenAI chat API.
type compatDefaults struct {
	baseURL string // empty means the client's own default
	model   string
	timeout time.Duration
}

var openAICompatible = map[string]compatDefaults{
	"openai":  {model: "gpt-4o-mini", timeout: 60 * time.Second},
	"mistral": {baseURL: "https://api.mistral.ai/v1", model: "mistral-small-latest", timeout: 5 * time.Minute},
}

// NewOpenAI creates a chat model for openai or any driver in openAICompatible.
func NewOpenAI(ctx context.Context, driver string, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	return einoopenai.NewChatModel(ctx, openAIConfig(driver, cfg, apiKey))
}

func openAIConfig(driver string, cfg config.ProviderConfig, apiKey string) *einoopenai.ChatModelConfig {
	d, ok := openAICompatible[driver]
	if !ok {
		d = openAICompatible["openai"]
	}
	mc := &einoopenai.ChatModelConfig{
		APIKey:      apiKey,
		Model:       firstNonEmpty(cfg.Model, d.model),
		BaseURL:     firstNonEmpty(cfg.BaseURL, d.baseURL),
		Temperature: cfg.Temperature,
		Timeout:     d.timeout,
	}
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		mc.MaxCompletionTokens = &n
	}
	if t := cfg.Timeout.Duration(); t > 0 {
		mc.Timeout = t
	}
	return mc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
