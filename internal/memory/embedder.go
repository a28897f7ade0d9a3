package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	einoollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/embedding/openai"

	"github.com/dohr-michael/taskpilot/internal/config"
)

var errEmptyEmbedding = errors.New("embed text: empty result")

// NewEmbedder creates an Eino Embedder from the embedding config.
// Supported drivers: "openai", "ollama". An empty driver disables embeddings
// and returns nil, nil; queries then fall back to keyword matching.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case "openai":
		return newOpenAIEmbedder(ctx, cfg)
	case "ollama":
		return newOllamaEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding driver %q (supported: openai, ollama)", cfg.Driver)
	}
}

func newOpenAIEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	apiKey := resolveEmbeddingAuth(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedding: API key not configured (set auth.api_key or OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	ecfg := &einoopenai.EmbeddingConfig{
		APIKey: apiKey,
		Model:  model,
	}
	if cfg.BaseURL != "" {
		ecfg.BaseURL = cfg.BaseURL
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		ecfg.Dimensions = &dims
	}
	return einoopenai.NewEmbedder(ctx, ecfg)
}

func newOllamaEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}

	ecfg := &einoollama.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   model,
	}
	return einoollama.NewEmbedder(ctx, ecfg)
}

// resolveEmbeddingAuth resolves the API key for the embedding provider.
// Resolution order: direct api_key, then OPENAI_API_KEY.
func resolveEmbeddingAuth(cfg config.EmbeddingConfig) string {
	if key := strings.TrimSpace(cfg.Auth.APIKey); key != "" {
		return key
	}
	if strings.EqualFold(cfg.Driver, "openai") {
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// embedOne embeds a single text. A nil embedder yields a nil vector.
func embedOne(ctx context.Context, e embedding.Embedder, text string) ([]float64, error) {
	if e == nil {
		return nil, nil
	}
	vectors, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errEmptyEmbedding
	}
	return vectors[0], nil
}
