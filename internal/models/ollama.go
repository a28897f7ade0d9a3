package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskpilot/internal/config"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.1"
	defaultOllamaTimeout = 5 * time.Minute
)

// NewOllama creates a chat model backed by a local or proxied Ollama server.
// Ollama needs no API key.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	return einoollama.NewChatModel(ctx, ollamaConfig(cfg))
}

func ollamaConfig(cfg config.ProviderConfig) *einoollama.ChatModelConfig {
	timeout := defaultOllamaTimeout
	if t := cfg.Timeout.Duration(); t > 0 {
		timeout = t
	}
	opts := &einoollama.Options{NumPredict: cfg.MaxTokens}
	if cfg.Temperature != nil {
		opts.Temperature = *cfg.Temperature
	}
	return &einoollama.ChatModelConfig{
		BaseURL: firstNonEmpty(cfg.BaseURL, defaultOllamaBaseURL),
		Model:   firstNonEmpty(cfg.Model, defaultOllamaModel),
		Timeout: timeout,
		Options: opts,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &ollamaTransport{inner: http.DefaultTransport, provider: "ollama"},
		},
	}
}

// ollamaTransport turns answers that cannot be Ollama's into
// ErrModelUnavailable: error statuses, and non-JSON bodies such as the
// "no available server" page of a reverse proxy.
type ollamaTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *ollamaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}
	// application/json, or application/x-ndjson when streaming.
	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode < 400 && (ct == "" || strings.Contains(ct, "json")) {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &ErrModelUnavailable{Provider: t.provider, Body: strings.TrimSpace(string(body))}
}
