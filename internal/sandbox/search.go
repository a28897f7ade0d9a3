package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// searchCredentials resolves the credentials of the configured provider,
// falling back to the conventional environment variables.
func searchCredentials(cfg config.WebSearchConfig) (apiKey, engineID string) {
	apiKey, engineID = cfg.Auth.APIKey, cfg.EngineID
	switch cfg.Provider {
	case "google":
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if engineID == "" {
			engineID = os.Getenv("GOOGLE_CSE_ID")
		}
	case "bing":
		if apiKey == "" {
			apiKey = os.Getenv("BING_API_KEY")
		}
	}
	return apiKey, engineID
}

// SearchAvailable reports whether web_search can be offered for cfg.
// DuckDuckGo needs no key, so it has to be enabled explicitly.
func SearchAvailable(cfg config.WebSearchConfig) bool {
	apiKey, engineID := searchCredentials(cfg)
	switch cfg.Provider {
	case "google":
		return apiKey != "" && engineID != ""
	case "bing":
		return apiKey != ""
	case "duckduckgo", "":
		return cfg.Enabled
	default:
		return false
	}
}

// NewSearchTool builds the search backend for cfg. It returns nil, nil when the
// provider's credentials are absent, so web_search is simply not registered.
func NewSearchTool(ctx context.Context, cfg config.WebSearchConfig) (tool.InvokableTool, error) {
	if !SearchAvailable(cfg) {
		return nil, nil
	}
	apiKey, engineID := searchCredentials(cfg)

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var (
		inner tool.InvokableTool
		err   error
	)
	switch cfg.Provider {
	case "google":
		inner, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         apiKey,
			SearchEngineID: engineID,
			Num:            maxResults,
			ToolName:       ToolWebSearch,
			ToolDesc:       "Search the web using Google.",
		})
	case "bing":
		inner, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     apiKey,
			MaxResults: maxResults,
			ToolName:   ToolWebSearch,
			ToolDesc:   "Search the web using Bing.",
			Timeout:    timeout,
		})
	default:
		inner, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   ToolWebSearch,
			ToolDesc:   "Search the web using DuckDuckGo.",
			MaxResults: maxResults,
			Timeout:    timeout,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("web_search: init %s: %w", cfg.Provider, err)
	}
	return inner, nil
}

type searchInput struct {
	Query string `json:"query"`
}

func (s *Sandbox) webSearch(ctx context.Context, query string) Result {
	if query == "" {
		return parseFault("Error searching the web: empty query")
	}
	args, err := json.Marshal(searchInput{Query: query})
	if err != nil {
		return parseFault("Error searching the web: %v", err)
	}
	out, err := s.search.InvokableRun(ctx, string(args))
	if err != nil {
		return toolFault("Error searching the web: %v", err)
	}
	return Result{Output: s.clip(out)}
}
