package runner

import "github.com/dohr-michael/taskpilot/internal/models"

// Params is the wire form of a run request, as posted to /api/run, sent in a
// websocket "run" frame or passed to the run_agent MCP tool.
type Params struct {
	AgentType string    `json:"agent_type"`
	Input     string    `json:"input"`
	Config    RunConfig `json:"config"`
}

// RunConfig carries the per-run overrides.
type RunConfig struct {
	MaxIterations *int     `json:"max_iterations,omitempty"`
	Provider      string   `json:"provider,omitempty"`
	Model         string   `json:"model,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
}

// Request converts p into a Request.
func (p Params) Request() Request {
	return Request{
		Variant:       p.AgentType,
		Objective:     p.Input,
		Provider:      p.Config.Provider,
		MaxIterations: p.Config.MaxIterations,
		Model: models.Params{
			Model:       p.Config.Model,
			Temperature: p.Config.Temperature,
			MaxTokens:   p.Config.MaxTokens,
		},
	}
}
