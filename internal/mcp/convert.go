package mcp

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toMCPTool converts a model tool description into an MCP tool. The input
// schema is carried as a plain JSON object.
func toMCPTool(info *schema.ToolInfo) (*mcpsdk.Tool, error) {
	inputSchema := map[string]any{"type": "object", "properties": map[string]any{}}
	if info.ParamsOneOf != nil {
		js, err := info.ParamsOneOf.ToJSONSchema()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(js)
		if err != nil {
			return nil, err
		}
		inputSchema = map[string]any{}
		if err := json.Unmarshal(data, &inputSchema); err != nil {
			return nil, err
		}
		if _, ok := inputSchema["type"]; !ok {
			inputSchema["type"] = "object"
		}
	}
	return &mcpsdk.Tool{
		Name:        info.Name,
		Description: info.Desc,
		InputSchema: inputSchema,
	}, nil
}

func runAgentTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        ToolRunAgent,
		Description: "Run an autonomous agent on an objective and return its report. task_queue decomposes the objective into tasks; goal_action works through goals separated by newlines or ';' using the sandbox tools.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{
					"type":        "string",
					"description": "The objective, or the goals for goal_action",
				},
				"agent_type": map[string]any{
					"type":        "string",
					"description": "Agent variant",
					"enum":        []string{"task_queue", "goal_action", "babyagi", "autogpt"},
				},
				"config": map[string]any{
					"type":        "object",
					"description": "Run overrides: max_iterations, provider, model, temperature, max_tokens",
				},
			},
			"required": []string{"input"},
		},
	}
}
