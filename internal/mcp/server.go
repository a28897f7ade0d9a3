// Package mcp exposes the tool sandbox, and optionally whole agent runs, to
// MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/taskpilot/internal/runner"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// ToolRunAgent is the MCP tool that runs an agent to completion.
const ToolRunAgent = "run_agent"

// Toolbox is the sandbox surface served over MCP.
type Toolbox interface {
	ToolInfos() []*schema.ToolInfo
	Invoke(ctx context.Context, inv sandbox.Invocation) sandbox.Result
}

// Runner runs an agent. A nil Runner leaves run_agent unregistered.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Report, error)
}

// NewServer builds an MCP server with one tool per sandbox tool plus
// run_agent when r is set.
func NewServer(tools Toolbox, r Runner, version string) (*mcpsdk.Server, error) {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "taskpilot",
		Version: version,
	}, nil)

	for _, info := range tools.ToolInfos() {
		t, err := toMCPTool(info)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", info.Name, err)
		}
		server.AddTool(t, sandboxHandler(tools, info.Name))
		slog.Debug("mcp tool registered", "tool", info.Name)
	}
	if r != nil {
		server.AddTool(runAgentTool(), runAgentHandler(r))
	}
	return server, nil
}

func sandboxHandler(tools Toolbox, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		arg, err := sandbox.DecodeArguments(string(req.Params.Arguments))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		res := tools.Invoke(ctx, sandbox.Invocation{Tool: name, Argument: arg})
		if !res.OK() {
			slog.Debug("mcp tool error", "tool", name, "error", res.Error)
			return errorResult(res.Error), nil
		}
		return textResult(res.Output), nil
	}
}

func runAgentHandler(r Runner) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var params runner.Params
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}
		report, runErr := r.Run(ctx, params.Request())
		if report == nil {
			return errorResult(runErr.Error()), nil
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, err
		}
		res := textResult(string(data))
		res.IsError = runErr != nil
		return res, nil
	}
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(text string) *mcpsdk.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}
