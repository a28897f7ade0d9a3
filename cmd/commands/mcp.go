package commands

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/mcp"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// NewMCPCommand returns the mcp subcommand.
func NewMCPCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the sandbox tools and run_agent over MCP (stdio)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tools-only",
				Usage: "Do not expose run_agent",
			},
		},
		Action: runMCP,
	}
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	// Logs go to stderr; stdout carries the protocol.
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	s, err := newStack(ctx, func() *config.Config { return cfg })
	if err != nil {
		return err
	}
	defer s.Close()

	sb, err := sandbox.New(sandbox.Options{
		WorkDir:      cfg.Sandbox.WorkDir,
		DenyPatterns: cfg.Sandbox.DenyPatterns,
		MaxReadBytes: cfg.Sandbox.MaxReadBytes,
		Search:       s.search,
		Publisher:    s.bus,
	})
	if err != nil {
		return err
	}

	var r mcp.Runner
	if !cmd.Bool("tools-only") {
		r = s.runner
	}
	server, err := mcp.NewServer(sb, r, version)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
