package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// NewToolsCommand returns the tools subcommand.
func NewToolsCommand() *cli.Command {
	return &cli.Command{
		Name:   "tools",
		Usage:  "List the tools a goal_action session can use",
		Action: runTools,
	}
}

func runTools(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	search, err := sandbox.NewSearchTool(ctx, cfg.WebSearch)
	if err != nil {
		return err
	}
	sb, err := sandbox.New(sandbox.Options{
		WorkDir:      cfg.Sandbox.WorkDir,
		DenyPatterns: cfg.Sandbox.DenyPatterns,
		MaxReadBytes: cfg.Sandbox.MaxReadBytes,
		Search:       search,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Working directory: %s\n\n", sb.WorkDir())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, info := range sb.ToolInfos() {
		fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Desc)
	}
	if !sb.Has(sandbox.ToolWebSearch) {
		fmt.Fprintf(w, "%s\t(disabled: configure web_search for %s)\n", sandbox.ToolWebSearch, cfg.WebSearch.Provider)
	}
	return w.Flush()
}
