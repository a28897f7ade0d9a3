package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// version is set at build time with -ldflags "-X ...commands.version=...".
var version = "dev"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "taskpilot",
		Usage:   "Autonomous task agents with a sandboxed tool belt",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewServeCommand(),
			NewMemoryCommand(),
			NewToolsCommand(),
			NewEventsCommand(),
			NewSessionsCommand(),
			NewSchedulesCommand(),
			NewStatusCommand(),
			NewSecretsCommand(),
			NewMCPCommand(),
		},
	}
}
