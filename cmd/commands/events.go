package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/storage"
)

// NewEventsCommand returns the events subcommand.
func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Show the recorded event log of a session",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw events as JSON lines",
			},
		},
		Action: runEvents,
	}
}

func runEvents(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskpilot events <session-id>")
	}

	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	list, err := storage.ReadSession(cfg.Events.LogDir, id)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if len(list) == 0 {
		fmt.Printf("No events recorded for %s.\n", id)
		return nil
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range list {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tSOURCE\tPAYLOAD")
	for _, e := range list {
		payload, _ := json.Marshal(e.Payload)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.TimeOnly), e.Type, e.Source, clipLine(string(payload), 100))
	}
	return w.Flush()
}
