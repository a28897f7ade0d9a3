package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/sessions"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Browse the archive of finished runs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List archived sessions, most recent first",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show the report of a session",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the report as JSON",
					},
				},
				Action: runSessionsShow,
			},
			{
				Name:      "delete",
				Usage:     "Remove a session from the archive",
				ArgsUsage: "<session-id>",
				Action:    runSessionsDelete,
			},
		},
		DefaultCommand: "list",
	}
}

func openArchive(cmd *cli.Command) (*sessions.Store, func(), error) {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return sessions.NewStore(cfg.Sessions.Dir), closeLog, nil
}

func runSessionsList(_ context.Context, cmd *cli.Command) error {
	store, done, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer done()

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No sessions archived.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVARIANT\tSTATE\tITERATIONS\tFINISHED\tOBJECTIVE")
	for _, r := range list {
		state := r.State
		if r.FaultKind != "" {
			state += " (" + r.FaultKind + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Variant, state, r.Iterations,
			r.FinishedAt.Local().Format(time.DateTime), clipLine(r.Objective, 60))
	}
	return w.Flush()
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskpilot sessions show <session-id>")
	}
	store, done, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer done()

	report, err := store.Get(id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(os.Stdout, report)
	}
	printReport(os.Stdout, report)
	return nil
}

func runSessionsDelete(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskpilot sessions delete <session-id>")
	}
	store, done, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer done()

	if err := store.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Session %s deleted.\n", id)
	return nil
}
