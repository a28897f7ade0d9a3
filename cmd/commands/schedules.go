package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/scheduler"
)

// NewSchedulesCommand returns the schedules subcommand.
func NewSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedules",
		Usage: "List the runs the gateway starts on its own",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print schedules as JSON",
			},
		},
		Action: runSchedules,
	}
}

func runSchedules(_ context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	// Validation only: nothing fires without Run.
	sched, err := scheduler.New(cfg.Schedules, nil, nil)
	if err != nil {
		return err
	}
	list := sched.Entries()
	if cmd.Bool("json") {
		return printJSON(os.Stdout, list)
	}
	if len(list) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRIGGER\tENABLED\tNEXT RUN")
	for _, st := range list {
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", st.Name, st.Trigger, st.Enabled, next)
	}
	return w.Flush()
}
