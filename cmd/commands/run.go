package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/agent"
	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/runner"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run an agent on an objective (goals for goal_action, one per line or separated by ';')",
		ArgsUsage: "<objective...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "agent",
				Aliases: []string{"a"},
				Usage:   "Agent variant: task_queue (babyagi) or goal_action (autogpt)",
			},
			&cli.IntFlag{
				Name:    "max-iterations",
				Aliases: []string{"n"},
				Usage:   "Maximum number of execution steps",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Model provider name from config",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Override the provider's model",
			},
			&cli.FloatFlag{
				Name:  "temperature",
				Usage: "Sampling temperature",
			},
			&cli.IntFlag{
				Name:  "max-tokens",
				Usage: "Maximum tokens per model call",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the outcome as JSON",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print progress",
			},
		},
		Action: runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	objective := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if objective == "" {
		return fmt.Errorf("usage: taskpilot run <objective>")
	}

	req := runner.Request{
		Variant:   cmd.String("agent"),
		Objective: objective,
		Provider:  cmd.String("provider"),
		SessionID: agent.NewSessionID(),
	}
	req.Model.Model = cmd.String("model")
	req.Model.MaxTokens = cmd.Int("max-tokens")
	if cmd.IsSet("max-iterations") {
		n := cmd.Int("max-iterations")
		req.MaxIterations = &n
	}
	if cmd.IsSet("temperature") {
		t := float32(cmd.Float("temperature"))
		req.Model.Temperature = &t
	}

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

	if !cmd.Bool("quiet") {
		s.bus.Subscribe(progressPrinter(os.Stderr, req.SessionID))
	}

	report, runErr := s.runner.Run(ctx, req)
	if report != nil {
		if cmd.Bool("json") {
			if err := printJSON(os.Stdout, report); err != nil {
				return err
			}
		} else {
			printReport(os.Stdout, report)
		}
	}
	return runErr
}

// progressPrinter writes one line per milestone of the given session.
func progressPrinter(w io.Writer, sessionID string) events.Subscriber {
	return func(e events.Event) {
		if e.SessionID != sessionID {
			return
		}
		switch e.Type {
		case events.EventTaskCreated:
			if p, ok := events.ExtractPayload[events.TaskPayload](e); ok {
				fmt.Fprintf(w, "  + #%d %s\n", p.TaskID, p.Name)
			}
		case events.EventTaskStarted:
			if p, ok := events.ExtractPayload[events.TaskPayload](e); ok {
				fmt.Fprintf(w, "> #%d %s\n", p.TaskID, p.Name)
			}
		case events.EventToolCall:
			if p, ok := events.ExtractPayload[events.ToolCallPayload](e); ok {
				fmt.Fprintf(w, "  [%s] %s %s\n", p.Name, p.Status, clipLine(p.Argument, 80))
			}
		case events.EventRunAborted:
			if p, ok := events.ExtractPayload[events.RunFinishedPayload](e); ok {
				fmt.Fprintf(w, "! aborted after %d iterations: %s\n", p.Iterations, p.Error)
			}
		}
	}
}

func printReport(w io.Writer, r *runner.Report) {
	fmt.Fprintf(w, "Session:    %s\n", r.SessionID)
	fmt.Fprintf(w, "Variant:    %s\n", r.Variant)
	fmt.Fprintf(w, "State:      %s\n", r.State)
	fmt.Fprintf(w, "Iterations: %d\n", r.Iterations)

	for _, step := range r.Results {
		fmt.Fprintf(w, "\n## %s\n%s\n", step.Task, strings.TrimSpace(step.Result))
	}
	if len(r.Reflections) > 0 {
		fmt.Fprintln(w, "\nReflections:")
		for i, ref := range r.Reflections {
			fmt.Fprintf(w, "  %d. %s\n", i+1, clipLine(ref, 200))
		}
	}
	if len(r.RemainingTasks) > 0 {
		fmt.Fprintln(w, "\nRemaining tasks:")
		for _, t := range r.RemainingTasks {
			fmt.Fprintf(w, "  - %s\n", t)
		}
	}
	if r.Error != nil {
		fmt.Fprintf(w, "\nError (%s): %s\n", r.Error.Kind, r.Error.Message)
	}
	if r.CleanupError != "" {
		fmt.Fprintf(w, "Cleanup: %s\n", r.CleanupError)
	}
}

func clipLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
