package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/heartbeat"
)

type statusReport struct {
	Status    heartbeat.Status `json:"status"`
	Beat      *heartbeat.Beat  `json:"heartbeat,omitempty"`
	Reachable bool             `json:"reachable"`
}

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a gateway is running",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the status as JSON"},
		},
		Action: runStatus,
	}
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	status, beat, err := heartbeat.Check(config.HeartbeatPath(), 3*heartbeat.DefaultInterval)
	if err != nil {
		return fmt.Errorf("check heartbeat: %w", err)
	}
	report := statusReport{Status: status, Beat: beat}
	if status == heartbeat.StatusAlive {
		report.Reachable = probeHealth(ctx, beat.Addr)
	}

	if cmd.Bool("json") {
		return printJSON(os.Stdout, report)
	}
	switch status {
	case heartbeat.StatusAlive:
		fmt.Printf("Gateway: ALIVE on %s (PID %d, uptime %s)\n", beat.Addr, beat.PID, beat.Uptime())
		if !report.Reachable {
			fmt.Println("  warning: /api/health did not answer")
		}
	case heartbeat.StatusStale:
		fmt.Printf("Gateway: STALE (PID %d, last heartbeat %s ago)\n",
			beat.PID, time.Since(beat.Timestamp).Truncate(time.Second))
	case heartbeat.StatusDead:
		fmt.Println("Gateway: NOT RUNNING")
	}
	return nil
}

// probeHealth reports whether the gateway at addr answers its health route.
func probeHealth(ctx context.Context, addr string) bool {
	if addr == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
