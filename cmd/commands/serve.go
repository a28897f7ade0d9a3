package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/gateway"
	"github.com/dohr-michael/taskpilot/internal/heartbeat"
	"github.com/dohr-michael/taskpilot/internal/logging"
	"github.com/dohr-michael/taskpilot/internal/scheduler"
	"github.com/dohr-michael/taskpilot/internal/secrets"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP/WebSocket gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload the config when it changes",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	debug := cmd.Bool("debug")
	reloader.OnReload(func(next *config.Config) {
		if _, err := secrets.Reveal(secrets.KeyPath()); err != nil {
			slog.Warn("failed to decrypt .env values", "error", err)
		}
		if debug {
			return
		}
		if err := logging.SetLevel(next.Log.Level); err != nil {
			slog.Warn("keep log level", "level", next.Log.Level, "error", err)
		}
	})
	if !cmd.Bool("no-watch") {
		go func() {
			if err := reloader.Watch(ctx); err != nil {
				slog.Warn("config watch stopped", "error", err)
			}
		}()
	}

	s, err := newStack(ctx, reloader.Current)
	if err != nil {
		return err
	}
	defer s.Close()

	sched, err := scheduler.New(cfg.Schedules, s.runner, s.bus)
	if err != nil {
		return err
	}
	schedCtx, stopSched := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if sched.Len() == 0 {
			return
		}
		if err := sched.Run(schedCtx); err != nil {
			slog.Warn("scheduler stopped", "error", err)
		}
	}()
	// Scheduled runs publish on the bus, so they finish before it closes.
	defer func() {
		stopSched()
		<-schedDone
	}()

	var archive gateway.Archive
	if s.archive != nil {
		archive = s.archive
	}
	server := gateway.NewServer(s.bus, s.runner, s.memory, archive, cfg.Events.LogDir, cfg.Gateway.Host, cfg.Gateway.Port)
	server.SetSchedules(sched)

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	go func() {
		if err := heartbeat.NewWriter(config.HeartbeatPath(), addr, 0).Run(ctx); err != nil {
			slog.Warn("heartbeat disabled", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
