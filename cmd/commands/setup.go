package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/components/tool"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/logging"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/models"
	"github.com/dohr-michael/taskpilot/internal/runner"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
	"github.com/dohr-michael/taskpilot/internal/sessions"
	"github.com/dohr-michael/taskpilot/internal/storage"
)

// loadConfig reads the --config file and installs the logger it describes.
// --debug wins over the configured level.
func loadConfig(cmd *cli.Command) (*config.Config, func(), error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}
	_, closeLog, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "close log: %v\n", err)
		}
	}, nil
}

// stack holds the process-wide collaborators behind a Runner.
type stack struct {
	bus     *events.Bus
	log     *storage.EventLogger
	memory  memory.Store
	archive *sessions.Store // nil when sessions.disabled is set
	search  tool.InvokableTool
	runner  *runner.Runner
}

// newStack wires the event bus, the event log, durable memory, web search,
// the session archive and the model registry. current is consulted at the
// start of every run.
func newStack(ctx context.Context, current func() *config.Config) (*stack, error) {
	cfg := current()

	mem, err := memory.Open(ctx, cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	search, err := sandbox.NewSearchTool(ctx, cfg.WebSearch)
	if err != nil {
		slog.Warn("web_search disabled", "provider", cfg.WebSearch.Provider, "error", err)
		search = nil
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	s := &stack{
		bus:    bus,
		log:    storage.NewEventLogger(cfg.Events.LogDir, bus),
		memory: mem,
		search: search,
	}
	opts := []runner.Option{
		runner.WithMemory(mem),
		runner.WithPublisher(bus),
		runner.WithSearch(search),
	}
	if !cfg.Sessions.Disabled {
		s.archive = sessions.NewStore(cfg.Sessions.Dir)
		opts = append(opts, runner.WithArchive(s.archive))
	}
	s.runner = runner.New(current, models.NewRegistry(cfg.Models), opts...)
	return s, nil
}

// Close drains the bus before detaching the event log so the tail of a run
// is written.
func (s *stack) Close() {
	s.bus.Close()
	s.log.Close()
	if err := s.memory.Close(); err != nil {
		slog.Warn("close memory", "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
