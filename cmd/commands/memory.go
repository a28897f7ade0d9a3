package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskpilot/internal/memory"
)

// NewMemoryCommand returns the memory subcommand.
func NewMemoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect or wipe durable memory",
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Search stored results across sessions",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 10,
					},
				},
				Action: runMemoryQuery,
			},
			{
				Name:   "clear",
				Usage:  "Delete every stored result",
				Action: runMemoryClear,
			},
		},
	}
}

func openMemory(ctx context.Context, cmd *cli.Command) (memory.Store, func(), error) {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := memory.Open(ctx, cfg.Memory)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("open memory: %w", err)
	}
	return store, func() {
		store.Close()
		closeLog()
	}, nil
}

func runMemoryQuery(ctx context.Context, cmd *cli.Command) error {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("usage: taskpilot memory query <text>")
	}

	store, done, err := openMemory(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	hits, err := store.Search(ctx, text, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("search memory: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSESSION\tTASK\tTEXT")
	for _, h := range hits {
		task := h.Metadata[memory.MetaTask]
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n", h.Score, h.Collection, clipLine(task, 40), clipLine(h.Text, 80))
	}
	return w.Flush()
}

func runMemoryClear(ctx context.Context, cmd *cli.Command) error {
	store, done, err := openMemory(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	// Only the sqlite store can count across collections.
	counter, ok := store.(interface {
		Count(ctx context.Context, name string) (int, error)
	})
	n := -1
	if ok {
		if n, err = counter.Count(ctx, ""); err != nil {
			return err
		}
	}
	if err := store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	if n >= 0 {
		fmt.Printf("Memory cleared (%d entries).\n", n)
	} else {
		fmt.Println("Memory cleared.")
	}
	return nil
}
