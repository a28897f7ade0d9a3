// Package logging builds the process-wide slog logger from config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// Level is shared by every handler so --debug and reloads apply at once.
var Level = new(slog.LevelVar)

// Setup builds a logger that fans out to stderr, an optional JSON file and an
// optional systemd journal, installs it as the default and returns a closer
// for the log file.
func Setup(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, func() error, error) {
	if err := SetLevel(cfg.Level); err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: Level}
	var handlers []slog.Handler
	if cfg.Format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(stderr, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, opts))
	}

	closer := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f.Close
	}

	if cfg.Journal {
		jh, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: Level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			slog.New(handlers[0]).Warn("journal handler unavailable", "error", err)
		} else {
			handlers = append(handlers, jh)
		}
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	slog.SetDefault(logger)
	return logger, closer, nil
}

// SetLevel parses a level name ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	if name == "" {
		Level.Set(slog.LevelInfo)
		return nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	Level.Set(l)
	return nil
}

// Journal field names must be upper case ASCII letters, digits and underscores.
func toJournalKey(str string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(str))
}
