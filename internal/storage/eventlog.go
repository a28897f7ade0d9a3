package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/taskpilot/internal/events"
)

// ErrInvalidSessionID is returned for session ids that cannot name a log file.
var ErrInvalidSessionID = errors.New("invalid session id")

// EventLogger persists bus events to JSONL files organized by session.
type EventLogger struct {
	dir         string
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and writes them as JSONL to dir, one file per session.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	// Model call timings go to the process log only.
	if e.Type == events.EventLLMCall {
		return
	}
	if err := el.writeEvent(e); err != nil {
		slog.Warn("event log write failed", "session", e.SessionID, "type", e.Type, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path, err := logPath(el.dir, e.SessionID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// ReadSession returns the events recorded for a session, oldest first.
// A session with no log yields an empty slice.
func ReadSession(dir, sessionID string) ([]events.Event, error) {
	path, err := logPath(dir, sessionID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []events.Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

func logPath(dir, sessionID string) (string, error) {
	if sessionID == "" {
		return filepath.Join(dir, "_global.jsonl"), nil
	}
	if strings.ContainsAny(sessionID, `/\`) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(dir, sessionID+".jsonl"), nil
}
