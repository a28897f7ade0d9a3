package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dohr-michael/taskpilot/internal/events"
)

func TestEventLogger_WriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.Event{
		ID:        "evt-1",
		Type:      events.EventRunStarted,
		Timestamp: time.Now(),
		Source:    events.SourceCLI,
		Payload:   map[string]any{"objective": "write a haiku"},
	})

	// Give the dispatcher time to process.
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dir, "_global.jsonl"))
	if err != nil {
		t.Fatalf("read JSONL: %v", err)
	}

	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "evt-1" {
		t.Errorf("got ID %q, want %q", got.ID, "evt-1")
	}
	if got.Type != events.EventRunStarted {
		t.Errorf("got type %q, want %q", got.Type, events.EventRunStarted)
	}
}

func TestEventLogger_SessionRouting(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceAgent, events.TaskCreated(1, "bootstrap"), "sess_abc123"))
	bus.Publish(events.NewTypedEvent(events.SourceAgent, events.TaskCompleted(1, "bootstrap", "done"), "sess_abc123"))
	bus.Publish(events.NewTypedEvent(events.SourceAgent, events.TaskCreated(1, "other"), "sess_other"))

	time.Sleep(100 * time.Millisecond)

	got, err := ReadSession(dir, "sess_abc123")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != events.EventTaskCreated || got[1].Type != events.EventTaskCompleted {
		t.Errorf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestEventLogger_SkipsLLMCalls(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceAgent, events.LLMCallPayload{Stage: "execute"}, ""))

	time.Sleep(100 * time.Millisecond)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files, got %d", len(entries))
	}
}

func TestEventLogger_DirectoryAutoCreation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewEvent(events.EventSessionCreated, events.SourceGateway, nil))

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(filepath.Join(dir, "_global.jsonl")); err != nil {
		t.Fatalf("directory not auto-created: %v", err)
	}
}

func TestReadSession_Missing(t *testing.T) {
	got, err := ReadSession(t.TempDir(), "never-ran")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestReadSession_RejectsTraversal(t *testing.T) {
	for _, id := range []string{"../etc/passwd", `..\x`, ".hidden", "a/b"} {
		if _, err := ReadSession(t.TempDir(), id); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("ReadSession(%q) error = %v, want ErrInvalidSessionID", id, err)
		}
	}
}
