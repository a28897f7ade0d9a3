// Package heartbeat lets other processes tell whether a gateway is serving.
// A running gateway rewrites a small JSON file at a fixed interval; readers
// judge liveness by the age of the last beat.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultInterval is how often a Writer beats when none is given.
const DefaultInterval = 30 * time.Second

// Status is the liveness of a gateway as seen from its heartbeat file.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Beat is the content of the heartbeat file.
type Beat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Uptime is the time between start and the last beat.
func (b Beat) Uptime() time.Duration {
	return b.Timestamp.Sub(b.StartedAt).Truncate(time.Second)
}

// Writer beats for one gateway.
type Writer struct {
	path     string
	addr     string
	interval time.Duration
	now      func() time.Time
}

// NewWriter returns a Writer for the gateway listening on addr. A
// non-positive interval selects DefaultInterval.
func NewWriter(path, addr string, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Writer{path: path, addr: addr, interval: interval, now: time.Now}
}

// Run beats until ctx is done, then removes the file. The first beat is
// written before Run waits, and its failure is returned.
func (w *Writer) Run(ctx context.Context) error {
	started := w.now()
	if err := w.write(started); err != nil {
		return err
	}
	defer os.Remove(w.path)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.write(started); err != nil {
				slog.Warn("heartbeat", "path", w.path, "error", err)
			}
		}
	}
}

func (w *Writer) write(started time.Time) error {
	data, err := json.MarshalIndent(Beat{
		PID:       os.Getpid(),
		Addr:      w.addr,
		StartedAt: started,
		Timestamp: w.now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Check reads the heartbeat file at path. A beat older than maxAge is stale;
// a missing file means no gateway.
func Check(path string, maxAge time.Duration) (Status, *Beat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}
	if time.Since(b.Timestamp) > maxAge {
		return StatusStale, &b, nil
	}
	return StatusAlive, &b, nil
}
