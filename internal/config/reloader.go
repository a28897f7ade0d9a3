package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader provides hot config reload with atomic swap and listener notification.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]
	mu         sync.Mutex // serializes reload
	listeners  []func(*Config)
}

// NewReloader creates a Reloader with the given initial config.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// Current returns the current config (lock-free atomic read).
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers a callback invoked after successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the .env file, reloads the config, and notifies listeners.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	// Re-expands env templates with the refreshed environment.
	cfg, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads whenever the config or .env file changes, until ctx is done.
// The parent directory is watched so editors that replace files are seen.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dirs := map[string]bool{filepath.Dir(r.configPath): true}
	if r.dotenvPath != "" {
		dirs[filepath.Dir(r.dotenvPath)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !r.watches(event.Name) {
				continue
			}
			// Debounce: wait a bit for writes to settle
			time.Sleep(100 * time.Millisecond)
			if err := r.Reload(); err != nil {
				slog.Warn("config reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher", "error", err)
		}
	}
}

func (r *Reloader) watches(name string) bool {
	name = filepath.Clean(name)
	return name == filepath.Clean(r.configPath) || (r.dotenvPath != "" && name == filepath.Clean(r.dotenvPath))
}
