package models

import (
	"context"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

// Params overrides provider settings for a single session.
type Params struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// IsZero reports whether p overrides nothing.
func (p Params) IsZero() bool {
	return p.Model == "" && p.Temperature == nil && p.MaxTokens == 0
}

// Apply returns cfg with the overrides of p.
func (p Params) Apply(cfg config.ProviderConfig) config.ProviderConfig {
	if p.Model != "" {
		cfg.Model = p.Model
	}
	if p.Temperature != nil {
		t := *p.Temperature
		cfg.Temperature = &t
	}
	if p.MaxTokens > 0 {
		cfg.MaxTokens = p.MaxTokens
	}
	return cfg
}

// ProviderEntry holds a lazily-initialized model instance.
type ProviderEntry struct {
	Config config.ProviderConfig
	model  model.ToolCallingChatModel
	once   sync.Once
	err    error
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	defaultName string
	create      func(context.Context, config.ProviderConfig) (model.ToolCallingChatModel, error)
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{
		providers:   make(map[string]*ProviderEntry),
		defaultName: cfg.Default,
		create:      CreateModel,
	}

	for name, provCfg := range cfg.Providers {
		r.providers[name] = &ProviderEntry{Config: provCfg}
	}

	return r
}

// Get returns the named model, initializing it lazily. An empty name selects
// the default provider.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}

	entry.once.Do(func() {
		entry.model, entry.err = r.create(ctx, entry.Config)
	})

	return entry.model, entry.err
}

// GetWith returns the named model with per-session overrides. Overridden
// models are built fresh and not cached.
func (r *Registry) GetWith(ctx context.Context, name string, p Params) (model.ToolCallingChatModel, error) {
	if p.IsZero() {
		return r.Get(ctx, name)
	}
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return r.create(ctx, p.Apply(entry.Config))
}

// ModelName returns the model identifier the named provider (with
// overrides) will call.
func (r *Registry) ModelName(name string, p Params) string {
	entry, err := r.entry(name)
	if err != nil {
		return ""
	}
	return p.Apply(entry.Config).Model
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) entry(name string) (*ProviderEntry, error) {
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, faults.Errorf(faults.Config, "models", "no default model configured")
	}
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, faults.Errorf(faults.Config, "models", "model provider %q not found", name)
	}
	return entry, nil
}
