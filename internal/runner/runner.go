// Package runner turns a run request into a fully wired agent session,
// executes it and always cleans up afterwards.
package runner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/taskpilot/internal/agent"
	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/models"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
	"github.com/dohr-michael/taskpilot/internal/storage/dirstore"
)

// ModelSource hands out chat models by provider name. *models.Registry
// implements it.
type ModelSource interface {
	GetWith(ctx context.Context, name string, p models.Params) (model.ToolCallingChatModel, error)
	ModelName(name string, p models.Params) string
}

// Request describes one run.
type Request struct {
	// Variant is "task_queue"/"babyagi" or "goal_action"/"autogpt". Empty
	// selects the configured default.
	Variant   string
	Objective string
	// Provider names a configured model provider; empty selects the default.
	Provider string
	// MaxIterations overrides the configured cap when set. Values below 1
	// are rejected.
	MaxIterations *int
	Model         models.Params
	// SessionID is generated when empty.
	SessionID string
}

// Report is the outcome of a run plus anything cleanup had to say.
type Report struct {
	*agent.Outcome
	CleanupError string `json:"cleanup_error,omitempty"`
}

// Runner holds the process-wide collaborators sessions are built from.
type Runner struct {
	config    func() *config.Config
	models    ModelSource
	memory    memory.Store
	publisher events.Publisher
	search    tool.InvokableTool
	archive   Archive
}

// Archive keeps the reports of finished runs.
type Archive interface {
	Save(r *Report) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithMemory records step results in store, one collection per session.
func WithMemory(store memory.Store) Option {
	return func(r *Runner) { r.memory = store }
}

// WithPublisher reports session events on p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithSearch registers web_search backed by t.
func WithSearch(t tool.InvokableTool) Option {
	return func(r *Runner) { r.search = t }
}

// WithArchive saves every report, aborted ones included, to a.
func WithArchive(a Archive) Option {
	return func(r *Runner) { r.archive = a }
}

// New builds a Runner. current is read once per run so reloaded settings
// apply to the next session.
func New(current func() *config.Config, src ModelSource, opts ...Option) *Runner {
	r := &Runner{config: current, models: src}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req in a fresh session. The session is cleaned up whatever
// happens; a cleanup failure is reported in the Report, not as the error. An
// aborted run returns both its partial Report and the error.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	s, err := r.newSession(ctx, req)
	if err != nil {
		return nil, err
	}

	out, runErr := s.Execute(ctx, req.Objective)
	report := &Report{Outcome: out}
	if err := s.Cleanup(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("session cleanup failed", "session", s.ID(), "error", err)
		report.CleanupError = err.Error()
	}
	if out == nil {
		return nil, runErr
	}
	if r.archive != nil {
		if err := r.archive.Save(report); err != nil {
			slog.Warn("archive session", "session", s.ID(), "error", err)
		}
	}
	return report, runErr
}

func (r *Runner) newSession(ctx context.Context, req Request) (*agent.Session, error) {
	cfg := r.config()
	if strings.TrimSpace(req.Objective) == "" {
		return nil, faults.Errorf(faults.Config, "run", "input is required")
	}

	acfg := agent.Config{
		Variant:        agent.Variant(cfg.Agent.Variant),
		MaxIterations:  cfg.Agent.MaxIterations,
		ContextResults: cfg.Agent.ContextResults,
		Model:          req.Model,
		SessionID:      req.SessionID,
	}
	if req.Variant != "" {
		v, err := agent.ParseVariant(req.Variant)
		if err != nil {
			return nil, err
		}
		acfg.Variant = v
	}
	if req.MaxIterations != nil {
		if *req.MaxIterations < 1 {
			return nil, faults.Errorf(faults.Config, "run", "max_iterations must be at least 1, got %d", *req.MaxIterations)
		}
		acfg.MaxIterations = *req.MaxIterations
	}
	if acfg.SessionID == "" {
		acfg.SessionID = agent.NewSessionID()
	}
	// The id names the session's sandbox directory.
	if err := dirstore.CheckID(acfg.SessionID); err != nil {
		return nil, faults.New(faults.Config, "run", err)
	}

	m, err := r.models.GetWith(ctx, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	collab, err := agent.NewCollaborators(ctx, m,
		models.WithPublisher(r.publisher, acfg.SessionID),
		models.WithModelName(r.models.ModelName(req.Provider, req.Model)),
	)
	if err != nil {
		return nil, err
	}

	box, err := sandbox.New(sandbox.Options{
		WorkDir:      cfg.Sandbox.SessionDir(acfg.SessionID),
		DenyPatterns: cfg.Sandbox.DenyPatterns,
		MaxReadBytes: cfg.Sandbox.MaxReadBytes,
		Search:       r.search,
		Publisher:    r.publisher,
		SessionID:    acfg.SessionID,
	})
	if err != nil {
		return nil, faults.New(faults.Config, "sandbox", err)
	}

	deps := agent.Deps{Collaborators: collab, Tools: box, Publisher: r.publisher}
	if r.memory != nil {
		deps.Memory = r.memory.Collection(acfg.SessionID)
	}
	return agent.NewSession(acfg, deps)
}
