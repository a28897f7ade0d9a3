package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/tasks"
)

var tracer = otel.Tracer("github.com/dohr-michael/taskpilot/internal/agent")

// ErrNotIdle is returned by Execute on a session that already ran. Cleanup
// makes it idle again.
var ErrNotIdle = errors.New("session is not idle")

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Deps are the collaborators a session works with. Tools, Memory and
// Publisher are optional.
type Deps struct {
	Collaborators Collaborators
	Tools         Toolbox
	// Memory receives every step result. It should be scoped to the session:
	// Cleanup clears it.
	Memory    memory.Durable
	Publisher events.Publisher
}

// Session owns one task store and agent state for the lifetime of a request.
type Session struct {
	id   string
	cfg  Config
	deps Deps

	// runMu serialises Execute and Cleanup.
	runMu sync.Mutex

	mu       sync.Mutex
	runState RunState
	state    State
	store    *tasks.Store
	memErrs  []error
}

// NewSession validates cfg against deps. Every problem is a config fault.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := deps.Collaborators.check(cfg.Variant); err != nil {
		return nil, err
	}
	if cfg.SessionID == "" {
		cfg.SessionID = NewSessionID()
	}

	s := &Session{
		id:       cfg.SessionID,
		cfg:      cfg,
		deps:     deps,
		runState: StateIdle,
		store:    tasks.NewStore(),
	}
	var tools []string
	if deps.Tools != nil {
		tools = deps.Tools.Names()
	}
	s.emit(events.SessionPayload{
		Variant:       string(cfg.Variant),
		MaxIterations: cfg.MaxIterations,
		Tools:         tools,
	})
	slog.Debug("session created", "session", s.id, "variant", cfg.Variant, "max_iterations", cfg.MaxIterations, "tools", tools)
	return s, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Config() Config { return s.cfg }

// RunState returns the iteration controller state.
func (s *Session) RunState() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState
}

// AgentState returns a copy of the goal/action state.
func (s *Session) AgentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Goals:          append([]Goal(nil), s.state.Goals...),
		CompletedTasks: append([]string(nil), s.state.CompletedTasks...),
		Reflections:    append([]string(nil), s.state.Reflections...),
	}
	if s.state.CurrentTask != nil {
		current := *s.state.CurrentTask
		st.CurrentTask = &current
	}
	return st
}

// Tasks exposes the session's task store for inspection.
func (s *Session) Tasks() *tasks.Store { return s.store }

// Execute runs objective to completion or abort. An aborted run returns its
// partial outcome together with the error.
func (s *Session) Execute(ctx context.Context, objective string) (*Outcome, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.runState != StateIdle {
		st := s.runState
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s is %s", ErrNotIdle, s.id, st)
	}
	s.runState = StateRunning
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("agent.variant", string(s.cfg.Variant)),
		attribute.Int("agent.max_iterations", s.cfg.MaxIterations),
	))
	defer span.End()

	slog.Info("run started", "session", s.id, "variant", s.cfg.Variant, "max_iterations", s.cfg.MaxIterations)
	s.emit(events.RunStartedPayload{Variant: string(s.cfg.Variant), Objective: objective})

	out := &Outcome{
		SessionID:      s.id,
		Variant:        s.cfg.Variant,
		Objective:      objective,
		CompletedTasks: []string{},
		Results:        []StepResult{},
	}

	var err error
	switch s.cfg.Variant {
	case VariantGoalAction:
		err = s.runGoalAction(ctx, objective, out)
	default:
		err = s.runTaskQueue(ctx, objective, out)
	}

	finished := events.RunFinishedPayload{Iterations: out.Iterations, Remaining: len(out.RemainingTasks)}
	out.State = StateCompleted
	if err != nil {
		out.State = StateAborted
		out.Error = newOutcomeError(err)
		finished.Aborted = true
		finished.FaultKind = out.Error.Kind
		finished.Error = out.Error.Message
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("run aborted", "session", s.id, "iterations", out.Iterations, "kind", out.Error.Kind, "error", err)
	} else {
		slog.Info("run completed", "session", s.id, "iterations", out.Iterations, "remaining", len(out.RemainingTasks))
	}
	span.SetAttributes(attribute.Int("agent.iterations", out.Iterations))

	s.mu.Lock()
	s.runState = out.State
	s.mu.Unlock()
	s.emit(finished)
	return out, err
}

// Cleanup empties the task store and agent state, clears durable memory and
// returns the session to idle. It is safe to call any number of times, before
// or after Execute. Memory errors met during the run are returned here
// together with any error from clearing.
func (s *Session) Cleanup(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.store.Reset()
	s.state = State{}
	s.runState = StateIdle
	errs := s.memErrs
	s.memErrs = nil
	s.mu.Unlock()

	if s.deps.Memory != nil {
		if err := s.deps.Memory.Clear(ctx); err != nil {
			s.emit(events.MemoryFailedPayload{Op: "clear", Error: err.Error()})
			errs = append(errs, fmt.Errorf("clear memory: %w", err))
		}
	}

	err := errors.Join(errs...)
	closed := events.SessionClosedPayload{}
	if err != nil {
		closed.Error = err.Error()
		slog.Warn("session cleanup", "session", s.id, "error", err)
	}
	s.emit(closed)
	return err
}

// remember writes a step result to durable memory. Failures do not stop the
// run; they are reported and handed back by Cleanup.
func (s *Session) remember(ctx context.Context, text string, meta map[string]string) {
	if s.deps.Memory == nil {
		return
	}
	if err := s.deps.Memory.Add(ctx, text, meta); err != nil {
		slog.Warn("memory write failed", "session", s.id, "task", meta[memory.MetaTask], "error", err)
		s.emit(events.MemoryFailedPayload{Op: "add", Error: err.Error()})
		s.mu.Lock()
		s.memErrs = append(s.memErrs, fmt.Errorf("store result of %q: %w", meta[memory.MetaTask], err))
		s.mu.Unlock()
	}
}

func (s *Session) emit(p events.EventPayload) {
	if s.deps.Publisher == nil {
		return
	}
	s.deps.Publisher.Publish(events.NewTypedEvent(events.SourceAgent, p, s.id))
}

// clip cuts text to n bytes on a rune boundary.
func clip(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}
