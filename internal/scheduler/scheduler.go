// Package scheduler starts agent runs on a cron expression, on a fixed
// interval or in reaction to bus events. Schedules come from the
// configuration; the gateway runs the scheduler for as long as it serves.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/taskpilot/internal/agent"
	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/runner"
)

// DefaultCooldown is the minimum interval between two event triggers of the
// same schedule.
const DefaultCooldown = 60 * time.Second

// MinInterval is the shortest accepted interval trigger.
const MinInterval = 5 * time.Second

// Runner starts agent runs. *runner.Runner implements it.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Report, error)
}

// Status is a snapshot of one schedule.
type Status struct {
	Name    string     `json:"name"`
	Trigger string     `json:"trigger"`
	Enabled bool       `json:"enabled"`
	Running bool       `json:"running"`
	Runs    int        `json:"runs"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

type entry struct {
	name     string
	cron     *CronExpr
	interval time.Duration
	onEvent  *config.EventTrigger
	req      runner.Request
	cooldown time.Duration
	maxRuns  int

	enabled     bool
	running     bool
	runs        int
	lastRun     time.Time
	next        time.Time
	lastSession string
}

func (e *entry) trigger() string {
	switch {
	case e.cron != nil:
		return "cron " + e.cron.String()
	case e.interval > 0:
		return "every " + e.interval.String()
	default:
		return "on " + e.onEvent.Event
	}
}

// schedule computes the next time-based activation after t.
func (e *entry) schedule(t time.Time) {
	switch {
	case e.cron != nil:
		e.next = e.cron.Next(t)
	case e.interval > 0:
		e.next = t.Add(e.interval)
	}
}

// Scheduler fires configured runs.
type Scheduler struct {
	runner Runner
	bus    *events.Bus
	tick   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries []*entry
	ctx     context.Context // set while Run is active
	wg      sync.WaitGroup
}

// New validates schedules and builds a Scheduler. bus may be nil, in which
// case event triggers never fire and nothing is published.
func New(schedules []config.ScheduleConfig, r Runner, bus *events.Bus) (*Scheduler, error) {
	s := &Scheduler{
		runner: r,
		bus:    bus,
		tick:   time.Second,
		now:    time.Now,
	}
	seen := make(map[string]bool, len(schedules))
	for i, sc := range schedules {
		e, err := newEntry(sc)
		if err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		if seen[e.name] {
			return nil, fmt.Errorf("schedules[%d]: duplicate name %q", i, e.name)
		}
		seen[e.name] = true
		e.schedule(s.now())
		s.entries = append(s.entries, e)
	}
	return s, nil
}

func newEntry(sc config.ScheduleConfig) (*entry, error) {
	if sc.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if sc.Input == "" {
		return nil, fmt.Errorf("%s: input is required", sc.Name)
	}

	triggers := 0
	for _, set := range []bool{sc.Cron != "", sc.Interval > 0, sc.OnEvent != nil} {
		if set {
			triggers++
		}
	}
	if triggers != 1 {
		return nil, fmt.Errorf("%s: exactly one of cron, interval and on_event is required", sc.Name)
	}

	e := &entry{
		name:     sc.Name,
		interval: sc.Interval.Duration(),
		onEvent:  sc.OnEvent,
		cooldown: sc.Cooldown.Duration(),
		maxRuns:  sc.MaxRuns,
		enabled:  !sc.Disabled,
		req: runner.Request{
			Variant:       sc.AgentType,
			Objective:     sc.Input,
			Provider:      sc.Provider,
			MaxIterations: sc.MaxIterations,
		},
	}
	if sc.Cron != "" {
		expr, err := ParseCron(sc.Cron)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sc.Name, err)
		}
		e.cron = expr
	}
	if sc.Interval > 0 && e.interval < MinInterval {
		return nil, fmt.Errorf("%s: interval must be at least %s", sc.Name, MinInterval)
	}
	if sc.OnEvent != nil && sc.OnEvent.Event == "" {
		return nil, fmt.Errorf("%s: on_event needs an event type", sc.Name)
	}
	if e.cooldown == 0 {
		e.cooldown = DefaultCooldown
	}
	return e, nil
}

// Len returns the number of configured schedules.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Entries returns a snapshot of every schedule in configuration order.
func (s *Scheduler) Entries() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, len(s.entries))
	for i, e := range s.entries {
		st := Status{
			Name:    e.name,
			Trigger: e.trigger(),
			Enabled: e.enabled,
			Running: e.running,
			Runs:    e.runs,
		}
		if !e.lastRun.IsZero() {
			t := e.lastRun
			st.LastRun = &t
		}
		if e.enabled && !e.next.IsZero() {
			t := e.next
			st.NextRun = &t
		}
		out[i] = st
	}
	return out
}

// Run fires schedules until ctx is done, then waits for the runs it started.
// Runs inherit ctx, so they are cancelled with it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.begin(ctx)
	slog.Info("scheduler started", "schedules", len(s.entries))

	var unsubscribe func()
	if s.bus != nil {
		unsubscribe = s.bus.Subscribe(s.handleEvent)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if unsubscribe != nil {
				unsubscribe()
			}
			s.stop()
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.check(s.now())
		}
	}
}

func (s *Scheduler) begin(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	now := s.now()
	for _, e := range s.entries {
		e.schedule(now)
	}
}

// stop refuses new triggers and waits for in-flight runs.
func (s *Scheduler) stop() {
	s.mu.Lock()
	s.ctx = nil
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) check(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if !e.enabled || e.next.IsZero() || now.Before(e.next) {
			continue
		}
		kind := "cron"
		if e.cron == nil {
			kind = "interval"
		}
		s.fire(e, now, kind)
		e.schedule(now)
	}
}

// handleEvent runs on the bus goroutine; it only starts goroutines.
func (s *Scheduler) handleEvent(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, e := range s.entries {
		if !e.enabled || !MatchEvent(ev, e.onEvent) {
			continue
		}
		// A run never triggers its own schedule.
		if ev.SessionID != "" && ev.SessionID == e.lastSession {
			continue
		}
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.cooldown {
			continue
		}
		s.fire(e, now, "event:"+string(ev.Type))
	}
}

// fire starts one run of e. Caller must hold s.mu.
func (s *Scheduler) fire(e *entry, now time.Time, trigger string) {
	ctx := s.ctx
	if ctx == nil {
		return
	}
	if e.running {
		slog.Debug("scheduler: previous run still active, skipped", "schedule", e.name, "trigger", trigger)
		return
	}

	e.running = true
	e.runs++
	e.lastRun = now
	req := e.req
	req.SessionID = agent.NewSessionID()
	e.lastSession = req.SessionID

	if e.maxRuns > 0 && e.runs >= e.maxRuns {
		e.enabled = false
		slog.Info("scheduler: schedule reached max runs, disabled", "schedule", e.name, "runs", e.runs)
	}

	payload := events.ScheduleTriggeredPayload{Schedule: e.name, Trigger: trigger, Run: e.runs}
	slog.Info("scheduler: triggered", "schedule", e.name, "trigger", trigger, "session", req.SessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Published here: the caller may hold s.mu or be a bus subscriber.
		if s.bus != nil {
			s.bus.Publish(events.NewTypedEvent(events.SourceScheduler, payload, req.SessionID))
		}
		report, err := s.runner.Run(ctx, req)
		if err != nil {
			slog.Warn("scheduled run failed", "schedule", e.name, "session", req.SessionID, "error", err)
		} else if report != nil {
			slog.Info("scheduled run finished", "schedule", e.name, "session", req.SessionID, "iterations", report.Iterations)
		}

		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()
}
