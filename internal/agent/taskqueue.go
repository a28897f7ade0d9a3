package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/tasks"
)

const (
	bootstrapTaskName        = "Analyze objective and create initial tasks"
	bootstrapTaskDescription = "Analyze the objective: %s and break it down into initial tasks"
)

// runTaskQueue pops, executes, creates and prioritizes until the queue is
// empty or MaxIterations tasks are completed.
func (s *Session) runTaskQueue(ctx context.Context, objective string, out *Outcome) error {
	c := s.deps.Collaborators
	exec := TaskExecutor{Model: c.Execute, ContextResults: s.cfg.ContextResults}
	if q, ok := s.deps.Memory.(memory.Querier); ok {
		exec.Memory = q
	}
	creator := TaskCreator{Model: c.Create, Objective: objective}
	prioritizer := TaskPrioritizer{Model: c.Prioritize}

	defer func() {
		for _, r := range s.store.Completed() {
			out.CompletedTasks = append(out.CompletedTasks, r.Task.Name)
			out.Results = append(out.Results, StepResult{TaskID: r.Task.ID, Task: r.Task.Name, Result: r.Result})
		}
		out.RemainingTasks = s.store.PendingNames()
	}()

	s.enqueue(bootstrapTaskName, fmt.Sprintf(bootstrapTaskDescription, objective))

	for s.store.Len() > 0 && s.store.CompletedCount() < s.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, _ := s.store.PopNext()
		out.Iterations++
		if err := s.taskStep(ctx, objective, task, exec, creator, prioritizer); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) taskStep(ctx context.Context, objective string, task tasks.Task, exec TaskExecutor, creator TaskCreator, prioritizer TaskPrioritizer) error {
	ctx, span := tracer.Start(ctx, "agent.task", trace.WithAttributes(
		attribute.Int("task.id", task.ID),
		attribute.String("task.name", task.Name),
	))
	defer span.End()

	s.emit(events.TaskStarted(task.ID, task.Name))
	result, err := exec.Run(ctx, objective, task)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.store.MarkCompleted(task, result); err != nil {
		return err
	}
	s.emit(events.TaskCompleted(task.ID, task.Name, clip(result, 1024)))
	slog.Debug("task completed", "session", s.id, "task_id", task.ID, "task", task.Name)

	s.remember(ctx, result, map[string]string{
		memory.MetaTask:      task.Name,
		memory.MetaTaskID:    strconv.Itoa(task.ID),
		memory.MetaObjective: objective,
		memory.MetaSession:   s.id,
	})

	names, err := creator.Propose(ctx, result, task.Description, s.store.PendingNames(), s.store.CompletedNames())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("task creation failed, no new tasks", "session", s.id, "error", err)
	}
	for _, name := range names {
		s.enqueue(name, name)
	}

	if s.store.Len() == 0 {
		return nil
	}
	ranking, err := prioritizer.Prioritize(ctx, objective, s.store.PendingNames())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("prioritization failed, keeping queue order", "session", s.id, "error", err)
		return nil
	}
	if len(ranking) > 0 {
		s.store.Reorder(ranking)
		s.emit(events.TasksReorderedPayload{Order: s.store.PendingNames()})
	}
	return nil
}

func (s *Session) enqueue(name, description string) {
	t := s.store.Enqueue(name, description)
	s.emit(events.TaskCreated(t.ID, t.Name))
}
