package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/tasks"
)

const noneListed = "(none)"

// TaskExecutor performs one task of the task-queue variant. It never calls
// tools.
type TaskExecutor struct {
	Model Generator
	// Memory, when set, supplies up to ContextResults earlier results as
	// context for the prompt.
	Memory         memory.Querier
	ContextResults int
}

// Run asks the model to perform task. Model errors are returned as is.
func (e TaskExecutor) Run(ctx context.Context, objective string, task tasks.Task) (string, error) {
	return e.Model.Generate(ctx, map[string]string{
		"objective": objective,
		"task":      task.Description,
		"context":   e.context(ctx, task.Description),
	})
}

func (e TaskExecutor) context(ctx context.Context, query string) string {
	if e.Memory == nil || e.ContextResults <= 0 {
		return noneListed
	}
	hits, err := e.Memory.Query(ctx, query, e.ContextResults)
	if err != nil {
		slog.Warn("memory query failed", "error", err)
		return noneListed
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return bulletList(texts)
}

// TaskCreator proposes follow-up tasks from the last result.
type TaskCreator struct {
	Model     Generator
	Objective string
}

// Propose returns the new task names the model suggests, one per output
// line. Blank and list-marker-only lines are dropped.
func (c TaskCreator) Propose(ctx context.Context, lastResult, lastTaskDescription string, pending, completed []string) ([]string, error) {
	out, err := c.Model.Generate(ctx, map[string]string{
		"objective":        c.Objective,
		"result":           lastResult,
		"task_description": lastTaskDescription,
		"incomplete_tasks": bulletList(pending),
		"completed_tasks":  bulletList(completed),
	})
	if err != nil {
		return nil, err
	}
	return tasks.ParseLines(out), nil
}

// TaskPrioritizer ranks the pending queue.
type TaskPrioritizer struct {
	Model Generator
}

// Prioritize returns the model's ranking of pending, which may be partial or
// mention names that are not queued.
func (p TaskPrioritizer) Prioritize(ctx context.Context, objective string, pending []string) ([]string, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	out, err := p.Model.Generate(ctx, map[string]string{
		"objective":  objective,
		"task_names": numberedList(pending),
	})
	if err != nil {
		return nil, err
	}
	return tasks.ParseLines(out), nil
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

func numberedList(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it)
	}
	return b.String()
}
