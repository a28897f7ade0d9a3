package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// maxToolCalls bounds the tool calls honoured from a single act response.
const maxToolCalls = 8

// runGoalAction plans, acts and reflects once per goal, up to MaxIterations.
func (s *Session) runGoalAction(ctx context.Context, objective string, out *Outcome) error {
	goals := ParseGoals(objective)
	s.mu.Lock()
	s.state = State{Goals: goals, CompletedTasks: []string{}, Reflections: []string{}}
	s.mu.Unlock()
	out.Goals = goals

	defer func() {
		st := s.AgentState()
		out.CompletedTasks = append(out.CompletedTasks, st.CompletedTasks...)
		out.Reflections = st.Reflections
	}()

	previous := ""
	for done := 0; done < len(goals) && done < s.cfg.MaxIterations; done = s.completedActions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Iterations++
		step, err := s.actionStep(ctx, objective, done+1, previous)
		if err != nil {
			return err
		}
		out.Results = append(out.Results, step)
		previous = step.Result
	}
	return nil
}

func (s *Session) completedActions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.CompletedTasks)
}

func (s *Session) actionStep(ctx context.Context, objective string, n int, previous string) (StepResult, error) {
	ctx, span := tracer.Start(ctx, "agent.action", trace.WithAttributes(attribute.Int("action.n", n)))
	defer span.End()

	st := s.AgentState()
	current := noneListed
	if st.CurrentTask != nil {
		current = *st.CurrentTask
	}
	goals := numberedList(st.Goals)

	action, err := s.deps.Collaborators.Plan.Generate(ctx, map[string]string{
		"goals":           goals,
		"completed_tasks": bulletList(st.CompletedTasks),
		"current_task":    current,
	})
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}
	action = strings.TrimSpace(action)
	s.mu.Lock()
	s.state.CurrentTask = &action
	s.mu.Unlock()
	s.emit(events.TaskStarted(n, action))

	result, err := s.act(ctx, action, previous)
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}

	reflection, err := s.deps.Collaborators.Reflect.Generate(ctx, map[string]string{
		"action": action,
		"result": result,
		"goals":  goals,
	})
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}

	s.mu.Lock()
	s.state.CompletedTasks = append(s.state.CompletedTasks, action)
	s.state.Reflections = append(s.state.Reflections, reflection)
	s.mu.Unlock()
	s.emit(events.TaskCompleted(n, action, clip(result, 1024)))
	s.emit(events.ReflectionPayload{Action: action, Reflection: clip(reflection, 1024)})

	s.remember(ctx, result, map[string]string{
		memory.MetaTask:      action,
		memory.MetaTaskID:    strconv.Itoa(n),
		memory.MetaObjective: objective,
		memory.MetaSession:   s.id,
	})
	return StepResult{TaskID: n, Task: action, Result: result}, nil
}

// act lets the model pick tools for action and folds their outputs into one
// result: the model's text, then a "[tool] output" block per call.
func (s *Session) act(ctx context.Context, action, previous string) (string, error) {
	var infos []*schema.ToolInfo
	described := noneListed
	if s.deps.Tools != nil {
		infos = s.deps.Tools.ToolInfos()
		if d := s.deps.Tools.Describe(); d != "" {
			described = d
		}
	}
	if previous == "" {
		previous = noneListed
	}

	msg, err := s.deps.Collaborators.Act.GenerateWithTools(ctx, map[string]string{
		"action":          action,
		"tools":           described,
		"previous_result": previous,
	}, infos)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(msg.Content))
	for i, call := range msg.ToolCalls {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if i == maxToolCalls {
			fmt.Fprintf(&b, "[skipped] %d more tool calls", len(msg.ToolCalls)-i)
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res := s.invoke(ctx, call)
		fmt.Fprintf(&b, "[%s] %s", call.Function.Name, res.Text())
	}
	return b.String(), nil
}

func (s *Session) invoke(ctx context.Context, call schema.ToolCall) sandbox.Result {
	name := call.Function.Name
	arg, err := sandbox.DecodeArguments(call.Function.Arguments)
	if err != nil {
		res := sandbox.Result{Error: err.Error(), Fault: faults.Parse}
		s.emit(events.ToolCallPayload{
			Status:   events.ToolStatusRejected,
			Name:     name,
			Argument: clip(call.Function.Arguments, 512),
			Error:    res.Error,
		})
		return res
	}
	if s.deps.Tools == nil {
		return sandbox.Result{Error: fmt.Sprintf("Unknown tool %q; no tools are available", name), Fault: faults.Tool}
	}
	return s.deps.Tools.Invoke(ctx, sandbox.Invocation{Tool: name, Argument: arg})
}
