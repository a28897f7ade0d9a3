// Package agent drives autonomous runs: an objective goes in, the model
// decomposes it into tasks or actions, and a bounded loop executes them.
//
// Two strategies share one Session contract. The task-queue variant pops,
// executes, creates and reprioritizes tasks until the queue drains; the
// goal/action variant plans, acts through the tool sandbox and reflects once
// per goal. Both stop at the iteration cap.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/models"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// DefaultMaxIterations applies when Config.MaxIterations is zero.
const DefaultMaxIterations = 5

// Variant selects the strategy of a session.
type Variant string

const (
	VariantTaskQueue  Variant = "task_queue"
	VariantGoalAction Variant = "goal_action"
)

// ParseVariant accepts the canonical names and the historical aliases
// "babyagi" and "autogpt".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task_queue", "babyagi":
		return VariantTaskQueue, nil
	case "goal_action", "autogpt":
		return VariantGoalAction, nil
	default:
		return "", faults.Errorf(faults.Config, "session", "unknown agent variant %q", s)
	}
}

// RunState is the iteration controller state.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateAborted   RunState = "aborted"
)

// Config is everything a session needs to know about its run.
type Config struct {
	Variant Variant
	// MaxIterations caps execution steps. Zero selects DefaultMaxIterations;
	// negative values are rejected.
	MaxIterations int
	// ContextResults is how many prior results are fetched from memory as
	// execution context. Zero disables retrieval.
	ContextResults int
	Model          models.Params
	// SessionID names the session; one is generated when empty.
	SessionID string
}

func (c Config) withDefaults() (Config, error) {
	if c.MaxIterations < 0 {
		return c, faults.Errorf(faults.Config, "session", "max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ContextResults < 0 {
		c.ContextResults = 0
	}
	if c.Variant == "" {
		c.Variant = VariantTaskQueue
	}
	v, err := ParseVariant(string(c.Variant))
	if err != nil {
		return c, err
	}
	c.Variant = v
	return c, nil
}

// Generator is the model collaborator: prompt fields in, text out.
type Generator interface {
	Generate(ctx context.Context, fields map[string]string) (string, error)
}

// ToolCaller calls the model with tools on offer.
type ToolCaller interface {
	GenerateWithTools(ctx context.Context, fields map[string]string, tools []*schema.ToolInfo) (*schema.Message, error)
}

// Toolbox is the tool sandbox as seen by the goal/action strategy.
type Toolbox interface {
	Names() []string
	Describe() string
	ToolInfos() []*schema.ToolInfo
	Invoke(ctx context.Context, inv sandbox.Invocation) sandbox.Result
}

// Collaborators holds one model collaborator per stage. Only the stages of the
// selected variant need to be set.
type Collaborators struct {
	// task-queue
	Execute    Generator
	Create     Generator
	Prioritize Generator

	// goal/action
	Plan    Generator
	Act     ToolCaller
	Reflect Generator
}

func (c Collaborators) check(v Variant) error {
	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	switch v {
	case VariantTaskQueue:
		need("execute", c.Execute != nil)
		need("create", c.Create != nil)
		need("prioritize", c.Prioritize != nil)
	case VariantGoalAction:
		need("plan", c.Plan != nil)
		need("act", c.Act != nil)
		need("reflect", c.Reflect != nil)
	}
	if len(missing) > 0 {
		return faults.Errorf(faults.Config, "session", "missing model for %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewCollaborators builds the model chains of every stage on top of one chat
// model.
func NewCollaborators(ctx context.Context, m model.ToolCallingChatModel, opts ...models.ChainOption) (Collaborators, error) {
	build := func(stage string, p stagePrompt) (*models.Chain, error) {
		c, err := models.NewChain(ctx, stage, m, p.system, p.user, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		return c, nil
	}

	var (
		c   Collaborators
		err error
		act *models.Chain
	)
	if c.Execute, err = chainOrNil(build("execute", executionPrompt)); err != nil {
		return c, err
	}
	if c.Create, err = chainOrNil(build("create", creationPrompt)); err != nil {
		return c, err
	}
	if c.Prioritize, err = chainOrNil(build("prioritize", prioritizationPrompt)); err != nil {
		return c, err
	}
	if c.Plan, err = chainOrNil(build("plan", planningPrompt)); err != nil {
		return c, err
	}
	if act, err = build("act", actionPrompt); err != nil {
		return c, err
	}
	c.Act = act
	if c.Reflect, err = chainOrNil(build("reflect", reflectionPrompt)); err != nil {
		return c, err
	}
	return c, nil
}

// chainOrNil keeps a failed build from leaving a typed nil in a Generator.
func chainOrNil(c *models.Chain, err error) (Generator, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
