package models

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

var tracer = otel.Tracer("github.com/dohr-michael/taskpilot/internal/models")

// Chain renders one prompt template and sends it to a chat model. Templates
// use FString placeholders ({objective}); literal braces are doubled.
type Chain struct {
	stage    string
	model    model.ToolCallingChatModel
	template prompt.ChatTemplate
	runnable compose.Runnable[map[string]any, *schema.Message]

	modelName string
	bus       events.Publisher
	session   string
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithPublisher reports every call as an internal.llm.call event.
func WithPublisher(bus events.Publisher, sessionID string) ChainOption {
	return func(c *Chain) {
		c.bus = bus
		c.session = sessionID
	}
}

// WithModelName records the model identifier on events and spans.
func WithModelName(name string) ChainOption {
	return func(c *Chain) { c.modelName = name }
}

// NewChain compiles a system+user prompt in front of m.
func NewChain(ctx context.Context, stage string, m model.ToolCallingChatModel, system, user string, opts ...ChainOption) (*Chain, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	runnable, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(m).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile %s chain: %w", stage, err)
	}

	c := &Chain{
		stage:    stage,
		model:    m,
		template: tpl,
		runnable: runnable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate renders fields into the prompt and returns the model's text.
// Model failures come back as collaborator faults.
func (c *Chain) Generate(ctx context.Context, fields map[string]string) (string, error) {
	var out *schema.Message
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.runnable.Invoke(ctx, toVars(fields))
		return err
	})
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// GenerateWithTools renders fields and calls the model with tools bound. The
// returned message may carry tool calls.
func (c *Chain) GenerateWithTools(ctx context.Context, fields map[string]string, tools []*schema.ToolInfo) (*schema.Message, error) {
	var out *schema.Message
	err := c.observe(ctx, func(ctx context.Context) error {
		msgs, err := c.template.Format(ctx, toVars(fields))
		if err != nil {
			return err
		}
		bound := c.model
		if len(tools) > 0 {
			if bound, err = c.model.WithTools(tools); err != nil {
				return fmt.Errorf("bind tools: %w", err)
			}
		}
		out, err = bound.Generate(ctx, msgs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Chain) observe(ctx context.Context, call func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "llm."+c.stage)
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.modelName))

	start := time.Now()
	err := call(ctx)
	elapsed := time.Since(start)

	payload := events.LLMCallPayload{Stage: c.stage, Model: c.modelName, Duration: elapsed}
	if err != nil {
		err = faults.New(faults.Collaborator, c.stage, HandleError(err))
		payload.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("model call failed", "stage", c.stage, "model", c.modelName, "error", err)
	} else {
		slog.Debug("model call", "stage", c.stage, "model", c.modelName, "duration", elapsed)
	}
	if c.bus != nil {
		c.bus.Publish(events.NewTypedEvent(events.SourceAgent, payload, c.session))
	}
	return err
}

func toVars(fields map[string]string) map[string]any {
	vars := make(map[string]any, len(fields))
	for k, v := range fields {
		vars[k] = v
	}
	return vars
}
