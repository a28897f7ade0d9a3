package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

type callRecord struct {
	mu    sync.Mutex
	msgs  [][]*schema.Message
	tools []*schema.ToolInfo
}

type fakeChatModel struct {
	rec   *callRecord
	reply *schema.Message
	err   error
}

func newFakeChatModel(reply string) *fakeChatModel {
	return &fakeChatModel{rec: &callRecord{}, reply: schema.AssistantMessage(reply, nil)}
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.rec.mu.Lock()
	f.rec.msgs = append(f.rec.msgs, in)
	f.rec.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.rec.mu.Lock()
	f.rec.tools = tools
	f.rec.mu.Unlock()
	return f, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestResolveAuth(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "custom-api-key-value")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "")

	tests := []struct {
		name string
		cfg  config.ProviderConfig
		want string
		kind faults.Kind
	}{
		{"direct key", config.ProviderConfig{Driver: "openai", Auth: config.AuthConfig{APIKey: "sk-test"}}, "sk-test", ""},
		{"env syntax", config.ProviderConfig{Driver: "openai", Auth: config.AuthConfig{APIKey: "${MY_CUSTOM_KEY}"}}, "custom-api-key-value", ""},
		{"driver default env", config.ProviderConfig{Driver: "anthropic"}, "env-anthropic-key", ""},
		{"claude alias", config.ProviderConfig{Driver: "Claude"}, "env-anthropic-key", ""},
		{"missing key", config.ProviderConfig{Driver: "mistral"}, "", faults.Config},
		{"unknown driver", config.ProviderConfig{Driver: "hal9000"}, "", faults.Config},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAuth(tt.cfg)
			if tt.kind != "" {
				if !faults.Is(err, tt.kind) {
					t.Fatalf("err = %v, want a %s fault", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveAuth: %v", err)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateModelConfigFaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	ctx := context.Background()

	if _, err := CreateModel(ctx, config.ProviderConfig{Driver: "unknown"}); !faults.Is(err, faults.Config) {
		t.Errorf("unknown driver err = %v, want config fault", err)
	}
	if _, err := CreateModel(ctx, config.ProviderConfig{Driver: "openai"}); !faults.Is(err, faults.Config) {
		t.Errorf("missing key err = %v, want config fault", err)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		in     string
		prefix string
	}{
		{"status 401: invalid api key", "authentication failed"},
		{"429 Too Many Requests", "rate limited"},
		{"maximum context length exceeded", "context too long"},
		{"model not found: gpt-9", "model not found"},
		{"dial tcp: connection refused", "connection error"},
		{"something odd", "something odd"},
	}
	for _, tt := range tests {
		got := HandleError(errors.New(tt.in))
		if !strings.HasPrefix(got.Error(), tt.prefix) {
			t.Errorf("HandleError(%q) = %q, want prefix %q", tt.in, got, tt.prefix)
		}
	}
	if HandleError(nil) != nil {
		t.Error("HandleError(nil) should be nil")
	}

	// Typed failures are classified without looking at the text.
	for _, err := range []error{
		&ErrModelUnavailable{Provider: "ollama", Body: "no available server"},
		fmt.Errorf("generate: %w", context.DeadlineExceeded),
	} {
		got := HandleError(err)
		if !strings.HasPrefix(got.Error(), "connection error") || !errors.Is(got, err) {
			t.Errorf("HandleError(%v) = %v", err, got)
		}
	}
}

func TestRegistry(t *testing.T) {
	created := 0
	var lastCfg config.ProviderConfig
	r := NewRegistry(config.ModelsConfig{
		Default: "main",
		Providers: map[string]config.ProviderConfig{
			"main":  {Driver: "openai", Model: "gpt-4o-mini"},
			"local": {Driver: "ollama", Model: "llama3.1"},
		},
	})
	r.create = func(_ context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
		created++
		lastCfg = cfg
		return newFakeChatModel("ok"), nil
	}
	ctx := context.Background()

	first, err := r.Get(ctx, "")
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	second, _ := r.Get(ctx, "main")
	if first != second || created != 1 {
		t.Errorf("default model not cached: created %d", created)
	}

	temp := float32(0.2)
	if _, err := r.GetWith(ctx, "main", Params{Model: "gpt-4o", Temperature: &temp, MaxTokens: 100}); err != nil {
		t.Fatal(err)
	}
	if created != 2 || lastCfg.Model != "gpt-4o" || *lastCfg.Temperature != 0.2 || lastCfg.MaxTokens != 100 {
		t.Errorf("overrides not applied: %+v", lastCfg)
	}
	if got := r.ModelName("main", Params{}); got != "gpt-4o-mini" {
		t.Errorf("ModelName = %q", got)
	}

	if _, err := r.Get(ctx, "missing"); !faults.Is(err, faults.Config) {
		t.Errorf("missing provider err = %v, want config fault", err)
	}
	if got := r.Names(); len(got) != 2 || got[0] != "local" {
		t.Errorf("Names = %v", got)
	}
}

func TestRegistryNoDefault(t *testing.T) {
	r := NewRegistry(config.ModelsConfig{})
	if _, err := r.Get(context.Background(), ""); !faults.Is(err, faults.Config) {
		t.Errorf("err = %v, want config fault", err)
	}
}

func TestChainGenerate(t *testing.T) {
	ctx := context.Background()
	m := newFakeChatModel("use goroutines")
	rec := &recorder{}

	c, err := NewChain(ctx, "execute", m,
		"You help with {topic}. Answer as {{json}}.",
		"Question: {question}",
		WithPublisher(rec, "sess_1"), WithModelName("fake-1"))
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	out, err := c.Generate(ctx, map[string]string{"topic": "go", "question": "how to run things concurrently?"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "use goroutines" {
		t.Errorf("out = %q", out)
	}

	sent := m.rec.msgs[0]
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].Role != schema.System || sent[0].Content != "You help with go. Answer as {json}." {
		t.Errorf("system message = %q", sent[0].Content)
	}
	if sent[1].Content != "Question: how to run things concurrently?" {
		t.Errorf("user message = %q", sent[1].Content)
	}

	if len(rec.events) != 1 || rec.events[0].Type != events.EventLLMCall {
		t.Fatalf("events = %+v, want one llm call", rec.events)
	}
	payload, _ := events.ExtractPayload[events.LLMCallPayload](rec.events[0])
	if payload.Stage != "execute" || payload.Model != "fake-1" || payload.Error != "" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestChainCollaboratorFault(t *testing.T) {
	ctx := context.Background()
	m := newFakeChatModel("")
	m.err = errors.New("429 too many requests")

	c, err := NewChain(ctx, "plan", m, "system", "{goal}")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(ctx, map[string]string{"goal": "x"})
	if !faults.Is(err, faults.Collaborator) {
		t.Fatalf("err = %v, want collaborator fault", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v, want classified message", err)
	}
}

func TestChainGenerateWithTools(t *testing.T) {
	ctx := context.Background()
	m := newFakeChatModel("")
	m.reply = schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: "shell", Arguments: `{"input":"ls"}`},
	}})

	c, err := NewChain(ctx, "act", m, "Tools:\n{tools}", "Do: {action}")
	if err != nil {
		t.Fatal(err)
	}
	tools := []*schema.ToolInfo{{Name: "shell", Desc: "run a command"}}
	msg, err := c.GenerateWithTools(ctx, map[string]string{"tools": "shell", "action": "list files"}, tools)
	if err != nil {
		t.Fatalf("GenerateWithTools: %v", err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "shell" {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}
	if len(m.rec.tools) != 1 {
		t.Errorf("tools bound = %d, want 1", len(m.rec.tools))
	}
	if got := m.rec.msgs[0][1].Content; got != "Do: list files" {
		t.Errorf("user message = %q", got)
	}
}

func TestParamsIsZero(t *testing.T) {
	if !(Params{}).IsZero() {
		t.Error("empty Params should be zero")
	}
	if (Params{MaxTokens: 1}).IsZero() {
		t.Error("Params with max tokens should not be zero")
	}
}
