// Package sandbox runs the tools an agent may call (web_search, read_file,
// write_file, shell) confined to a single working directory.
//
// Every misuse of a tool is reported as a Result, never as a Go error, so the
// calling loop can hand it back to the model and keep going.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

const (
	ToolWebSearch = "web_search"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolShell     = "shell"
)

var tracer = otel.Tracer("github.com/dohr-michael/taskpilot/internal/sandbox")

// Invocation is one tool call requested by the model.
type Invocation struct {
	Tool     string `json:"tool"`
	Argument string `json:"argument"`
}

// Result is the outcome of an invocation. Error is empty on success; Fault
// tells tool failures apart from malformed arguments.
type Result struct {
	Output string      `json:"output"`
	Error  string      `json:"error,omitempty"`
	Fault  faults.Kind `json:"fault,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Error == "" }

// Text is what the model gets to see.
func (r Result) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Output
}

func toolFault(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Fault: faults.Tool}
}

func parseFault(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Fault: faults.Parse}
}

type handler func(ctx context.Context, arg string) Result

type registered struct {
	desc    string
	argDesc string
	run     handler
}

// Options configures a Sandbox.
type Options struct {
	WorkDir      string
	DenyPatterns []string // doublestar globs matched against file base names
	MaxReadBytes int64
	Search       tool.InvokableTool // nil leaves web_search unregistered
	Publisher    events.Publisher
	SessionID    string
}

// Sandbox is the fixed tool set of one session.
type Sandbox struct {
	workDir string
	realDir string
	deny    []string
	maxRead int64
	search  tool.InvokableTool
	tools   map[string]registered
	bus     events.Publisher
	session string
}

// capability pairs a tool with the predicate that decides whether it exists.
type capability struct {
	name      string
	available func(*Options) bool
	build     func(*Sandbox) registered
}

var capabilities = []capability{
	{
		name:      ToolWebSearch,
		available: func(o *Options) bool { return o.Search != nil },
		build: func(s *Sandbox) registered {
			return registered{
				desc:    "Search the web for information",
				argDesc: "The search query",
				run:     s.webSearch,
			}
		},
	},
	{
		name:      ToolWriteFile,
		available: func(*Options) bool { return true },
		build: func(s *Sandbox) registered {
			return registered{
				desc:    "Write content to a file in the working directory. Directories in the path are ignored.",
				argDesc: "<filename>:<content>",
				run:     s.writeFile,
			}
		},
	},
	{
		name:      ToolReadFile,
		available: func(*Options) bool { return true },
		build: func(s *Sandbox) registered {
			return registered{
				desc:    "Read a file from the working directory. Directories in the path are ignored.",
				argDesc: "The file name",
				run:     s.readFile,
			}
		},
	},
	{
		name:      ToolShell,
		available: func(*Options) bool { return true },
		build: func(s *Sandbox) registered {
			return registered{
				desc:    "Run a shell command in the working directory. Only ls, pwd, echo and cat are allowed; commands time out after 5 seconds.",
				argDesc: "The command line",
				run:     s.shell,
			}
		},
	},
}

// New builds the tool set. The working directory is created if missing.
func New(opts Options) (*Sandbox, error) {
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("sandbox: work dir is required")
	}
	abs, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create work dir: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve work dir: %w", err)
	}

	maxRead := opts.MaxReadBytes
	if maxRead <= 0 {
		maxRead = 1 << 20
	}

	s := &Sandbox{
		workDir: abs,
		realDir: resolved,
		deny:    opts.DenyPatterns,
		maxRead: maxRead,
		search:  opts.Search,
		tools:   make(map[string]registered),
		bus:     opts.Publisher,
		session: opts.SessionID,
	}
	for _, c := range capabilities {
		if c.available(&opts) {
			s.tools[c.name] = c.build(s)
		}
	}
	slog.Debug("sandbox ready", "work_dir", abs, "tools", s.Names())
	return s, nil
}

// WorkDir returns the absolute confinement directory.
func (s *Sandbox) WorkDir() string { return s.workDir }

// Names returns the registered tool names, sorted.
func (s *Sandbox) Names() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a tool is registered.
func (s *Sandbox) Has(name string) bool {
	_, ok := s.tools[name]
	return ok
}

// Describe renders the tool list for prompts, one tool per line.
func (s *Sandbox) Describe() string {
	var b strings.Builder
	for _, name := range s.Names() {
		t := s.tools[name]
		fmt.Fprintf(&b, "%s(%s): %s\n", name, t.argDesc, t.desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToolInfos describes the registered tools for model tool binding. Every tool
// takes a single string parameter named "input".
func (s *Sandbox) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(s.tools))
	for _, name := range s.Names() {
		t := s.tools[name]
		infos = append(infos, &schema.ToolInfo{
			Name: name,
			Desc: t.desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"input": {
					Type:     schema.String,
					Desc:     t.argDesc,
					Required: true,
				},
			}),
		})
	}
	return infos
}

type toolArguments struct {
	Input *string `json:"input"`
}

// DecodeArguments extracts the "input" string from model-supplied tool call
// arguments.
func DecodeArguments(argumentsInJSON string) (string, error) {
	var args toolArguments
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("parse tool arguments: %w", err)
	}
	if args.Input == nil {
		return "", fmt.Errorf("parse tool arguments: missing \"input\"")
	}
	return *args.Input, nil
}

// Invoke runs one tool call.
func (s *Sandbox) Invoke(ctx context.Context, inv Invocation) Result {
	ctx, span := tracer.Start(ctx, "sandbox."+inv.Tool)
	defer span.End()

	var res Result
	if t, ok := s.tools[inv.Tool]; ok {
		res = t.run(ctx, inv.Argument)
	} else {
		res = toolFault("Unknown tool %q; available tools: %s", inv.Tool, strings.Join(s.Names(), ", "))
	}

	span.SetAttributes(
		attribute.String("tool.name", inv.Tool),
		attribute.Bool("tool.ok", res.OK()),
	)
	if !res.OK() {
		span.SetAttributes(attribute.String("tool.fault", string(res.Fault)))
	}
	slog.Debug("tool invoked", "tool", inv.Tool, "ok", res.OK(), "fault", res.Fault)
	s.publish(inv, res)
	return res
}

func (s *Sandbox) publish(inv Invocation, res Result) {
	if s.bus == nil {
		return
	}
	p := events.ToolCallPayload{
		Status:   events.ToolStatusCompleted,
		Name:     inv.Tool,
		Argument: truncate(inv.Argument, 512),
		Output:   truncate(res.Output, 512),
		Error:    res.Error,
	}
	if !res.OK() {
		p.Status = events.ToolStatusRejected
	}
	s.bus.Publish(events.NewTypedEvent(events.SourceSandbox, p, s.session))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return prefix(s, n) + "..."
}

// prefix returns at most n bytes of s without splitting a UTF-8 sequence.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
