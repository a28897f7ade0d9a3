package sandbox

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
)

type fakeSearch struct {
	args string
	out  string
	err  error
}

func (f *fakeSearch) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: ToolWebSearch}, nil
}

func (f *fakeSearch) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.args = args
	return f.out, f.err
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

func newTestSandbox(t *testing.T, opts Options) *Sandbox {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresWorkDir(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty work dir")
	}
}

func TestToolRegistration(t *testing.T) {
	without := newTestSandbox(t, Options{})
	want := []string{ToolReadFile, ToolShell, ToolWriteFile}
	if got := without.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if without.Has(ToolWebSearch) {
		t.Error("web_search registered without a search backend")
	}

	with := newTestSandbox(t, Options{Search: &fakeSearch{}})
	if !with.Has(ToolWebSearch) {
		t.Error("web_search missing with a search backend")
	}
	if got := len(with.ToolInfos()); got != 4 {
		t.Errorf("ToolInfos() len = %d, want 4", got)
	}
}

func TestToolInfosTakeInput(t *testing.T) {
	s := newTestSandbox(t, Options{})
	for _, info := range s.ToolInfos() {
		if info.ParamsOneOf == nil {
			t.Errorf("%s: no parameters", info.Name)
		}
		if info.Desc == "" {
			t.Errorf("%s: empty description", info.Name)
		}
	}
}

func TestDescribe(t *testing.T) {
	s := newTestSandbox(t, Options{})
	desc := s.Describe()
	lines := strings.Split(desc, "\n")
	if len(lines) != 3 {
		t.Fatalf("Describe() has %d lines, want 3:\n%s", len(lines), desc)
	}
	if !strings.HasPrefix(lines[0], "read_file(") {
		t.Errorf("first line = %q, want read_file first", lines[0])
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"input":"ls"}`, "ls", false},
		{`{"input":""}`, "", false},
		{`{"query":"x"}`, "", true},
		{`not json`, "", true},
	}
	for _, tt := range tests {
		got, err := DecodeArguments(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("DecodeArguments(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("DecodeArguments(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	s := newTestSandbox(t, Options{})
	res := s.Invoke(context.Background(), Invocation{Tool: "delete_everything", Argument: "/"})
	if res.OK() {
		t.Fatal("unknown tool succeeded")
	}
	if res.Fault != faults.Tool {
		t.Errorf("Fault = %q, want tool", res.Fault)
	}
	if !strings.Contains(res.Error, "read_file, shell, write_file") {
		t.Errorf("Error = %q, want the available tools listed", res.Error)
	}
}

func TestInvokePublishes(t *testing.T) {
	rec := &recorder{}
	s := newTestSandbox(t, Options{Publisher: rec, SessionID: "sess_1"})

	s.Invoke(context.Background(), Invocation{Tool: ToolWriteFile, Argument: "a.txt:hello"})
	s.Invoke(context.Background(), Invocation{Tool: ToolShell, Argument: "rm -rf /"})

	if len(rec.events) != 2 {
		t.Fatalf("published %d events, want 2", len(rec.events))
	}
	for _, e := range rec.events {
		if e.Type != events.EventToolCall || e.SessionID != "sess_1" {
			t.Errorf("event = %s/%s, want tool.call/sess_1", e.Type, e.SessionID)
		}
	}
	first, _ := events.ExtractPayload[events.ToolCallPayload](rec.events[0])
	if first.Status != events.ToolStatusCompleted {
		t.Errorf("first status = %q, want completed", first.Status)
	}
	second, _ := events.ExtractPayload[events.ToolCallPayload](rec.events[1])
	if second.Status != events.ToolStatusRejected {
		t.Errorf("second status = %q, want rejected", second.Status)
	}
}

func TestWebSearch(t *testing.T) {
	search := &fakeSearch{out: "1. Go is a programming language"}
	s := newTestSandbox(t, Options{Search: search})

	res := s.Invoke(context.Background(), Invocation{Tool: ToolWebSearch, Argument: "golang"})
	if !res.OK() {
		t.Fatalf("web_search failed: %s", res.Error)
	}
	if res.Output != search.out {
		t.Errorf("Output = %q, want %q", res.Output, search.out)
	}
	if search.args != `{"query":"golang"}` {
		t.Errorf("backend args = %s", search.args)
	}

	if res := s.Invoke(context.Background(), Invocation{Tool: ToolWebSearch}); res.Fault != faults.Parse {
		t.Errorf("empty query fault = %q, want parse", res.Fault)
	}

	search.err = errors.New("quota exceeded")
	res = s.Invoke(context.Background(), Invocation{Tool: ToolWebSearch, Argument: "golang"})
	if res.Fault != faults.Tool || !strings.Contains(res.Error, "quota exceeded") {
		t.Errorf("backend failure = %+v", res)
	}
}

func TestSearchAvailable(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_CSE_ID", "")
	t.Setenv("BING_API_KEY", "")

	tests := []struct {
		name string
		cfg  config.WebSearchConfig
		env  map[string]string
		want bool
	}{
		{"google without credentials", config.WebSearchConfig{Provider: "google"}, nil, false},
		{"google key only", config.WebSearchConfig{Provider: "google", Auth: config.AuthConfig{APIKey: "k"}}, nil, false},
		{"google from env", config.WebSearchConfig{Provider: "google"}, map[string]string{"GOOGLE_API_KEY": "k", "GOOGLE_CSE_ID": "cx"}, true},
		{"bing from env", config.WebSearchConfig{Provider: "bing"}, map[string]string{"BING_API_KEY": "k"}, true},
		{"duckduckgo disabled", config.WebSearchConfig{Provider: "duckduckgo"}, nil, false},
		{"duckduckgo enabled", config.WebSearchConfig{Provider: "duckduckgo", Enabled: true}, nil, true},
		{"unknown provider", config.WebSearchConfig{Provider: "altavista", Enabled: true}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := SearchAvailable(tt.cfg); got != tt.want {
				t.Errorf("SearchAvailable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSearchToolUnavailable(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_CSE_ID", "")
	st, err := NewSearchTool(context.Background(), config.WebSearchConfig{Provider: "google"})
	if err != nil {
		t.Fatalf("NewSearchTool: %v", err)
	}
	if st != nil {
		t.Error("expected nil tool without credentials")
	}
}

func TestPrefixKeepsRunes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 6, 7} {
		got := prefix("aé日b", n)
		if !utf8.ValidString(got) || len(got) > n {
			t.Errorf("prefix(%d) = %q", n, got)
		}
	}
	if got := truncate("日本語", 4); got != "日..." {
		t.Errorf("truncate = %q", got)
	}
}
