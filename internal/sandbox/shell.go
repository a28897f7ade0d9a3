package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dohr-michael/taskpilot/internal/faults"
)

// ShellTimeout bounds every shell invocation.
const ShellTimeout = 5 * time.Second

// allowedCommands is the complete set of commands the shell tool will run.
// pwd and echo are interpreter builtins; ls and cat run as processes.
var allowedCommands = map[string]bool{
	"ls":   true,
	"pwd":  true,
	"echo": true,
	"cat":  true,
}

// pathCommands take file operands that must stay inside the work dir.
var pathCommands = map[string]bool{
	"ls":  true,
	"cat": true,
}

func rejectedCommand(name string) Result {
	return toolFault("Command '%s' is not allowed for security reasons", name)
}

func (s *Sandbox) shell(ctx context.Context, command string) Result {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return parseFault("Error executing command: empty command")
	}
	if !allowedCommands[fields[0]] {
		return rejectedCommand(fields[0])
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return parseFault("Error executing command: %v", err)
	}
	if res, ok := checkScript(file); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, ShellTimeout)
	defer cancel()

	stdout := &limitWriter{max: s.maxRead + 1, stop: cancel}
	stderr := &limitWriter{max: s.maxRead + 1, stop: cancel}
	runner, err := interp.New(
		interp.StdIO(nil, stdout, stderr),
		interp.Dir(s.workDir),
		interp.Env(expand.ListEnviron(
			"PATH="+os.Getenv("PATH"),
			"HOME="+s.workDir,
		)),
		interp.OpenHandler(func(context.Context, string, int, os.FileMode) (io.ReadWriteCloser, error) {
			return nil, errors.New("file redirection is not allowed")
		}),
		interp.ReadDirHandler2(s.readDirGuard),
		interp.StatHandler(s.statGuard),
		interp.ExecHandlers(s.execGuard, killOnCancel),
	)
	if err != nil {
		return toolFault("Error executing command: %v", err)
	}

	err = runner.Run(ctx, file)
	if stdout.full {
		return Result{Output: s.clip(stdout.String())}
	}
	if stderr.full {
		return Result{Output: s.clip(stdout.String()), Error: s.clip(stderr.String()), Fault: faults.Tool}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return toolFault("Error executing command: timed out after %s", ShellTimeout)
	}

	var status interp.ExitStatus
	switch {
	case err == nil:
		return Result{Output: s.clip(stdout.String())}
	case errors.As(err, &status):
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", uint8(status))
		}
		return Result{Output: s.clip(stdout.String()), Error: s.clip(msg), Fault: faults.Tool}
	default:
		return toolFault("Error executing command: %v", err)
	}
}

// checkScript walks the parsed command line and refuses anything beyond plain
// invocations of allowed commands with confined literal operands.
func checkScript(file *syntax.File) (Result, bool) {
	res, ok := Result{}, true
	syntax.Walk(file, func(node syntax.Node) bool {
		if !ok {
			return false
		}
		switch n := node.(type) {
		case *syntax.CallExpr:
			if len(n.Assigns) > 0 {
				res, ok = toolFault("Error executing command: variable assignments are not allowed"), false
				return false
			}
			if len(n.Args) == 0 {
				return true
			}
			name := n.Args[0].Lit()
			if !allowedCommands[name] {
				if name == "" {
					name = "<dynamic>"
				}
				res, ok = rejectedCommand(name), false
				return false
			}
			// Builtins glob in-process, out of execGuard's sight.
			if !pathCommands[name] {
				for _, w := range n.Args[1:] {
					if hasGlob(w) {
						res, ok = toolFault("Error executing command: patterns are only allowed for ls and cat"), false
						return false
					}
				}
			}
			if pathCommands[name] {
				for _, w := range n.Args[1:] {
					arg, err := expand.Literal(nil, w)
					if err != nil {
						res, ok = toolFault("Error executing command: %v", err), false
						return false
					}
					if err := checkOperand(arg); err != nil {
						res, ok = toolFault("Error executing command: %v", err), false
						return false
					}
				}
			}
		case *syntax.Redirect:
			res, ok = toolFault("Error executing command: redirection is not allowed"), false
		case *syntax.CmdSubst, *syntax.ProcSubst:
			res, ok = toolFault("Error executing command: command substitution is not allowed"), false
		case *syntax.ParamExp:
			res, ok = toolFault("Error executing command: parameter expansion is not allowed"), false
		case *syntax.FuncDecl, *syntax.DeclClause, *syntax.CoprocClause:
			res, ok = toolFault("Error executing command: declarations are not allowed"), false
		case *syntax.TestClause, *syntax.ArithmCmd, *syntax.ArithmExp, *syntax.LetClause:
			res, ok = toolFault("Error executing command: tests and arithmetic are not allowed"), false
		case *syntax.WhileClause, *syntax.ForClause:
			res, ok = toolFault("Error executing command: loops are not allowed"), false
		}
		return ok
	})
	return res, ok
}

// hasGlob reports whether w has an unquoted pattern character.
func hasGlob(w *syntax.Word) bool {
	for _, part := range w.Parts {
		if lit, ok := part.(*syntax.Lit); ok && strings.ContainsAny(lit.Value, "*?[") {
			return true
		}
	}
	return false
}

// checkOperand rejects operands that name a location outside the work dir.
func checkOperand(arg string) error {
	if strings.HasPrefix(arg, "-") {
		return nil
	}
	clean := filepath.ToSlash(arg)
	switch {
	case filepath.IsAbs(arg) || strings.HasPrefix(clean, "/"):
		return fmt.Errorf("absolute path %q is outside the working directory", arg)
	case strings.HasPrefix(clean, "~"):
		return fmt.Errorf("path %q is outside the working directory", arg)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return fmt.Errorf("path %q is outside the working directory", arg)
		}
	}
	return nil
}

// execGuard re-checks every process about to start, after globbing, and
// follows symlinks so a link inside the work dir cannot lead out of it.
func (s *Sandbox) execGuard(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		if !allowedCommands[args[0]] {
			fmt.Fprintf(hc.Stderr, "Command '%s' is not allowed for security reasons\n", args[0])
			return interp.ExitStatus(126)
		}
		if pathCommands[args[0]] {
			for _, arg := range args[1:] {
				if err := s.checkResolved(hc.Dir, arg); err != nil {
					fmt.Fprintln(hc.Stderr, err)
					return interp.ExitStatus(1)
				}
			}
		}
		return next(ctx, args)
	}
}

func (s *Sandbox) checkResolved(dir, arg string) error {
	if err := checkOperand(arg); err != nil {
		return err
	}
	if strings.HasPrefix(arg, "-") {
		return nil
	}
	if !s.inside(filepath.Join(dir, arg)) {
		return fmt.Errorf("path %q is outside the working directory", arg)
	}
	return nil
}

// inside reports whether the absolute path, symlinks resolved, lies in the
// work dir. A missing path is judged by its nearest existing parent.
func (s *Sandbox) inside(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		parent := filepath.Dir(path)
		if parent == path {
			return false
		}
		return s.inside(parent)
	}
	rel, err := filepath.Rel(s.realDir, resolved)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// readDirGuard and statGuard confine the interpreter's own file access:
// globbing, test operators and builtins never reach execGuard.
func (s *Sandbox) readDirGuard(_ context.Context, path string) ([]fs.DirEntry, error) {
	if !s.inside(path) {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrPermission}
	}
	return os.ReadDir(path)
}

func (s *Sandbox) statGuard(_ context.Context, path string, followSymlinks bool) (fs.FileInfo, error) {
	if !s.inside(path) {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrPermission}
	}
	if followSymlinks {
		return os.Stat(path)
	}
	return os.Lstat(path)
}

// limitWriter keeps the first max bytes and stops the run once it is full.
type limitWriter struct {
	buf  bytes.Buffer
	max  int64
	full bool
	stop context.CancelFunc
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if room := w.max - int64(w.buf.Len()); int64(len(p)) >= room {
		w.buf.Write(p[:max(room, 0)])
		if !w.full {
			w.full = true
			w.stop()
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *limitWriter) String() string { return w.buf.String() }

// killOnCancel replaces the default exec handler so processes are killed as
// soon as the timeout fires.
func killOnCancel(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return interp.DefaultExecHandler(-1)
}

func (s *Sandbox) clip(out string) string {
	if int64(len(out)) <= s.maxRead {
		return out
	}
	return prefix(out, int(s.maxRead)) + fmt.Sprintf("\n[truncated at %d bytes]", s.maxRead)
}
