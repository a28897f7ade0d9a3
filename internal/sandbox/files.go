package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var errInvalidName = errors.New("invalid file name")

// confine reduces any path to its final component. Both separators count so
// "..\\..\\x" and "../../x" both become "x".
func confine(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	name := path.Base(p)
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w %q", errInvalidName, p)
	}
	return name, nil
}

func (s *Sandbox) denied(name string) bool {
	for _, pattern := range s.deny {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (s *Sandbox) readFile(_ context.Context, arg string) Result {
	name, err := confine(arg)
	if err != nil {
		return parseFault("Error reading file: %v", err)
	}
	if s.denied(name) {
		return toolFault("Error reading file: access to %q is not allowed", name)
	}

	root, err := os.OpenRoot(s.workDir)
	if err != nil {
		return toolFault("Error reading file: %v", err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return toolFault("Error reading file: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxRead+1))
	if err != nil {
		return toolFault("Error reading file: %v", err)
	}
	if int64(len(data)) > s.maxRead {
		return Result{Output: prefix(string(data), int(s.maxRead)) + fmt.Sprintf("\n[truncated at %d bytes]", s.maxRead)}
	}
	return Result{Output: string(data)}
}

// writeFile takes "<path>:<content>", split on the first colon.
func (s *Sandbox) writeFile(_ context.Context, arg string) Result {
	target, content, ok := strings.Cut(arg, ":")
	if !ok {
		return parseFault("Error writing file: expected <filename>:<content>")
	}
	name, err := confine(target)
	if err != nil {
		return parseFault("Error writing file: %v", err)
	}
	if s.denied(name) {
		return toolFault("Error writing file: access to %q is not allowed", name)
	}

	root, err := os.OpenRoot(s.workDir)
	if err != nil {
		return toolFault("Error writing file: %v", err)
	}
	defer root.Close()

	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return toolFault("Error writing file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return toolFault("Error writing file: %v", err)
	}
	if err := f.Close(); err != nil {
		return toolFault("Error writing file: %v", err)
	}
	return Result{Output: "Successfully wrote to " + name}
}
