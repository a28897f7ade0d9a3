// Package faults classifies the failures an agent run can meet.
//
// Tool and parse faults are recovered where they happen and travel as text;
// collaborator faults abort a run; config faults stop a session from being
// built at all.
package faults

import (
	"errors"
	"fmt"
)

// Kind names a fault class.
type Kind string

const (
	Tool         Kind = "tool"
	Parse        Kind = "parse"
	Collaborator Kind = "collaborator"
	Config       Kind = "config"
)

// Fault is an error tagged with its kind and the operation that raised it.
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Op == "" {
		return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s fault in %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// New wraps err as a fault of the given kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Op: op, Err: err}
}

// Errorf builds a fault from a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Fault{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost fault in err's chain, or "".
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries a fault of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
