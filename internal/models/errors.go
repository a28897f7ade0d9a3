package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrModelUnavailable reports a backend that answered with something other
// than a model response, or not at all.
type ErrModelUnavailable struct {
	Provider string
	Body     string
	Cause    error
}

func (e *ErrModelUnavailable) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("%s unavailable: %s", e.Provider, e.Body)
	default:
		return e.Provider + " unavailable"
	}
}

func (e *ErrModelUnavailable) Unwrap() error { return e.Cause }

const connectionError = "connection error"

// Provider SDKs report failures as text. The first class with a marker in the
// lowercased message names the failure.
var errorClasses = []struct {
	label   string
	markers []string
}{
	{"authentication failed", []string{"401", "403", "unauthorized", "invalid api key", "api key", "forbidden"}},
	{"rate limited", []string{"429", "rate limit", "quota", "too many requests"}},
	{"context too long", []string{"context length", "too many tokens", "max tokens", "token limit"}},
	{"model not found", []string{"model not found", "404", "not found"}},
	{connectionError, []string{"connection", "eof", "timeout", "dial", "refused", "unavailable"}},
}

// HandleError prefixes a model error with a short label naming its cause.
// The original error stays in the chain.
func HandleError(err error) error {
	if err == nil {
		return nil
	}
	var unavailable *ErrModelUnavailable
	if errors.As(err, &unavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", connectionError, err)
	}

	msg := strings.ToLower(err.Error())
	for _, c := range errorClasses {
		for _, m := range c.markers {
			if strings.Contains(msg, m) {
				return fmt.Errorf("%s: %w", c.label, err)
			}
		}
	}
	return err
}
