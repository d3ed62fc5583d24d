package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTarget      = errString("invalid target")
	ErrExecution          = errString("scan execution failed")
	ErrParse              = errString("scan output unreadable")
	ErrAdvisoryLookup     = errString("advisory lookup failed")
	ErrPersistence        = errString("persistence failure")
	ErrBrokerConnectivity = errString("broker unavailable")
	ErrNotFound           = errString("not found")
	ErrInvalidTransition  = errString("invalid job status transition")
	ErrPublish            = errString("publish failed")
	ErrInvalidOptions     = errString("options must be a JSON object")
)

type errString string

func (e errString) Error() string { return string(e) }

// InvalidTargetError names the rejected target.
func InvalidTargetError(target string) error {
	return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
}

// ExecutionError reports a scan tool run that produced no usable output.
type ExecutionError struct {
	Reason   string
	ExitCode int
	TimedOut bool
	Stderr   string
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(ErrExecution.Error())
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(Truncate(stderr, 512))
	}
	return b.String()
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// ParseError wraps a decoding failure of the scan tool's output.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %v", ErrParse, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Truncate shortens s to at most n bytes plus an ellipsis, cutting on a rune
// boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
