package collbench

import (
	"fmt"
	"strings"
	"time"
)

// Violation is a single failed constraint on a field of a benchmark
// specification.
type Violation struct {
	Field      string
	Constraint string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Constraint)
}

// ConfigError reports a malformed or out-of-range specification. It is
// always fatal and raised before any side effect.
type ConfigError struct {
	Violations []Violation
}

// NewConfigError returns a ConfigError for a single violation.
func NewConfigError(field, constraintFormat string, args ...interface{}) *ConfigError {
	return &ConfigError{Violations: []Violation{{
		Field:      field,
		Constraint: fmt.Sprintf(constraintFormat, args...),
	}}}
}

func (e *ConfigError) Add(field, constraintFormat string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{
		Field:      field,
		Constraint: fmt.Sprintf(constraintFormat, args...),
	})
}

func (e *ConfigError) AddWhen(cond bool, field, constraintFormat string, args ...interface{}) {
	if cond {
		e.Add(field, constraintFormat, args...)
	}
}

func (e *ConfigError) HasViolations() bool { return len(e.Violations) > 0 }

// Resolve returns nil when there are no violations, so callers can return
// it directly.
func (e *ConfigError) Resolve() error {
	if !e.HasViolations() {
		return nil
	}
	return e
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "invalid benchmark specification: " + strings.Join(parts, "; ")
}

// ResourceError reports a workspace or binary problem.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource '%s': %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// GenerationError reports a failure to produce a test's message data.
type GenerationError struct {
	Generator string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating '%s' distribution: %v", e.Generator, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProcessError reports a dispatched command that could not be spawned or
// exited non-zero. ExitCode is -1 when the process never started or did not
// exit normally.
type ProcessError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("command '%s' did not run to completion: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command '%s' exited with code %d", e.Command, e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// DeadlineExceeded is returned once the global runtime budget is spent.
// Cause is the dispatch failure that coincided with the exhaustion, if any.
type DeadlineExceeded struct {
	Budget     time.Duration
	Elapsed    time.Duration
	Dispatched int
	Cause      error
}

func (e *DeadlineExceeded) Error() string {
	msg := fmt.Sprintf("runtime budget of %s exhausted after %s (%d dispatches)",
		e.Budget, e.Elapsed.Round(time.Millisecond), e.Dispatched)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DeadlineExceeded) Unwrap() error { return e.Cause }
