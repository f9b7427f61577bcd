// Package orcherr defines the error taxonomy shared by every component of
// the orchestrator core (spec §7).
package orcherr

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of error from the taxonomy in spec §7.
type Kind string

const (
	// BadEnvelope: the job envelope failed validation. Not retriable.
	BadEnvelope Kind = "bad_envelope"
	// DomainNotFound: neither the tenant nor the system tenant has the domain.
	DomainNotFound Kind = "domain_not_found"
	// PlaybookDisabled: the resolved playbook has an empty node set.
	PlaybookDisabled Kind = "playbook_disabled"
	// AgentMissing: an agent id in the playbook could not be resolved.
	AgentMissing Kind = "agent_missing"
	// AgentFailed: a strict agent failed, aborting the job.
	AgentFailed Kind = "agent_failed"
	// ToolBusy: the tool broker rejected the call under quota pressure. Retriable.
	ToolBusy Kind = "tool_busy"
	// ToolUnavailable: the tool broker's circuit breaker is open, or the
	// provider is otherwise unusable. Fatal for the call.
	ToolUnavailable Kind = "tool_unavailable"
	// ParseFailed: the agent ran but its output could not be parsed as JSON.
	ParseFailed Kind = "parse_failed"
	// StoreUnavailable: persistence failed after retries.
	StoreUnavailable Kind = "store_unavailable"
	// Timeout: the job exceeded its deadline.
	Timeout Kind = "timeout"
	// InvalidTransition: a job lifecycle transition was attempted out of order.
	InvalidTransition Kind = "invalid_transition"
)

// Error is the orchestrator's structured error type. It carries a Kind for
// dispatch by callers (errors.As), the component/operation that raised it,
// and an optional wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, component, op, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns "" and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Retriable reports whether an error should be retried by the retry policy
// (spec §4.9: timeout, ToolBusy, transient 5xx are retriable). ToolBusy is
// retriable by Kind; a bare context.DeadlineExceeded from a single tool call
// (as opposed to the job's own deadline) is retriable too. Everything else
// is terminal for the call that produced it.
func Retriable(err error) bool {
	if Is(err, ToolBusy) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
