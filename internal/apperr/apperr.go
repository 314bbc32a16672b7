// Package apperr defines the error taxonomy of the run lifecycle engine
// (spec §7). Every error a component surfaces past its own boundary
// should carry one of these kinds so callers — the HTTP edge in
// particular — can map it to the right treatment without string-matching
// error text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Validation covers malformed requests, unknown enum values, invalid
	// SemVer or cron expressions. Nothing is persisted.
	Validation Kind = "validation"
	// Authorization covers missing/invalid tokens and insufficient
	// permission. Audited by the identity collaborator, not here.
	Authorization Kind = "authorization"
	// NotFound covers unknown robot/version/run/worker ids.
	NotFound Kind = "not_found"
	// Conflict covers duplicate (robot,version), concurrent schedule
	// mutation, and re-cancel of a terminal run (idempotent no-op, not an
	// error the caller needs to react to differently).
	Conflict Kind = "conflict"
	// PreconditionFailed covers no active version, missing required env
	// keys, and schedule-window violations.
	PreconditionFailed Kind = "precondition_failed"
	// Transient covers Store/Queue/LogBus unavailability. Callers retry
	// locally with capped backoff before surfacing.
	Transient Kind = "transient"
	// Fatal covers missing cipher keys and schema mismatches. The
	// component refuses to start.
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind. Use errors.As to recover
// it and errors.Is/Unwrap to reach the cause.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "runengine.CreateRun"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or Transient if err does not
// wrap an *Error — an unclassified failure from a dependency is treated
// as retryable rather than silently surfaced as a 200.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}
