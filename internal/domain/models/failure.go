package models

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind is the error taxonomy for gateway and channel calls.
type FailureKind string

const (
	FailureTimeout      FailureKind = "timeout"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureInvalidInput FailureKind = "invalid_input"
	FailureUpstream     FailureKind = "upstream_error"
	FailureInternal     FailureKind = "internal"
)

// Failure is a typed error carrying its kind and the failing operation.
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Op, f.Kind)
}

// Unwrap returns underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure creates a typed failure.
func NewFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

// Failuref creates a typed failure with a formatted cause.
func Failuref(kind FailureKind, op, format string, a ...interface{}) *Failure {
	return NewFailure(kind, op, fmt.Errorf(format, a...))
}

// KindOf classifies any error. Untyped deadline errors count as timeouts.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureInternal
}

// IsTransient reports whether retrying err in a later attempt may succeed.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case FailureTimeout, FailureRateLimited, FailureUpstream:
		return true
	default:
		return false
	}
}
