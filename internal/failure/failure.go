// Package failure classifies errors that cross component boundaries so a
// mission's error_details always carries a kind alongside its message.
package failure

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindTimeout    Kind = "timeout"
	KindExecution  Kind = "execution"
	KindStorage    Kind = "storage"
	KindPlanning   Kind = "planning"
	KindReporting  Kind = "reporting"
	KindInternal   Kind = "internal"
)

// Error is a classified error. Transient marks execution failures caused by
// I/O that may succeed on a later attempt.
type Error struct {
	Kind      Kind
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transient builds a retryable execution failure.
func Transient(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...), Err: err, Transient: true}
}

// KindOf returns the kind of the first classified error in err's chain.
// Deadline errors count as timeouts even when never wrapped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Retryable reports whether the plan executor may try the call again.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindTimeout || (fe.Kind == KindExecution && fe.Transient)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Details is the persisted shape of a mission-level failure.
type Details struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func DetailsOf(err error) *Details {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return &Details{Kind: KindOf(err), Message: msg}
}
