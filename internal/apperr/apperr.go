// Package apperr defines the error kinds surfaced by the job and payment engines.
// Every error returned to a client carries one kind so the client can tell a
// terminal failure from one worth retrying.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindWrongState   Kind = "wrong_state"
	KindUnauthorized Kind = "unauthorized"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error is an error with a kind and a message fit for the client.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Message != "" {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// NotFound reports a referenced record that does not exist.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Forbidden reports a caller without the required role.
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

// WrongState reports an operation that is invalid for the current lifecycle state.
func WrongState(format string, args ...any) *Error { return newf(KindWrongState, format, args...) }

// Unauthorized reports a request without a valid session.
func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

// Upstream wraps a failed or timed out call to the gateway or the chain.
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: "upstream call failed", Err: err}
}

// Internal wraps an unexpected storage or logic failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry the operation as is.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstream, KindInternal:
		return true
	}
	return false
}

// ClientMessage returns the message that is safe to show to the client.
// Internal details stay in the logs.
func ClientMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindInternal {
		return "internal error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
