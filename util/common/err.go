// Package common carries the error taxonomy shared by every Modix
// component and a few small error helpers.
package common

import (
	"errors"
	"fmt"

	"github.com/modix-panel/modix/logger"
)

// Kind classifies an error for the policy and HTTP layers.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindPathTraversal   Kind = "path_traversal"
	KindTimeout         Kind = "timeout"
	KindInfrastructure  Kind = "infrastructure"
	KindInternal        Kind = "internal"
)

// Error is a typed error. Components return it, the streaming edge maps
// the kind to a status code.
type Error struct {
	Knd Kind
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error.
func New(kind Kind, format string, a ...any) error {
	return &Error{Knd: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Knd: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// KindOf extracts the kind from an error chain. Untyped errors are
// programmer errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Knd
	}
	return KindInternal
}

func NewErrorf(format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	return errors.New(msg)
}

func NewError(a ...any) error {
	msg := fmt.Sprintln(a...)
	return errors.New(msg)
}

// Combine merges non-nil errors into one.
func Combine(errs ...error) error {
	var out error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if out == nil {
			out = err
		} else {
			out = fmt.Errorf("%v; %v", out, err)
		}
	}
	return out
}

func Recover(msg string) any {
	panicErr := recover()
	if panicErr != nil {
		if msg != "" {
			logger.Error(msg, "panic:", panicErr)
		}
	}
	return panicErr
}
