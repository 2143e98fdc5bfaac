package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the backend and the core.
type ErrorKind string

// Error kinds. The string values are used on the wire.
const (
	ErrBackendUnreachable     ErrorKind = "backend_unreachable"
	ErrNotARepository         ErrorKind = "not_a_repository"
	ErrAuthenticationFailure  ErrorKind = "authentication_failure"
	ErrRemoteOperationFailure ErrorKind = "remote_operation_failure"
	ErrUnsupportedDiffTarget  ErrorKind = "unsupported_diff_target"
	ErrFileDeleted            ErrorKind = "file_deleted"
	ErrInvalidRequest         ErrorKind = "invalid_request"
	ErrCommandFailed          ErrorKind = "command_failed"
)

// Error is a typed failure carrying an ErrorKind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error around a cause.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
