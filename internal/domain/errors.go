package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a control-plane failure for API mapping.
type ErrorKind string

const (
	ErrConflict     ErrorKind = "conflict"
	ErrNotFound     ErrorKind = "not_found"
	ErrInvalidState ErrorKind = "invalid_state"
	ErrLaunch       ErrorKind = "launch_error"
	ErrValidation   ErrorKind = "validation_error"
)

// Error is a typed control-plane failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a typed error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind, or "" if err carries no kind.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
