// Package rerr defines the error kinds the CRDT engine raises.
package rerr

import (
	"errors"
	"fmt"
)

// Error codes the engine raises. Each constructor below documents when its
// code is used.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeNameTaken        = "NAME_TAKEN"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeIoError          = "IO_ERROR"
)

// AppError carries a stable code alongside a human-readable message and an
// optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an AppError with no wrapped cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches code and message to an existing error.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing repo/branch/document/operation.
func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

// NameTaken reports a PublishRepo whose name is already bound.
func NameTaken(message string) *AppError {
	return New(CodeNameTaken, message)
}

// InvalidOperation reports an edit that violates the ordering contract, or
// an Edit whose anchors fail to resolve against a corrupt log.
func InvalidOperation(message string) *AppError {
	return New(CodeInvalidOperation, message)
}

// InvalidOperationf is InvalidOperation with fmt.Sprintf-style formatting.
func InvalidOperationf(format string, args ...any) *AppError {
	return New(CodeInvalidOperation, fmt.Sprintf(format, args...))
}

// IoError wraps a transport or key-value store failure.
func IoError(message string, err error) *AppError {
	return Wrap(CodeIoError, message, err)
}

// Code extracts the stable code from err, or CodeIoError's sibling "unknown"
// sentinel if err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// IsNotFound reports whether err (or something it wraps) is a NotFound.
func IsNotFound(err error) bool {
	return Code(err) == CodeNotFound
}

// IsInvalidOperation reports whether err (or something it wraps) is an
// InvalidOperation.
func IsInvalidOperation(err error) bool {
	return Code(err) == CodeInvalidOperation
}
