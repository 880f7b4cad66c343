// Package errors provides the error kinds a build can fail with.
//
// Every failure surfaced to a frontend carries a Code so callers can tell a
// bad descriptor from a broken layout or a failed native build without
// matching on message text.
//
//	err := errors.New(errors.ErrCodeLayout, "package directory %q does not exist", dir)
//	if errors.Is(err, errors.ErrCodeLayout) {
//	    // ...
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// ErrCodeInvalidDescriptor: required metadata is missing or malformed.
	ErrCodeInvalidDescriptor Code = "INVALID_DESCRIPTOR"
	// ErrCodeLayout: the package layout cannot be resolved or conflicts.
	ErrCodeLayout Code = "LAYOUT_ERROR"
	// ErrCodePattern: an include or exclude pattern is malformed.
	ErrCodePattern Code = "PATTERN_ERROR"
	// ErrCodeBuildTool: the external native-extension build step failed.
	ErrCodeBuildTool Code = "BUILD_TOOL_ERROR"
	// ErrCodeInvalidConfig: a recognized config setting has a bad value.
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Detail  string // Diagnostic output of an external tool (optional)
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Detail != "" {
		msg += "\n" + e.Detail
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WithDetail attaches tool output to the error and returns it.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
