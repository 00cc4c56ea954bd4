// Package gwerrors provides structured error handling for giftwrap.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind identifies the broad category of a giftwrap failure. Each Kind maps
// to exactly one process exit code (see ExitCode).
type Kind string

// Error kinds, one per spec category.
const (
	KindUsage          Kind = "usage"
	KindConfig         Kind = "config"
	KindContext        Kind = "context"
	KindBuild          Kind = "build"
	KindPrelaunch      Kind = "prelaunch"
	KindIO             Kind = "io"
	KindAgentProtocol  Kind = "agent_protocol"
)

// Well-known codes. These are stable identifiers, independent of the
// human-readable Message, so callers (and tests) can switch on them.
const (
	CodeUnknownFlag      = "UNKNOWN_FLAG"
	CodeBadExtraArgs     = "BAD_EXTRA_ARGS"
	CodeBadEntrypoint    = "BAD_ENTRYPOINT"
	CodeConflictingFlags = "CONFLICTING_FLAGS"
	CodeConflictingUUID  = "CONFLICTING_UUID"

	CodeNotInBuildRoot = "NOT_IN_BUILD_ROOT"
	CodeDuplicateKey   = "DUPLICATE_KEY"
	CodeUnknownKey     = "UNKNOWN_KEY"
	CodeBadShare       = "BAD_SHARE"
	CodeMountConflict  = "MOUNT_CONFLICT"
	CodeInvalidValue   = "INVALID_VALUE"

	CodeBadPattern     = "BAD_PATTERN"
	CodeContextIO      = "CONTEXT_IO"
	CodeEmptyContext   = "EMPTY_CONTEXT"

	CodeBuildFailed     = "BUILD_FAILED"
	CodePrelaunchFailed = "PRELAUNCH_FAILED"

	CodeIOUnclassified = "IO_ERROR"

	CodeVersionMismatch = "VERSION_MISMATCH"
	CodeMalformedSpec   = "MALFORMED_SPEC"
)

// Error is a structured error carrying a Kind, a stable Code, a
// human-readable Message and an optional wrapped Cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error's Kind to the process exit code documented in
// spec.md §6.1.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindUsage:
		return 1
	case KindBuild:
		return 2
	case KindPrelaunch:
		return 3
	case KindConfig:
		return 4
	case KindContext:
		return 5
	case KindIO:
		return 6
	case KindAgentProtocol:
		return 64
	default:
		return 1
	}
}

// New creates a new Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as an Error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As attempts to convert err to an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ExitCodeFor returns the exit code for any error: the Error's own code
// if it is one, or 1 (generic usage/unclassified failure) otherwise.
func ExitCodeFor(err error) int {
	if e, ok := As(err); ok {
		return e.ExitCode()
	}
	return 1
}
