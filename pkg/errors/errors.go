// Package errors provides structured error types for wheelhouse.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library and the CLI
//   - Machine-readable error codes mapped to process exit codes
//   - Parse errors that point at the offending substring
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input that failed to parse or validate
//   - *_NOT_FOUND: Resource not found
//   - NETWORK_*: Transient fetch failures
//   - RESOLUTION_*: Outcomes of the dependency resolver
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidManifest, "missing project name")
//	if errors.Is(err, errors.ErrCodeInvalidManifest) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
//
//	// Point at the bad input
//	err := errors.Parse(errors.ErrCodeInvalidVersion, "1.0.x", 4, "unexpected character")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Parse errors
	ErrCodeInvalidVersion     Code = "INVALID_VERSION"
	ErrCodeInvalidSpecifier   Code = "INVALID_SPECIFIER"
	ErrCodeInvalidRequirement Code = "INVALID_REQUIREMENT"
	ErrCodeInvalidMarker      Code = "INVALID_MARKER"

	// Manifest and lock errors
	ErrCodeManifestParse   Code = "MANIFEST_PARSE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeLockParse       Code = "LOCK_PARSE"
	ErrCodeInvalidLock     Code = "INVALID_LOCK"
	ErrCodeStaleLock       Code = "STALE_LOCK"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound            Code = "NOT_FOUND"
	ErrCodePackageNotFound     Code = "PACKAGE_NOT_FOUND"
	ErrCodeFileNotFound        Code = "FILE_NOT_FOUND"
	ErrCodeEnvironmentNotFound Code = "ENVIRONMENT_NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"

	// Resolution outcomes
	ErrCodeResolutionConflict   Code = "RESOLUTION_CONFLICT"
	ErrCodeResolutionTooComplex Code = "RESOLUTION_TOO_COMPLEX"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
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

// ParseError reports input that could not be parsed. Pos is the byte offset
// into Input where parsing stopped.
type ParseError struct {
	Code    Code
	Input   string
	Pos     int
	Message string
}

// Parse creates a ParseError for input at byte offset pos.
func Parse(code Code, input string, pos int, format string, args ...any) *ParseError {
	if pos < 0 {
		pos = 0
	}
	if pos > len(input) {
		pos = len(input)
	}
	return &ParseError{
		Code:    code,
		Input:   input,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s at position %d in %q (near %q)", e.Code, e.Message, e.Pos, e.Input, e.Near())
}

// Near returns the offending substring, starting at Pos.
func (e *ParseError) Near() string {
	rest := e.Input[e.Pos:]
	if len(rest) > 16 {
		rest = rest[:16]
	}
	return rest
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error, *ParseError or any
// error exposing Code() with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case *ParseError:
			if e.Code == code {
				return true
			}
		case interface{ Code() Code }:
			if e.Code() == code {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the chain carries no code.
func GetCode(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case *ParseError:
			return e.Code
		case interface{ Code() Code }:
			return e.Code()
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// As is errors.As from the standard library, re-exported so callers that
// import this package under the name errors need not alias the standard one.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsParse reports whether err is any kind of parse error.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix; parse
// errors include the position and offending substring. Other errors are
// returned as-is.
func UserMessage(err error) string {
	switch e := err.(type) {
	case *Error:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, UserMessage(e.Cause))
		}
		return e.Message
	case *ParseError:
		return fmt.Sprintf("%s (at %d: %q)", e.Message, e.Pos, e.Near())
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s (at %d: %q)", pe.Message, pe.Pos, pe.Near())
	}
	return err.Error()
}
