// Package errors provides structured error types for flatcargo.
//
// Every failure of the lock-to-sources conversion is fatal and carries a
// machine-readable code plus, where one exists, the identity of the package
// that caused it. Callers branch on the code, never on message text.
//
// # Error Codes
//
//   - MALFORMED_LOCK: the lock document is not valid TOML or violates the schema
//   - UNSUPPORTED_LOCK_VERSION: the lock schema version is not understood
//   - MISSING_CHECKSUM: a registry package has no integrity data
//   - UNCLASSIFIABLE_ORIGIN: a package origin lacks fields needed to fetch it offline
//
// # Usage
//
//	err := errors.ForPackage(errors.ErrCodeMissingChecksum, "serde 1.0.200", "registry package has no checksum")
//	if errors.Is(err, errors.ErrCodeMissingChecksum) {
//	    // Handle missing checksum
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeMalformedLock, tomlErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Lock conversion errors
	ErrCodeMalformedLock          Code = "MALFORMED_LOCK"
	ErrCodeUnsupportedLockVersion Code = "UNSUPPORTED_LOCK_VERSION"
	ErrCodeMissingChecksum        Code = "MISSING_CHECKSUM"
	ErrCodeUnclassifiableOrigin   Code = "UNCLASSIFIABLE_ORIGIN"

	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidFormat  Code = "INVALID_FORMAT"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Package string // Offending package identity, e.g. "serde 1.0.200" (optional)
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Package != "" {
		msg = e.Package + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
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

// ForPackage creates a new Error attributed to the package identified by pkg.
func ForPackage(code Code, pkg string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Package: pkg,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapPackage creates a new Error attributed to pkg that wraps cause.
func WrapPackage(code Code, pkg string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Package: pkg,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
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
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetPackage returns the package identity attached to err, if any.
func GetPackage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Package
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Package != "" {
			return e.Package + ": " + e.Message
		}
		return e.Message
	}
	return err.Error()
}
