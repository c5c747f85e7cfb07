package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Lineage error code.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"        // 400
	ErrPathNotAllowed        ErrorCode = "PATH_NOT_ALLOWED"       // 403
	ErrNotFound              ErrorCode = "NOT_FOUND"              // 404
	ErrRepositoryUnavailable ErrorCode = "REPOSITORY_UNAVAILABLE" // 422
	ErrUnsupportedEncoding   ErrorCode = "UNSUPPORTED_ENCODING"   // 422
	ErrInvariantViolation    ErrorCode = "INVARIANT_VIOLATION"    // 500
	ErrInternal              ErrorCode = "INTERNAL"               // 500
)

// LineageError represents a structured error with code, status, and details.
type LineageError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LineageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LineageError {
	return &LineageError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewPathNotAllowed creates a 403 error for export targets outside the
// allowed directories.
func NewPathNotAllowed(path, reason string) *LineageError {
	return &LineageError{
		Code:    ErrPathNotAllowed,
		Status:  403,
		Message: fmt.Sprintf("path not allowed: %s (%s)", path, reason),
		Details: map[string]any{"path": path},
	}
}

// NewNotFound creates a 404 error for a missing run or file.
func NewNotFound(kind, identifier string) *LineageError {
	return &LineageError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewRepositoryUnavailable creates a 422 error when a repository cannot be
// opened or read.
func NewRepositoryUnavailable(path string, err error) *LineageError {
	msg := fmt.Sprintf("repository unavailable: %s", path)
	if err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, err)
	}
	return &LineageError{
		Code:    ErrRepositoryUnavailable,
		Status:  422,
		Message: msg,
		Details: map[string]any{"path": path},
	}
}

// NewUnsupportedEncoding creates a 422 error for file content that cannot be
// decoded as text.
func NewUnsupportedEncoding(file string) *LineageError {
	return &LineageError{
		Code:    ErrUnsupportedEncoding,
		Status:  422,
		Message: fmt.Sprintf("unsupported text encoding: %s", file),
		Details: map[string]any{"file": file},
	}
}

// NewInvariantViolation creates a 500 error when attribution of a file could
// not be completed consistently.
func NewInvariantViolation(file string, err error) *LineageError {
	details := map[string]any{"file": file}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &LineageError{
		Code:    ErrInvariantViolation,
		Status:  500,
		Message: fmt.Sprintf("attribution invariant violated for %s", file),
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors. The
// original error is kept in Details for logging, not in Message.
func NewInternal(err error) *LineageError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &LineageError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is, or wraps, a LineageError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LineageError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}

// As returns the LineageError in err's chain, if any.
func As(err error) (*LineageError, bool) {
	var lErr *LineageError
	if stderrors.As(err, &lErr) {
		return lErr, true
	}
	return nil, false
}
