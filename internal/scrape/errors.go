// internal/scrape/errors.go
package scrape

import (
	"context"
	"errors"
	"fmt"
)

// Common scraping errors
var (
	ErrBrowserNotFound = errors.New("chrome browser not found")
	ErrNotLoggedIn     = errors.New("session is not logged in")
	ErrCheckRunning    = errors.New("a check is already running")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	CodeAuthFailed      ErrorCode = "AUTH_FAILED"
	CodeContentNotFound ErrorCode = "CONTENT_NOT_FOUND"
	CodeTransport       ErrorCode = "TRANSPORT"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeBusy            ErrorCode = "BUSY"
)

// Error wraps scraping failures with a stable code so the orchestrator and the
// realtime channel can classify them without string matching.
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches the target
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Underlying, target)
}

// NewAuthError reports a login navigation, selector or verification failure.
func NewAuthError(message string, err error) *Error {
	return &Error{Code: CodeAuthFailed, Message: message, Underlying: err}
}

// NewContentNotFoundError reports that the expected listings container was
// absent from the page.
func NewContentNotFoundError(message string, err error) *Error {
	return &Error{Code: CodeContentNotFound, Message: message, Underlying: err}
}

// NewTransportError reports a navigation or network-level failure.
func NewTransportError(message string, err error) *Error {
	return &Error{Code: CodeTransport, Message: message, Underlying: err}
}

// CodeOf extracts the error code, defaulting to TRANSPORT for plain errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrCheckRunning):
		return CodeBusy
	case errors.Is(err, ErrNotLoggedIn):
		return CodeAuthFailed
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return CodeTransport
}
