// Package errors provides structured error types for the go-icap library.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeConnection represents TCP connect failures and unexpected peer closes
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeProtocol represents ICAP/HTTP line grammar violations
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeServer represents status codes outside the accepted set for a request
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeIO represents I/O errors
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
)

// Error represents a structured error with context information.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Cause      error     `json:"cause,omitempty"`
	Host       string    `json:"host,omitempty"`
	Port       int       `json:"port,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// NewConnectionError creates a connection error.
func NewConnectionError(host string, port int, cause error) *Error {
	return &Error{
		Type:      ErrorTypeConnection,
		Message:   fmt.Sprintf("connection to %s:%d failed", host, port),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Timestamp: time.Now(),
	}
}

// NewConnectionClosedError creates a connection error for an unexpected peer close.
func NewConnectionClosedError(cause error) *Error {
	return &Error{
		Type:      ErrorTypeConnection,
		Message:   "connection closed by peer",
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewProtocolError creates a protocol error.
func NewProtocolError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeProtocol,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewServerError creates a server error for an unacceptable status code.
func NewServerError(message string, statusCode int) *Error {
	return &Error{
		Type:       ErrorTypeServer,
		Message:    message,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *Error {
	return &Error{
		Type:      ErrorTypeTimeout,
		Message:   fmt.Sprintf("%s timed out after %v", operation, timeout),
		Timestamp: time.Now(),
	}
}

// NewIOError creates an I/O error.
func NewIOError(operation string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeIO,
		Message:   fmt.Sprintf("I/O error during %s", operation),
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{
		Type:      ErrorTypeValidation,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsConnectionError reports whether err is or wraps a connection error.
func IsConnectionError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeConnection
	}
	return false
}

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeProtocol
	}
	return false
}

// IsServerError reports whether err is or wraps a server error.
func IsServerError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeServer
	}
	return false
}

// IsValidationError reports whether err is or wraps a validation error.
func IsValidationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeValidation
	}
	return false
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeTimeout
	}
	// Also check for net timeout errors
	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	// Check for context deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ""
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
