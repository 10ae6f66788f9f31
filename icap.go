// Package icap provides a client for the Internet Content Adaptation
// Protocol (RFC 3507). It submits byte streams to a content-scanning server
// with the RESPMOD method, negotiates preview mode via OPTIONS, and
// interprets the verdict (clean/infected) including any threat metadata the
// server supplies.
package icap

import (
	"context"

	"github.com/scanforge/go-icap/pkg/buffer"
	"github.com/scanforge/go-icap/pkg/client"
	"github.com/scanforge/go-icap/pkg/errors"
	"github.com/scanforge/go-icap/pkg/timing"
)

// Version is the current version of the go-icap library
const Version = "1.0.0"

// GetVersion returns the current version of the library
func GetVersion() string {
	return Version
}

// Re-export key types for easier usage
type (
	// Options controls how a Session connects and scans.
	Options = client.Options

	// Session is an exclusively-owned ICAP connection.
	Session = client.Session

	// ScanTarget is one item to scan.
	ScanTarget = client.ScanTarget

	// Verdict is the outcome of one scan.
	Verdict = client.Verdict

	// Response represents a parsed ICAP response.
	Response = client.Response

	// Capabilities holds server-advertised capabilities.
	Capabilities = client.Capabilities

	// Endpoint identifies the ICAP server and request target URL.
	Endpoint = client.Endpoint

	// Buffer provides memory-limited capture storage with disk spilling.
	Buffer = buffer.Buffer

	// Metrics captures timing information for a scan.
	Metrics = timing.Metrics

	// Error represents a structured error with context information.
	Error = errors.Error
)

// Re-export error types for convenience
const (
	ErrorTypeConnection = errors.ErrorTypeConnection
	ErrorTypeProtocol   = errors.ErrorTypeProtocol
	ErrorTypeServer     = errors.ErrorTypeServer
	ErrorTypeTimeout    = errors.ErrorTypeTimeout
	ErrorTypeIO         = errors.ErrorTypeIO
	ErrorTypeValidation = errors.ErrorTypeValidation
)

// Connect dials the ICAP server described by opts, negotiates OPTIONS, and
// returns a ready Session.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	return client.Connect(ctx, opts)
}

// ParseURL parses an icap:// URL into an Endpoint.
func ParseURL(rawURL string) (*Endpoint, error) {
	return client.ParseURL(rawURL)
}

// IsConnectionError reports whether err is or wraps a connection error.
func IsConnectionError(err error) bool {
	return errors.IsConnectionError(err)
}

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool {
	return errors.IsProtocolError(err)
}

// IsServerError reports whether err is or wraps a server error.
func IsServerError(err error) bool {
	return errors.IsServerError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
