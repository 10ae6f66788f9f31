package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	e := NewProtocolError("malformed status line: GARBAGE", nil)
	assert.Equal(t, "[protocol] malformed status line: GARBAGE", e.Error())

	cause := errors.New("broken pipe")
	e = NewIOError("writing chunk", cause)
	assert.Contains(t, e.Error(), "broken pipe")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := NewConnectionError("scanner", 1344, cause)
	assert.True(t, errors.Is(e, cause))
}

func TestUnwrapThroughWrapping(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("scan failed: %w", NewServerError("OPTIONS rejected", 404))
	assert.True(t, IsServerError(wrapped))
	assert.False(t, IsServerError(cause))
}

func TestTypePredicates(t *testing.T) {
	tests := []struct {
		err  error
		pred func(error) bool
	}{
		{NewConnectionError("h", 1344, nil), IsConnectionError},
		{NewConnectionClosedError(nil), IsConnectionError},
		{NewProtocolError("bad line", nil), IsProtocolError},
		{NewServerError("rejected", 500), IsServerError},
		{NewValidationError("bad config"), IsValidationError},
		{NewTimeoutError("read", 0), IsTimeoutError},
	}

	for _, tt := range tests {
		assert.True(t, tt.pred(tt.err), "%v", tt.err)
	}

	assert.False(t, IsProtocolError(NewServerError("rejected", 500)))
	assert.False(t, IsConnectionError(nil))
}

func TestIsMatchesByType(t *testing.T) {
	a := NewProtocolError("one", nil)
	b := NewProtocolError("two", nil)
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, NewServerError("x", 500)))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeServer, GetErrorType(NewServerError("x", 500)))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestServerErrorCarriesStatusCode(t *testing.T) {
	e := NewServerError("OPTIONS rejected", 404)
	assert.Equal(t, 404, e.StatusCode)
}
