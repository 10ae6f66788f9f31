package transport

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/go-icap/pkg/errors"
	"github.com/scanforge/go-icap/pkg/timing"
)

func TestValidateConfig(t *testing.T) {
	tr := New()

	tests := []struct {
		name   string
		config Config
	}{
		{name: "empty host", config: Config{Port: 1344}},
		{name: "zero port", config: Config{Host: "scanner"}},
		{name: "port too large", config: Config{Host: "scanner", Port: 70000}},
		{name: "http proxy rejected", config: Config{Host: "scanner", Port: 1344, ProxyURL: "http://proxy:8080"}},
		{name: "garbage proxy", config: Config{Host: "scanner", Port: 1344, ProxyURL: "::not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Connect(context.Background(), tt.config, timing.NewTimer())
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestConnectDirect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	timer := timing.NewTimer()
	conn, err := New().Connect(context.Background(), Config{
		Host:        "scanner.invalid",
		ConnectIP:   "127.0.0.1",
		Port:        port,
		ConnTimeout: 2 * time.Second,
	}, timer)
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, strings.HasPrefix(conn.RemoteAddr().String(), "127.0.0.1:"))
	assert.Greater(t, timer.GetMetrics().TCPConnect, time.Duration(0))
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	_, err = New().Connect(context.Background(), Config{
		Host:        "scanner.invalid",
		ConnectIP:   "127.0.0.1",
		Port:        port,
		ConnTimeout: 2 * time.Second,
	}, timing.NewTimer())
	require.Error(t, err)
	assert.True(t, errors.IsConnectionError(err))
}
