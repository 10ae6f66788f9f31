package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/go-icap/pkg/errors"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "default port", url: "icap://scanner", wantHost: "scanner", wantPort: 1344},
		{name: "explicit port", url: "icap://scanner:13440", wantHost: "scanner", wantPort: 13440},
		{name: "service path", url: "icap://scanner:1344/avscan", wantHost: "scanner", wantPort: 1344},
		{name: "ip host", url: "icap://127.0.0.1/avscan", wantHost: "127.0.0.1", wantPort: 1344},
		{name: "empty", url: "", wantErr: true},
		{name: "wrong scheme", url: "http://scanner", wantErr: true},
		{name: "no host", url: "icap://", wantErr: true},
		{name: "port out of range", url: "icap://scanner:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, ep.Host)
			assert.Equal(t, tt.wantPort, ep.Port)
			assert.Equal(t, tt.url, ep.URL)
		})
	}
}
