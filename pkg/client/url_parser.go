package client

import (
	"net/url"
	"strconv"

	"github.com/scanforge/go-icap/pkg/errors"
	"github.com/scanforge/go-icap/pkg/transport"
)

// Endpoint identifies the ICAP server and the request target URL.
type Endpoint struct {
	Host string
	Port int
	// URL is the full icap:// URL used as the OPTIONS/RESPMOD target.
	URL string
}

// ParseURL parses an ICAP server URL into an Endpoint.
//
// Supported URL formats:
//   - icap://host                 - default port 1344
//   - icap://host:1344            - explicit port
//   - icap://host/avscan          - service path
//
// Returns a validation error if:
//   - the scheme is not icap
//   - the host is empty
//   - the port is not in 1-65535
func ParseURL(rawURL string) (*Endpoint, error) {
	if rawURL == "" {
		return nil, errors.NewValidationError("ICAP URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewValidationError("invalid ICAP URL: " + rawURL)
	}

	if u.Scheme != "icap" {
		return nil, errors.NewValidationError("ICAP URL must use the icap:// scheme")
	}

	host := u.Hostname()
	if host == "" {
		return nil, errors.NewValidationError("ICAP URL must include host")
	}

	port := transport.DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, errors.NewValidationError("ICAP URL port must be between 1 and 65535")
		}
	}

	return &Endpoint{
		Host: host,
		Port: port,
		URL:  rawURL,
	}, nil
}
