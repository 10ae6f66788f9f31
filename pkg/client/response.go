package client

import (
	"io"
	"strconv"
	"strings"

	"github.com/scanforge/go-icap/pkg/buffer"
	"github.com/scanforge/go-icap/pkg/errors"
	"github.com/scanforge/go-icap/pkg/timing"
	"github.com/scanforge/go-icap/pkg/wire"
)

// Response represents a parsed ICAP response, including the embedded HTTP
// message when one is present.
type Response struct {
	StatusCode int
	Status     string
	Header     Header

	// ThreatHeaders holds the raw X-* header lines, verbatim and in wire
	// order, cumulative across 100-continue rounds.
	ThreatHeaders []string

	// Embedded HTTP message. HTTPStatusCode is 0 when the response carried
	// none (204 short-circuit).
	HTTPStatusCode int
	HTTPStatus     string
	HTTPHeader     Header

	// Body captures the embedded HTTP body notice, if any.
	Body *buffer.Buffer

	Metrics timing.Metrics
}

// Infected reports the verdict encoded by the response: a 204 is clean by
// construction, any other outcome is infected unless the embedded HTTP
// status is 2xx.
func (r *Response) Infected() bool {
	if r.StatusCode == 204 {
		return false
	}
	if r.HTTPStatusCode == 0 {
		return false
	}
	return r.HTTPStatusCode < 200 || r.HTTPStatusCode > 299
}

// responseReader state machine states.
type responseState int

const (
	stateAwaitICAPStatus responseState = iota
	stateICAPHeaders
	stateAwaitHTTPStatus
	stateHTTPHeaders
	stateHTTPBody
	stateDone
)

// readResponse drives the ICAP response state machine:
//
//	AwaitICAPStatus -> ICAPHeaders -> {Done | AwaitHTTPStatus -> HTTPHeaders -> HTTPBody -> Done}
//
// with a back-edge from ICAPHeaders to AwaitICAPStatus after a 100 interim
// status, at which point onContinue must transmit the next body segment.
// timer may be nil.
func readResponse(r *wire.Reader, bodyMemLimit int64, timer *timing.Timer, onContinue func() error) (*Response, error) {
	resp := &Response{
		Body: buffer.New(bodyMemLimit),
	}

	state := stateAwaitICAPStatus
	interim := false

	for state != stateDone {
		switch state {
		case stateAwaitICAPStatus:
			if timer != nil {
				timer.StartStatusWait()
			}
			line, err := readNonBlankLine(r)
			if err != nil {
				return nil, err
			}
			code, reason, err := parseStatusLine(line, "ICAP/1.0", false)
			if err != nil {
				return nil, err
			}
			if code < 100 || code > 299 {
				return nil, errors.NewServerError("ICAP request rejected: "+line, code)
			}
			interim = code == 100
			if !interim {
				if timer != nil {
					timer.EndStatusWait()
				}
				resp.StatusCode = code
				resp.Status = reason
			}
			state = stateICAPHeaders

		case stateICAPHeaders:
			// Each status round carries its own header block (a 100 comes
			// with Encapsulated: null-body=0 on real servers). Only the
			// final round's table survives; threat lines stay cumulative.
			resp.Header = Header{}
			if err := readICAPHeaders(r, resp); err != nil {
				return nil, err
			}
			if interim {
				// Server wants the rest of the body before deciding.
				if onContinue == nil {
					return nil, errors.NewProtocolError("unexpected 100 Continue with no body remaining", nil)
				}
				if err := onContinue(); err != nil {
					return nil, err
				}
				state = stateAwaitICAPStatus
				break
			}
			if resp.StatusCode == 204 {
				// No encapsulated message on the wire.
				state = stateDone
				break
			}
			state = stateAwaitHTTPStatus

		case stateAwaitHTTPStatus:
			line, err := r.ReadLine()
			if err != nil {
				return nil, err
			}
			code, reason, err := parseStatusLine(line, "HTTP/", true)
			if err != nil {
				return nil, err
			}
			resp.HTTPStatusCode = code
			resp.HTTPStatus = reason
			state = stateHTTPHeaders

		case stateHTTPHeaders:
			for {
				line, err := r.ReadLine()
				if err != nil {
					return nil, err
				}
				if line == "" {
					break
				}
				if name, value, ok := parseHeaderLine(line); ok {
					resp.HTTPHeader.Add(name, value)
				}
			}
			state = stateHTTPBody

		case stateHTTPBody:
			if err := readEmbeddedBody(r, resp); err != nil {
				return nil, err
			}
			state = stateDone
		}
	}

	return resp, nil
}

// readNonBlankLine discards residual blank lines left over from a previous
// drained response, then returns the first non-blank line.
func readNonBlankLine(r *wire.Reader) (string, error) {
	for {
		line, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// parseStatusLine parses "<proto> <code> [reason]". With prefixMatch the
// protocol token only needs to begin with proto (HTTP/1.0 vs HTTP/1.1).
func parseStatusLine(line, proto string, prefixMatch bool) (int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, "", errors.NewProtocolError("malformed status line: "+line, nil)
	}
	if prefixMatch {
		if !strings.HasPrefix(parts[0], proto) {
			return 0, "", errors.NewProtocolError("malformed status line: "+line, nil)
		}
	} else if parts[0] != proto {
		return 0, "", errors.NewProtocolError("malformed status line: "+line, nil)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", errors.NewProtocolError("malformed status code: "+line, err)
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return code, reason, nil
}

// readICAPHeaders drains one ICAP header block. X-* lines are accumulated
// verbatim as threat metadata, on top of any metadata from earlier
// 100-continue rounds.
func readICAPHeaders(r *wire.Reader, resp *Response) error {
	for {
		line, err := r.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if strings.HasPrefix(line, "X-") || strings.HasPrefix(line, "x-") {
			resp.ThreatHeaders = append(resp.ThreatHeaders, line)
		}
		if name, value, ok := parseHeaderLine(line); ok {
			resp.Header.Add(name, value)
		}
	}
}

// readEmbeddedBody drains the embedded HTTP body into resp.Body. When the
// ICAP response's own Encapsulated header declares a res-body section the
// body is chunked per RFC 3507. Lenient servers that omit the header get a
// Content-Length read when one is declared, and otherwise a line scan up to
// the next blank line, which is only safe for the short text notices such
// servers send.
func readEmbeddedBody(r *wire.Reader, resp *Response) error {
	if enc, ok := resp.Header.Get("Encapsulated"); ok {
		if !strings.Contains(enc, "-body=") || strings.Contains(enc, "null-body") {
			return nil
		}
		_, err := wire.ReadChunked(r, resp.Body)
		return err
	}

	if cl, ok := resp.HTTPHeader.Get("Content-Length"); ok {
		length, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || length < 0 {
			return errors.NewProtocolError("invalid embedded content-length: "+cl, err)
		}
		if _, err := io.CopyN(resp.Body, r, length); err != nil {
			return errors.NewIOError("reading embedded body", err)
		}
		return nil
	}

	for {
		line, err := r.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if _, err := resp.Body.Write([]byte(line + "\r\n")); err != nil {
			return err
		}
	}
}
