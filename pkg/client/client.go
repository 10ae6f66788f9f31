// Package client provides the ICAP session: connecting, OPTIONS
// negotiation, and RESPMOD scan orchestration over a single connection.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanforge/go-icap/pkg/buffer"
	"github.com/scanforge/go-icap/pkg/errors"
	"github.com/scanforge/go-icap/pkg/request"
	"github.com/scanforge/go-icap/pkg/timing"
	"github.com/scanforge/go-icap/pkg/transport"
	"github.com/scanforge/go-icap/pkg/wire"
)

// Options controls how a Session connects and scans.
type Options struct {
	// URL is the ICAP server URL, e.g. "icap://scanner.example:1344/avscan".
	URL string

	// ConnectIP skips DNS and dials this IP directly.
	ConnectIP string

	ConnTimeout time.Duration
	DNSTimeout  time.Duration

	// ReadTimeout/WriteTimeout, when positive, bound each request/response
	// phase with connection deadlines. Zero leaves socket operations
	// unbounded, which is the protocol engine's default.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ProxyURL selects an upstream SOCKS5 proxy for the dial.
	ProxyURL string

	// UsePreview requests preview mode. It only takes effect when the
	// server advertises a preview size during OPTIONS negotiation.
	UsePreview bool

	// AttachScanID attaches a fresh X-Scan-ID header to each RESPMOD for
	// correlation with server-side audit logs.
	AttachScanID bool

	// Trace receives wire trace output when non-nil.
	Trace io.Writer

	// BodyMemLimit caps the in-memory size of embedded body captures before
	// they spill to disk. Zero uses the buffer package default.
	BodyMemLimit int64

	// TranscriptMemLimit caps the in-memory size of the session transcript.
	TranscriptMemLimit int64
}

// Capabilities holds server-advertised capabilities discovered via OPTIONS.
// They are fixed for the remaining lifetime of the connection.
type Capabilities struct {
	// PreviewSize is the server-advertised preview size, or -1 when the
	// server did not advertise one (preview unavailable).
	PreviewSize int

	// Methods and Allow are informational copies of the corresponding
	// OPTIONS response headers.
	Methods string
	Allow   string
}

// PreviewSupported reports whether the server advertised preview support.
func (c Capabilities) PreviewSupported() bool {
	return c.PreviewSize >= 0
}

// ScanTarget is one item to scan. Source must be a finite, single-pass
// stream; it is consumed by exactly one scan attempt.
type ScanTarget struct {
	// Name is the display name carried in the embedded content-disposition
	// header. May be empty.
	Name string

	Source io.Reader
}

// Verdict is the outcome of one scan.
type Verdict struct {
	Infected bool

	// ThreatInfo holds the raw X-* header lines the server attached.
	ThreatInfo []string

	// Response is the full parsed ICAP response behind the verdict.
	Response *Response
}

// Session is an exclusively-owned ICAP connection. Scans are strictly
// sequential; a Session is not safe for concurrent use.
type Session struct {
	opts     Options
	endpoint *Endpoint

	conn   net.Conn
	reader *wire.Reader
	writer *wire.Writer
	trace  io.Writer

	caps       Capabilities
	timer      *timing.Timer
	transcript *buffer.Buffer

	// broken marks the connection unusable after a protocol or connection
	// error; every later call fails fast.
	broken bool
	closed bool
}

// Connect dials the ICAP server described by opts, negotiates OPTIONS, and
// returns a ready Session. ctx bounds the dial only; established-connection
// I/O follows the Read/WriteTimeout options.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	endpoint, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	timer := timing.NewTimer()

	conn, err := transport.New().Connect(ctx, transport.Config{
		Host:         endpoint.Host,
		Port:         endpoint.Port,
		ConnectIP:    opts.ConnectIP,
		ConnTimeout:  opts.ConnTimeout,
		DNSTimeout:   opts.DNSTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		ProxyURL:     opts.ProxyURL,
	}, timer)
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:       opts,
		endpoint:   endpoint,
		conn:       conn,
		timer:      timer,
		transcript: buffer.New(opts.TranscriptMemLimit),
	}

	s.trace = s.transcript
	if opts.Trace != nil {
		s.trace = io.MultiWriter(s.transcript, opts.Trace)
	}
	s.reader = wire.NewReader(conn, s.trace)
	s.writer = wire.NewWriter(conn, s.trace)

	if err := s.negotiate(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// Capabilities returns the server capabilities discovered during OPTIONS
// negotiation.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Transcript returns the wire transcript captured so far. It is closed
// together with the Session.
func (s *Session) Transcript() *buffer.Buffer {
	return s.transcript
}

// Metrics returns timing metrics for the most recent request.
func (s *Session) Metrics() timing.Metrics {
	return s.timer.GetMetrics()
}

// Close tears down the connection and releases the transcript capture.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.conn.Close()
	s.transcript.Close()
	return err
}

// negotiate sends OPTIONS and records the server capabilities. The header
// block is fully drained, leaving the connection positioned for the next
// request.
func (s *Session) negotiate() error {
	s.caps = Capabilities{PreviewSize: -1}

	if err := s.send(request.Options(s.endpoint.URL, s.endpoint.Host)); err != nil {
		return err
	}

	if err := s.armReadDeadline(); err != nil {
		return err
	}

	line, err := s.reader.ReadLine()
	if err != nil {
		return err
	}
	code, _, err := parseStatusLine(line, "ICAP/1.0", false)
	if err != nil {
		return err
	}
	if code < 200 || code > 299 {
		return errors.NewServerError("OPTIONS rejected: "+line, code)
	}

	for {
		line, err := s.reader.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		name, value, ok := parseHeaderLine(line)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(name, "Preview"):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return errors.NewProtocolError("invalid Preview header: "+line, err)
			}
			s.caps.PreviewSize = n
		case strings.EqualFold(name, "Methods"):
			s.caps.Methods = value
		case strings.EqualFold(name, "Allow"):
			s.caps.Allow = value
		}
	}
}

// Scan submits one target via RESPMOD and returns the verdict. The scan runs
// the full preview dialogue when preview mode is requested and supported:
// send headers, send up to previewSize bytes, and if the server answers 100
// Continue, stream the remainder before reading the final response.
func (s *Session) Scan(target ScanTarget) (*Verdict, error) {
	if s.closed {
		return nil, errors.NewConnectionClosedError(nil)
	}
	if s.broken {
		return nil, errors.NewConnectionError(s.endpoint.Host, s.endpoint.Port,
			errors.NewProtocolError("session unusable after prior protocol error", nil))
	}

	s.timer.Restart()

	preview := -1
	if s.opts.UsePreview && s.caps.PreviewSupported() {
		preview = s.caps.PreviewSize
	}

	scanID := ""
	if s.opts.AttachScanID {
		scanID = uuid.NewString()
	}

	embedded := request.EmbeddedResponseHeader(target.Name)
	headers := request.Respmod(s.endpoint.URL, s.endpoint.Host, preview, scanID, embedded)

	verdict, err := s.scan(target, headers, embedded, preview)
	if err != nil {
		if errors.IsProtocolError(err) || errors.IsConnectionError(err) {
			s.broken = true
		}
		return nil, err
	}
	return verdict, nil
}

func (s *Session) scan(target ScanTarget, headers, embedded []byte, preview int) (*Verdict, error) {
	// A 204 after the preview leaves the writer's probe byte unsent; it
	// belongs to the previous target, not this one.
	s.writer.Reset()

	if err := s.send(headers); err != nil {
		return nil, err
	}
	if err := s.send(embedded); err != nil {
		return nil, err
	}

	// The remainder callback also covers the defensive 100 case in
	// non-preview mode, where the source is already exhausted and the
	// server just gets an empty ieof-terminated sequence.
	sendRemainder := func() error {
		if err := s.armWriteDeadline(); err != nil {
			return err
		}
		_, _, err := s.writer.Send(target.Source, -1, true)
		return err
	}

	if err := s.armWriteDeadline(); err != nil {
		return nil, err
	}
	if preview >= 0 {
		if _, _, err := s.writer.Send(target.Source, int64(preview), true); err != nil {
			return nil, err
		}
	} else {
		if _, _, err := s.writer.Send(target.Source, -1, false); err != nil {
			return nil, err
		}
	}

	if err := s.armReadDeadline(); err != nil {
		return nil, err
	}
	resp, err := readResponse(s.reader, s.opts.BodyMemLimit, s.timer, sendRemainder)
	if err != nil {
		return nil, err
	}
	resp.Metrics = s.timer.GetMetrics()

	return &Verdict{
		Infected:   resp.Infected(),
		ThreatInfo: resp.ThreatHeaders,
		Response:   resp,
	}, nil
}

// send writes a header block to the connection, echoing it to the trace sink.
func (s *Session) send(block []byte) error {
	if err := s.armWriteDeadline(); err != nil {
		return err
	}
	if s.trace != nil && len(block) > 0 {
		fmt.Fprintf(s.trace, "-> %s", block)
	}
	written := 0
	for written < len(block) {
		n, err := s.conn.Write(block[written:])
		if err != nil {
			return errors.NewIOError("writing request", err)
		}
		written += n
	}
	return nil
}

func (s *Session) armReadDeadline() error {
	if s.opts.ReadTimeout <= 0 {
		return nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		return errors.NewIOError("setting read deadline", err)
	}
	return nil
}

func (s *Session) armWriteDeadline() error {
	if s.opts.WriteTimeout <= 0 {
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return errors.NewIOError("setting write deadline", err)
	}
	return nil
}
