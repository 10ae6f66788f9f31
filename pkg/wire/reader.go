// Package wire implements the line-oriented ICAP wire format: buffered line
// reading and chunked-transfer body encoding over a single connection.
package wire

import (
	"bufio"
	"io"
	"strings"

	"github.com/scanforge/go-icap/pkg/errors"
)

// Reader is a buffered, line-oriented reader over the connection. All
// components that touch the connection read through the same Reader so that
// line reads and raw binary reads share one buffer.
type Reader struct {
	br    *bufio.Reader
	trace io.Writer
}

// NewReader wraps conn in a buffered line reader. trace, when non-nil,
// receives every line read from the wire.
func NewReader(conn io.Reader, trace io.Writer) *Reader {
	return &Reader{
		br:    bufio.NewReader(conn),
		trace: trace,
	}
}

// ReadLine reads one line from the connection and returns it with the
// trailing CRLF (or bare LF) stripped. The raw line, terminator included, is
// echoed to the trace sink. A peer close before a terminator is seen is
// reported as a connection error.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", errors.NewConnectionClosedError(err)
		}
		return "", errors.NewIOError("reading line", err)
	}

	if r.trace != nil {
		io.WriteString(r.trace, "<- "+line)
	}

	if strings.HasSuffix(line, "\r\n") {
		return line[:len(line)-2], nil
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// Read performs a raw binary read through the shared buffer, so bytes
// buffered during line reads are never lost.
func (r *Reader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}

// Buffered returns the number of bytes currently buffered.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}
