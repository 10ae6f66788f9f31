// Package testutil provides an in-process scripted ICAP server for tests.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Handler scripts one accepted connection.
type Handler func(c *Conn)

// Server is a TCP listener that runs a scripted handler per connection.
type Server struct {
	// URL is the icap:// URL of the server's avscan service.
	URL string

	// Addr is the host:port the server listens on.
	Addr string

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer starts a server on a random loopback port. Every accepted
// connection is handed to handler on its own goroutine.
func NewServer(handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		URL:  fmt.Sprintf("icap://%s/avscan", ln.Addr().String()),
		Addr: ln.Addr().String(),
		ln:   ln,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				handler(&Conn{Conn: conn, R: bufio.NewReader(conn)})
			}()
		}
	}()

	return s, nil
}

// Close stops accepting and waits for in-flight handlers.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// Conn wraps an accepted connection with line-oriented helpers.
type Conn struct {
	net.Conn
	R *bufio.Reader
}

// ReadLine reads one line with its terminator stripped. It returns "" on
// connection close.
func (c *Conn) ReadLine() string {
	line, err := c.R.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

// ReadHeaderBlock reads lines up to and excluding the blank line.
func (c *Conn) ReadHeaderBlock() []string {
	var lines []string
	for {
		line := c.ReadLine()
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

// ReadChunkedBody decodes one chunk sequence, returning the payload and
// whether the terminal frame carried the ieof annotation.
func (c *Conn) ReadChunkedBody() (payload []byte, ieof bool) {
	for {
		line := c.ReadLine()
		sizeField := line
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
		if err != nil {
			return payload, ieof
		}
		if size == 0 {
			ieof = strings.Contains(line, "ieof")
			c.ReadLine() // blank line closing the terminal frame
			return payload, ieof
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(c.R, buf); err != nil {
			return payload, ieof
		}
		payload = append(payload, buf...)
		c.ReadLine() // CRLF after payload
	}
}

// Send writes raw bytes to the client.
func (c *Conn) Send(s string) {
	io.WriteString(c.Conn, s)
}

// RespondOptions answers an OPTIONS request. preview < 0 omits the Preview
// header.
func (c *Conn) RespondOptions(preview int) {
	c.Send("ICAP/1.0 200 OK\r\n")
	c.Send("Methods: RESPMOD\r\n")
	if preview >= 0 {
		fmt.Fprintf(c.Conn, "Preview: %d\r\n", preview)
	}
	c.Send("Allow: 204\r\n")
	c.Send("\r\n")
}

// Respond204 answers with the clean short-circuit response.
func (c *Conn) Respond204() {
	c.Send("ICAP/1.0 204 No Content\r\n\r\n")
}

// Respond100 asks the client to continue with the remaining body.
func (c *Conn) Respond100() {
	c.Send("ICAP/1.0 100 Continue\r\n\r\n")
}

// RespondInfected answers with a 200 carrying an embedded 403 and the given
// threat header line, body framed as a chunked text notice.
func (c *Conn) RespondInfected(threatLine, notice string) {
	body := fmt.Sprintf("%x\r\n%s\r\n0\r\n\r\n", len(notice), notice)
	embedded := "HTTP/1.1 403 Forbidden\r\n\r\n"
	c.Send("ICAP/1.0 200 OK\r\n")
	if threatLine != "" {
		c.Send(threatLine + "\r\n")
	}
	fmt.Fprintf(c.Conn, "Encapsulated: res-hdr=0, res-body=%d\r\n", len(embedded))
	c.Send("\r\n")
	c.Send(embedded)
	c.Send(body)
}
