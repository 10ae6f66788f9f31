package wire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/scanforge/go-icap/pkg/errors"
)

// ChunkUnit is the transmission unit: the largest payload carried by a single
// chunk frame.
const ChunkUnit = 4096

// Writer encodes a byte stream as chunked-transfer frames on the connection.
type Writer struct {
	w     io.Writer
	trace io.Writer

	// pending holds bytes read while probing past a cap; the next Send on
	// the same source transmits them first.
	pending []byte
}

// NewWriter returns a chunked-body writer over conn. trace, when non-nil,
// receives one line per frame boundary (sizes only, never payload bytes).
func NewWriter(conn io.Writer, trace io.Writer) *Writer {
	return &Writer{
		w:     conn,
		trace: trace,
	}
}

// Send transmits up to limit bytes from src as chunk frames (limit < 0 means
// unbounded). Each read of up to min(remaining, ChunkUnit) bytes becomes one
// frame. The sequence ends with exactly one terminal frame:
//
//	0\r\n\r\n        limit reached, or src exhausted with announceEOF unset
//	0; ieof\r\n\r\n  src exhausted before the limit and announceEOF set
//
// The ieof form tells the server that no more bytes will ever arrive for
// this resource; the plain form after a capped send means more bytes follow
// in a later sequence. Send reports the payload bytes sent and whether src
// was exhausted.
func (cw *Writer) Send(src io.Reader, limit int64, announceEOF bool) (int64, bool, error) {
	if len(cw.pending) > 0 {
		src = io.MultiReader(bytes.NewReader(cw.pending), src)
		cw.pending = nil
	}

	var sent int64
	buf := make([]byte, ChunkUnit)

	for {
		want := int64(ChunkUnit)
		if limit >= 0 {
			remaining := limit - sent
			if remaining < want {
				want = remaining
			}
		}
		if want == 0 {
			// Cap reached. Probe one byte so a source that ended exactly
			// at the cap still gets the ieof terminal; a probed byte is
			// stashed for the next sequence.
			exhausted, err := cw.probe(src)
			if err != nil {
				return sent, false, err
			}
			if exhausted {
				return sent, true, cw.terminal(announceEOF)
			}
			return sent, false, cw.terminal(false)
		}

		n, err := io.ReadFull(src, buf[:want])
		if n > 0 {
			if werr := cw.frame(buf[:n]); werr != nil {
				return sent, false, werr
			}
			sent += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sent, true, cw.terminal(announceEOF)
		}
		if err != nil {
			return sent, false, errors.NewIOError("reading scan source", err)
		}
	}
}

// Reset discards any byte stashed by a previous capped Send. It is called
// between scan dialogues: when the server short-circuits after a preview,
// the remainder never goes out, and a stale probe byte must not leak into
// the next body.
func (cw *Writer) Reset() {
	cw.pending = nil
}

// probe reads one byte past the cap to distinguish "cap reached" from
// "source ended at the cap". A byte that does arrive is kept for the next
// Send.
func (cw *Writer) probe(src io.Reader) (exhausted bool, err error) {
	one := make([]byte, 1)
	for {
		n, err := src.Read(one)
		if n > 0 {
			cw.pending = one[:1]
			return false, nil
		}
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, errors.NewIOError("reading scan source", err)
		}
	}
}

func (cw *Writer) frame(p []byte) error {
	head := fmt.Sprintf("%x\r\n", len(p))
	if cw.trace != nil {
		fmt.Fprintf(cw.trace, "-> chunk %d\n", len(p))
	}
	if err := cw.writeAll([]byte(head)); err != nil {
		return err
	}
	if err := cw.writeAll(p); err != nil {
		return err
	}
	return cw.writeAll([]byte("\r\n"))
}

func (cw *Writer) terminal(ieof bool) error {
	frame := "0\r\n\r\n"
	if ieof {
		frame = "0; ieof\r\n\r\n"
	}
	if cw.trace != nil {
		if ieof {
			fmt.Fprintln(cw.trace, "-> chunk end (ieof)")
		} else {
			fmt.Fprintln(cw.trace, "-> chunk end")
		}
	}
	return cw.writeAll([]byte(frame))
}

// writeAll handles partial writes by writing until done.
func (cw *Writer) writeAll(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := cw.w.Write(p[written:])
		if err != nil {
			return errors.NewIOError("writing chunk", err)
		}
		written += n
	}
	return nil
}

// ReadChunked decodes a chunk sequence from r into dst, returning the number
// of payload bytes. It accepts chunk extensions (including the ieof terminal
// annotation) and discards any trailer lines after the terminal frame.
func ReadChunked(r *Reader, dst io.Writer) (int64, error) {
	var total int64
	for {
		line, err := r.ReadLine()
		if err != nil {
			return total, err
		}

		sizeField := line
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
		if err != nil || size < 0 {
			return total, errors.NewProtocolError(fmt.Sprintf("invalid chunk size line %q", line), err)
		}

		if size == 0 {
			// Trailer lines, if any, end at the blank line.
			for {
				trailer, err := r.ReadLine()
				if err != nil {
					return total, err
				}
				if trailer == "" {
					return total, nil
				}
			}
		}

		if _, err := io.CopyN(dst, r, size); err != nil {
			return total, errors.NewIOError("reading chunk payload", err)
		}
		total += size

		crlf, err := r.ReadLine()
		if err != nil {
			return total, err
		}
		if crlf != "" {
			return total, errors.NewProtocolError("missing CRLF after chunk payload", nil)
		}
	}
}
