// Package buffer provides capped in-memory capture storage that spools to
// disk.
//
// A session produces two captures: the raw wire transcript and the embedded
// HTTP notice carried by an infected verdict. Either can outgrow what is
// worth holding in memory, so writes accumulate in memory up to a threshold
// and then move to a temporary file.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/scanforge/go-icap/pkg/errors"
)

// DefaultMemoryLimit is the in-memory threshold before a capture spools to
// disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Buffer accumulates capture data in memory up to a limit, then spools the
// whole capture to a temporary file. Safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	mem       bytes.Buffer
	spill     *os.File
	spillPath string
	size      int64
	limit     int64
	closed    bool
}

// New returns a capture buffer with the given memory limit. A limit of zero
// or less selects DefaultMemoryLimit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Write appends p to the capture, spooling to disk once the capture would
// exceed the memory limit.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("writing to closed capture", nil)
	}

	if b.spill == nil {
		if int64(b.mem.Len()+len(p)) <= b.limit {
			b.size += int64(len(p))
			return b.mem.Write(p)
		}
		if err := b.spillToDisk(); err != nil {
			return 0, err
		}
	}

	n, err := b.spill.Write(p)
	b.size += int64(n)
	if err != nil {
		return n, errors.NewIOError("writing capture spill", err)
	}
	return n, nil
}

// spillToDisk moves the in-memory capture to a fresh temp file. The caller
// holds the lock.
func (b *Buffer) spillToDisk() error {
	tmp, err := os.CreateTemp("", "goicap-capture-*.tmp")
	if err != nil {
		return errors.NewIOError("creating capture spill file", err)
	}
	b.spill = tmp
	b.spillPath = tmp.Name()

	if b.mem.Len() > 0 {
		if _, err := tmp.Write(b.mem.Bytes()); err != nil {
			return errors.NewIOError("writing capture spill", err)
		}
		b.mem.Reset()
	}
	return nil
}

// Bytes returns the in-memory capture. Nil once the capture has spooled to
// disk; use Reader for captures of either kind.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.spill != nil {
		return nil
	}
	return b.mem.Bytes()
}

// Path returns the filesystem path backing a spooled capture, or "" while
// the capture is still in memory.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spillPath
}

// Size returns the total number of bytes captured.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled reports whether the capture has spooled to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spill != nil
}

// Reader returns a fresh reader over the full capture, wherever it lives.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("reading closed capture", nil)
	}

	if b.spill != nil {
		if err := b.spill.Sync(); err != nil {
			return nil, errors.NewIOError("syncing capture spill", err)
		}
		f, err := os.Open(b.spillPath)
		if err != nil {
			return nil, errors.NewIOError("opening capture spill", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
}

// Close releases the capture, removing the spill file if one was created.
// Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.spill == nil {
		return nil
	}

	err := b.spill.Close()
	if removeErr := os.Remove(b.spillPath); removeErr != nil && err == nil {
		err = removeErr
	}
	b.spill = nil
	b.spillPath = ""
	if err != nil {
		return errors.NewIOError("releasing capture spill", err)
	}
	return nil
}
