package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBodyWithinPreview(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(strings.NewReader("0123456789"), 16, true)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "a\r\n0123456789\r\n0; ieof\r\n\r\n", out.String())
}

func TestSendBodyExactlyPreviewSize(t *testing.T) {
	// A source ending exactly at the cap is still "the entire body":
	// the terminal frame must carry ieof, not the plain form.
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(strings.NewReader("abcd"), 4, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "4\r\nabcd\r\n0; ieof\r\n\r\n", out.String())
}

func TestSendCapReachedPlainTerminal(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, nil)
	src := strings.NewReader("0123456789")

	sent, exhausted, err := w.Send(src, 4, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sent)
	assert.False(t, exhausted)
	assert.Equal(t, "4\r\n0123\r\n0\r\n\r\n", out.String())

	// The remainder, including the probed byte, goes out in the next
	// sequence and ends with ieof.
	out.Reset()
	sent, exhausted, err = w.Send(src, -1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "6\r\n456789\r\n0; ieof\r\n\r\n", out.String())
}

func TestSendUnboundedPlainTerminal(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(strings.NewReader("0123456789"), -1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "a\r\n0123456789\r\n0\r\n\r\n", out.String())
}

func TestSendZeroLengthSource(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(strings.NewReader(""), -1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "0; ieof\r\n\r\n", out.String())
}

func TestSendZeroPreview(t *testing.T) {
	// Preview: 0 sends no payload. The terminal form still distinguishes
	// an empty source (ieof) from a deferred body (plain).
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(strings.NewReader(""), 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent)
	assert.True(t, exhausted)
	assert.Equal(t, "0; ieof\r\n\r\n", out.String())

	out.Reset()
	w2 := NewWriter(&out, nil)
	sent, exhausted, err = w2.Send(strings.NewReader("payload"), 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent)
	assert.False(t, exhausted)
	assert.Equal(t, "0\r\n\r\n", out.String())
}

func TestSendSplitsLargeBodies(t *testing.T) {
	body := bytes.Repeat([]byte("x"), ChunkUnit+100)
	var out bytes.Buffer
	w := NewWriter(&out, nil)

	sent, exhausted, err := w.Send(bytes.NewReader(body), -1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), sent)
	assert.True(t, exhausted)
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("1000\r\n")))
}

func TestChunkRoundTrip(t *testing.T) {
	bodies := [][]byte{
		nil,
		[]byte("x"),
		[]byte("hello world"),
		bytes.Repeat([]byte("ab"), 3*ChunkUnit),
	}

	for _, body := range bodies {
		var wireBytes bytes.Buffer
		w := NewWriter(&wireBytes, nil)
		_, _, err := w.Send(bytes.NewReader(body), -1, true)
		require.NoError(t, err)

		var decoded bytes.Buffer
		n, err := ReadChunked(NewReader(&wireBytes, nil), &decoded)
		require.NoError(t, err)
		assert.Equal(t, int64(len(body)), n)
		assert.Equal(t, body, append([]byte(nil), decoded.Bytes()...))
	}
}

func TestReadChunkedRejectsBadSize(t *testing.T) {
	r := NewReader(strings.NewReader("zz\r\n\r\n"), nil)
	var dst bytes.Buffer
	_, err := ReadChunked(r, &dst)
	require.Error(t, err)
}

func TestSendTracesFrameBoundariesOnly(t *testing.T) {
	var out, trace bytes.Buffer
	w := NewWriter(&out, &trace)

	_, _, err := w.Send(strings.NewReader("secret-payload"), -1, true)
	require.NoError(t, err)
	assert.Contains(t, trace.String(), "chunk 14")
	assert.Contains(t, trace.String(), "ieof")
	assert.NotContains(t, trace.String(), "secret-payload")
}
