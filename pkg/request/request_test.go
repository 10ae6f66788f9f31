package request

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	got := Options("icap://scanner:1344/avscan", "scanner")
	want := "OPTIONS icap://scanner:1344/avscan ICAP/1.0\r\nHost: scanner\r\n\r\n"
	assert.Equal(t, want, string(got))
}

func TestRespmodWithPreview(t *testing.T) {
	embedded := EmbeddedResponseHeader("eicar.txt")
	got := string(Respmod("icap://scanner/avscan", "scanner", 1024, "", embedded))

	assert.Contains(t, got, "RESPMOD icap://scanner/avscan ICAP/1.0\r\n")
	assert.Contains(t, got, "Host: scanner\r\n")
	assert.Contains(t, got, "Allow: 204\r\n")
	assert.Contains(t, got, "Preview: 1024\r\n")
	assert.Contains(t, got, fmt.Sprintf("Encapsulated: res-hdr=0, res-body=%d\r\n", len(embedded)))
	assert.NotContains(t, got, "X-Scan-ID")
}

func TestRespmodWithoutPreview(t *testing.T) {
	got := string(Respmod("icap://scanner/avscan", "scanner", -1, "", EmbeddedResponseHeader("")))
	assert.NotContains(t, got, "Preview:")
	assert.Contains(t, got, "Allow: 204\r\n")
}

func TestRespmodScanID(t *testing.T) {
	got := string(Respmod("icap://scanner/avscan", "scanner", -1, "3725c1c2", EmbeddedResponseHeader("")))
	assert.Contains(t, got, "X-Scan-ID: 3725c1c2\r\n")
}

func TestEmbeddedResponseHeader(t *testing.T) {
	got := string(EmbeddedResponseHeader("report.pdf"))
	want := "HTTP/1.1 200 OK\r\ncontent-disposition: attachment; filename=\"report.pdf\"\r\n\r\n"
	assert.Equal(t, want, got)

	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", string(EmbeddedResponseHeader("")))
}

func TestEncapsulatedOffsetTracksEmbeddedLength(t *testing.T) {
	for _, name := range []string{"", "a", "some long file name.bin"} {
		embedded := EmbeddedResponseHeader(name)
		got := string(Respmod("icap://s/avscan", "s", -1, "", embedded))
		assert.Contains(t, got, fmt.Sprintf("res-body=%d", len(embedded)))
	}
}
