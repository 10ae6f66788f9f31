// Package request assembles ICAP request header blocks.
package request

import (
	"bytes"
	"fmt"
)

const icapVersion = "ICAP/1.0"

// Options builds an OPTIONS request header block for the given ICAP URL.
func Options(icapURL, host string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "OPTIONS %s %s\r\n", icapURL, icapVersion)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("\r\n")
	return b.Bytes()
}

// Respmod builds a RESPMOD request header block. preview < 0 omits the
// Preview header; scanID, when non-empty, is attached as an X-Scan-ID
// extension header. embedded is the encapsulated response-header block whose
// length fixes the res-body offset in the Encapsulated header.
func Respmod(icapURL, host string, preview int, scanID string, embedded []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "RESPMOD %s %s\r\n", icapURL, icapVersion)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Allow: 204\r\n")
	if scanID != "" {
		fmt.Fprintf(&b, "X-Scan-ID: %s\r\n", scanID)
	}
	if preview >= 0 {
		fmt.Fprintf(&b, "Preview: %d\r\n", preview)
	}
	fmt.Fprintf(&b, "Encapsulated: res-hdr=0, res-body=%d\r\n", len(embedded))
	b.WriteString("\r\n")
	return b.Bytes()
}

// EmbeddedResponseHeader builds the encapsulated HTTP response-header block
// wrapped around the scanned content. displayName, when non-empty, is carried
// as a content-disposition filename so the server can report it back.
func EmbeddedResponseHeader(displayName string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 200 OK\r\n")
	if displayName != "" {
		fmt.Fprintf(&b, "content-disposition: attachment; filename=%q\r\n", displayName)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}
