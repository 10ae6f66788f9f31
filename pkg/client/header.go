package client

import "strings"

// HeaderField is a single name/value pair as it appeared on the wire.
type HeaderField struct {
	Name  string
	Value string
}

// Header is a header table that preserves insertion order and supports
// case-insensitive lookup.
type Header struct {
	fields []HeaderField
}

// Add appends a field, keeping wire order.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the first value for name, matched case-insensitively.
func (h *Header) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Fields returns the fields in insertion order.
func (h *Header) Fields() []HeaderField {
	return h.fields
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// parseHeaderLine splits "Name: value" into its parts. ok is false when the
// line has no colon.
func parseHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}
