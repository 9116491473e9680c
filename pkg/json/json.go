// Package json provides the structured-document codec used across Pulsar.
// Every protocol line, artifact, and stored payload goes through goccy/go-json.
package json

import (
	"bytes"
	stdjson "encoding/json"
	"io"

	gojson "github.com/goccy/go-json"
)

// RawMessage is an encoded JSON value kept verbatim.
type RawMessage = stdjson.RawMessage

// EmptyObject is the canonical empty document.
var EmptyObject = RawMessage(`{}`)

// Marshal encodes v without HTML escaping, matching the ensure_ascii=False
// output connectors expect.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.MarshalWithOption(v, gojson.DisableHTMLEscape())
}

// Unmarshal is a high-performance drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a high-performance replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// Compact returns data with insignificant whitespace removed.
func Compact(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := gojson.Compact(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsEmpty reports whether raw is absent, null, or an empty object or array.
func IsEmpty(raw RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]":
		return true
	}
	if len(trimmed) < 2 {
		return false
	}
	if (trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}') || (trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']') {
		return len(bytes.TrimSpace(trimmed[1:len(trimmed)-1])) == 0
	}
	return false
}
