// Package json is the JSON codec used across the service. It is backed by
// sonic in its encoding/json compatible configuration: map keys are sorted
// and HTML is escaped, so output matches the standard library byte for byte.
// On platforms without sonic's JIT, sonic itself falls back to encoding/json.
package json

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

var api = sonic.ConfigStd

// Marshal encodes v.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// MarshalString encodes v into a string.
func MarshalString(v any) (string, error) { return api.MarshalToString(v) }

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// Valid reports whether data is valid JSON.
func Valid(data []byte) bool { return api.Valid(data) }

// NewEncoder returns a streaming encoder; every Encode call ends with a newline.
func NewEncoder(w io.Writer) sonic.Encoder { return api.NewEncoder(w) }

// NewDecoder returns a streaming decoder.
func NewDecoder(r io.Reader) sonic.Decoder { return api.NewDecoder(r) }
