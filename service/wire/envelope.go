package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Envelope is the untyped key-value form of a value on the wire.
// Tagged envelopes carry their variant tag under TypeKey.
type Envelope map[string]any

// MarshalJSON writes compact JSON with the type tag first and the remaining keys sorted,
// so equal envelopes always serialise to identical bytes.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		if k != TypeKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := e[TypeKey]; ok {
		keys = append([]string{TypeKey}, keys...)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseEnvelope parses a single JSON object. Numbers are kept as json.Number so that
// integer fields are checked exactly rather than through float64.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	env, err := readEnvelope(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse envelope: trailing data after object")
	}
	return env, nil
}

// EnvelopeReader reads a stream of JSON objects, such as JSON lines.
type EnvelopeReader struct {
	dec *json.Decoder
}

// NewEnvelopeReader returns a reader over r.
func NewEnvelopeReader(r io.Reader) *EnvelopeReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &EnvelopeReader{dec: dec}
}

// Next returns the next envelope, or io.EOF at the end of the stream.
func (r *EnvelopeReader) Next() (Envelope, error) {
	if !r.dec.More() {
		return nil, io.EOF
	}
	return readEnvelope(r.dec)
}

func readEnvelope(dec *json.Decoder) (Envelope, error) {
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &TypeMismatchError{Name: "envelope", Expected: "object", Actual: describe(raw)}
	}
	return Envelope(obj), nil
}
