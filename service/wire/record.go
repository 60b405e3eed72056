package wire

import (
	"encoding/json"
	"time"
)

// Record describes an untagged aggregate such as a block or an account event.
// Its fields are validated exactly like a variant's, but no type tag is read or written.
type Record[T any] struct {
	name    string
	fields  []Field
	build   func(Values) T
	extract func(T) Values
}

// NewRecord describes aggregate type T.
func NewRecord[T any](name string, fields []Field, build func(Values) T, extract func(T) Values) *Record[T] {
	return &Record[T]{name: name, fields: fields, build: build, extract: extract}
}

// Name returns the record name used in metrics.
func (r *Record[T]) Name() string { return r.name }

// Fields returns the declared fields.
func (r *Record[T]) Fields() []Field { return r.fields }

// DecodeRecord validates env against r and builds T.
func DecodeRecord[T any](c *Codec, r *Record[T], env Envelope) (T, error) {
	start := time.Now()
	var zero T
	values, err := c.decodeFields(r.fields, env, "", 0, false)
	if c.observer != nil {
		c.observer.ObserveDecode(r.name, r.name, time.Since(start), err)
	}
	if err != nil {
		return zero, err
	}
	return r.build(values), nil
}

// EncodeRecord returns the untagged envelope of v.
func EncodeRecord[T any](c *Codec, r *Record[T], v T) (Envelope, error) {
	start := time.Now()
	env := make(Envelope, len(r.fields))
	err := c.encodeFields(r.fields, r.extract(v), env, "", 0)
	if c.observer != nil {
		c.observer.ObserveEncode(r.name, r.name, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

// UnmarshalRecord parses JSON and decodes it with DecodeRecord.
func UnmarshalRecord[T any](c *Codec, r *Record[T], data []byte) (T, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeRecord(c, r, env)
}

// MarshalRecord encodes v to compact JSON.
func MarshalRecord[T any](c *Codec, r *Record[T], v T) ([]byte, error) {
	env, err := EncodeRecord(c, r, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
