package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxDepth bounds nesting of variants within variants.
const DefaultMaxDepth = 32

// Observer receives the outcome of every top-level decode and encode.
// *metrics.Metrics implements it.
type Observer interface {
	ObserveDecode(family, variant string, duration time.Duration, err error)
	ObserveEncode(family, variant string, duration time.Duration, err error)
}

// Options configures a Codec.
type Options struct {
	// Strict rejects fields that the resolved shape does not declare.
	// By default they are ignored so that newer producers stay readable.
	Strict bool

	// MaxDepth bounds variant nesting. Zero means DefaultMaxDepth.
	MaxDepth int

	// Observer is optional.
	Observer Observer
}

// Codec decodes envelopes into variants and encodes variants back into envelopes.
// A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	strict   bool
	maxDepth int
	observer Observer
}

// Default is a lenient codec with the default depth bound and no observer.
var Default = NewCodec(Options{})

// NewCodec creates a codec.
func NewCodec(opts Options) *Codec {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Codec{
		strict:   opts.Strict,
		maxDepth: maxDepth,
		observer: opts.Observer,
	}
}

// Strict reports whether unrecognised fields are rejected.
func (c *Codec) Strict() bool { return c.strict }

// MaxDepth returns the nesting bound.
func (c *Codec) MaxDepth() int { return c.maxDepth }

// WithStrict returns a copy of c with strict mode set as given.
func (c *Codec) WithStrict(strict bool) *Codec {
	cp := *c
	cp.strict = strict
	return &cp
}

// Decode resolves the envelope's type tag in f and returns the validated variant.
func (c *Codec) Decode(f *Family, env Envelope) (Variant, error) {
	start := time.Now()
	v, err := c.decodeVariant(f, env, "", 0)
	c.observeDecode(f.Name(), v, start, err)
	return v, err
}

// Encode returns the tagged envelope of v. Absent optional fields are omitted.
func (c *Codec) Encode(v Variant) (Envelope, error) {
	start := time.Now()
	env, err := c.encodeVariant(v, "", 0)
	family := "unknown"
	if !isAbsent(v) && v.Family() != nil {
		family = v.Family().Name()
	}
	c.observeEncode(family, v, start, err)
	return env, err
}

// Unmarshal parses JSON and decodes it against f.
func (c *Codec) Unmarshal(f *Family, data []byte) (Variant, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return c.Decode(f, env)
}

// Marshal encodes v to compact JSON with the type tag first.
func (c *Codec) Marshal(v Variant) ([]byte, error) {
	env, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeAs decodes env against f and narrows the result to the family's interface type T.
func DecodeAs[T Variant](c *Codec, f *Family, env Envelope) (T, error) {
	var zero T
	v, err := c.Decode(f, env)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s variant %T does not implement %T", f.Name(), v, zero)
	}
	return t, nil
}

// UnmarshalAs parses JSON and decodes it with DecodeAs.
func UnmarshalAs[T Variant](c *Codec, f *Family, data []byte) (T, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeAs[T](c, f, env)
}

func (c *Codec) observeDecode(family string, v Variant, start time.Time, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveDecode(family, VariantName(v), time.Since(start), err)
}

func (c *Codec) observeEncode(family string, v Variant, start time.Time, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveEncode(family, VariantName(v), time.Since(start), err)
}
