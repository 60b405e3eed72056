package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// HexPrefix prefixes every byte-string on the wire.
const HexPrefix = "0x"

// HexBytes is a byte-string whose external form is 0x-prefixed lowercase hex.
type HexBytes []byte

// ParseHex parses a 0x-prefixed hex string. Mixed case is accepted. "0x" is the
// empty byte-string and parses to nil.
func ParseHex(s string) (HexBytes, error) {
	if !strings.HasPrefix(s, HexPrefix) {
		return nil, fmt.Errorf("byte-string %q is missing the %s prefix", s, HexPrefix)
	}
	body := s[len(HexPrefix):]
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("byte-string %q has an odd number of hex digits", s)
	}
	if body == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("byte-string %q is not valid hex: %w", s, err)
	}
	return HexBytes(b), nil
}

// MustParseHex is like ParseHex but panics on malformed input.
// Use only for trusted literals (tests, fixtures).
func MustParseHex(s string) HexBytes {
	b, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String returns the canonical 0x-prefixed lowercase form.
func (h HexBytes) String() string {
	return HexPrefix + hex.EncodeToString(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// Decimal is a non-negative base-10 integer carried as a string so that amounts wider than
// 64 bits survive the trip through JSON.
type Decimal string

// ParseDecimal validates s as a non-empty string of ASCII digits.
func ParseDecimal(s string) (Decimal, error) {
	if s == "" {
		return "", fmt.Errorf("decimal string is empty")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", fmt.Errorf("decimal string %q contains non-digit %q", s, s[i])
		}
	}
	return Decimal(s), nil
}

// DecimalFromUint64 formats n as a Decimal.
func DecimalFromUint64(n uint64) Decimal {
	return Decimal(new(big.Int).SetUint64(n).String())
}

// String implements fmt.Stringer.
func (d Decimal) String() string { return string(d) }

// Big returns the value as a big.Int. It reports false if d is not a valid decimal.
func (d Decimal) Big() (*big.Int, bool) {
	if _, err := ParseDecimal(string(d)); err != nil {
		return nil, false
	}
	return new(big.Int).SetString(string(d), 10)
}

// Object is an opaque structured value (a JSON object) that the codec carries without
// interpreting, e.g. output data or unlock blocks owned by other components.
type Object map[string]any

// ObjectFromJSON parses a JSON object literal, keeping numbers as json.Number so that a
// decoded Object compares equal to one that went through the codec.
func ObjectFromJSON(data string) (Object, error) {
	var obj Object
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to parse object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("failed to parse object: null")
	}
	return obj, nil
}

// MustObject is like ObjectFromJSON but panics on malformed input.
func MustObject(data string) Object {
	obj, err := ObjectFromJSON(data)
	if err != nil {
		panic(err)
	}
	return obj
}
