package wire

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a field value.
type Kind int

const (
	KindBytes   Kind = iota + 1 // HexBytes
	KindUint                    // uint64
	KindDecimal                 // Decimal
	KindString                  // string
	KindObject                  // Object
	KindVariant                 // Variant of Field.Family
)

// String returns the name used in TypeMismatchError.Expected.
func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "byte-string"
	case KindUint:
		return "integer"
	case KindDecimal:
		return "decimal-string"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// Field declares one field of a shape or record.
//
// Decoded values are stored in Values with these Go types, wrapped in a slice when
// Sequence is set: KindBytes -> HexBytes, KindUint -> uint64, KindDecimal -> Decimal,
// KindString -> string, KindObject -> Object, KindVariant -> Variant.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Sequence bool
	MinItems int      // sequences only
	Max      uint64   // KindUint only, 0 means unbounded
	Enum     []string // KindString only, empty means any string
	Family   *Family  // KindVariant only
}

// BytesField declares a required byte-string field.
func BytesField(name string) Field { return Field{Name: name, Kind: KindBytes} }

// UintField declares a required non-negative integer field.
func UintField(name string) Field { return Field{Name: name, Kind: KindUint} }

// DecimalField declares a required decimal-string field.
func DecimalField(name string) Field { return Field{Name: name, Kind: KindDecimal} }

// StringField declares a required string field.
func StringField(name string) Field { return Field{Name: name, Kind: KindString} }

// ObjectField declares a required opaque object field.
func ObjectField(name string) Field { return Field{Name: name, Kind: KindObject} }

// VariantField declares a required field holding a variant of family f.
func VariantField(name string, f *Family) Field {
	return Field{Name: name, Kind: KindVariant, Family: f}
}

// Opt marks the field optional.
func (f Field) Opt() Field {
	f.Optional = true
	return f
}

// List turns the field into a sequence of its kind.
func (f Field) List() Field {
	f.Sequence = true
	return f
}

// NonEmpty turns the field into a sequence that must hold at least one element.
func (f Field) NonEmpty() Field {
	f.Sequence = true
	f.MinItems = 1
	return f
}

// Bound sets the inclusive upper bound of an integer field.
func (f Field) Bound(max uint64) Field {
	f.Max = max
	return f
}

// OneOf restricts a string field to the given values.
func (f Field) OneOf(values ...string) Field {
	f.Enum = values
	return f
}

// Describe renders the field's expected type, e.g. "sequence of byte-string" or "Input variant".
func (f Field) Describe() string {
	elem := f.describeElem()
	if !f.Sequence {
		return elem
	}
	if f.MinItems > 0 {
		return "non-empty sequence of " + elem
	}
	return "sequence of " + elem
}

func (f Field) describeElem() string {
	switch {
	case f.Kind == KindVariant && f.Family != nil:
		return f.Family.Name() + " variant"
	case f.Kind == KindString && len(f.Enum) > 0:
		return "one of " + strings.Join(f.Enum, "|")
	case f.Kind == KindUint && f.Max > 0:
		return fmt.Sprintf("integer 0..%d", f.Max)
	default:
		return f.Kind.String()
	}
}

func (f Field) allows(s string) bool {
	if len(f.Enum) == 0 {
		return true
	}
	for _, e := range f.Enum {
		if e == s {
			return true
		}
	}
	return false
}

// Values holds typed field values keyed by field name. Absent optional fields have no entry.
type Values map[string]any

// Has reports whether the field is present.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Bytes returns the byte-string under name, or nil.
func (v Values) Bytes(name string) HexBytes {
	b, _ := v[name].(HexBytes)
	return b
}

// Uint returns the unsigned integer under name, or 0.
func (v Values) Uint(name string) uint64 {
	n, _ := v[name].(uint64)
	return n
}

// Decimal returns the decimal-string under name, or "".
func (v Values) Decimal(name string) Decimal {
	d, _ := v[name].(Decimal)
	return d
}

// Text returns the string under name, or "".
func (v Values) Text(name string) string {
	s, _ := v[name].(string)
	return s
}

// Object returns the object under name, or nil.
func (v Values) Object(name string) Object {
	o, _ := v[name].(Object)
	return o
}

// Variant returns the decoded variant under name, or nil.
func (v Values) Variant(name string) Variant {
	x, _ := v[name].(Variant)
	return x
}

// BytesList returns the byte-string sequence under name.
func (v Values) BytesList(name string) []HexBytes {
	l, _ := v[name].([]HexBytes)
	return l
}

// Objects returns the object sequence under name.
func (v Values) Objects(name string) []Object {
	l, _ := v[name].([]Object)
	return l
}

// Variants returns the variant sequence under name.
func (v Values) Variants(name string) []Variant {
	l, _ := v[name].([]Variant)
	return l
}
