package wire

import (
	"fmt"
	"sort"
)

// TypeKey is the discriminator field present in every tagged envelope.
const TypeKey = "type"

// Tag selects a variant within its family.
type Tag uint64

// Variant is a value of one of the shapes registered in a family.
// Each family exposes a sealed interface that embeds Variant, so consumers can
// switch exhaustively over its concrete types.
type Variant interface {
	Family() *Family
	Tag() Tag
}

// Shape describes one variant: its tag, its fields, and how to move between
// validated field values and the concrete Go type.
type Shape struct {
	Tag    Tag
	Name   string
	Fields []Field

	build   func(Values) Variant
	extract func(Variant) (Values, bool)
}

// NewShape describes variant type T registered under tag.
// build receives values that already passed structural validation; extract is its inverse.
func NewShape[T Variant](tag Tag, name string, fields []Field, build func(Values) T, extract func(T) Values) Shape {
	return Shape{
		Tag:    tag,
		Name:   name,
		Fields: fields,
		build: func(v Values) Variant {
			return build(v)
		},
		extract: func(v Variant) (Values, bool) {
			t, ok := v.(T)
			if !ok {
				return nil, false
			}
			return extract(t), true
		},
	}
}

// Family is the type registry of one closed set of variants sharing a tag space.
//
// Families are populated from package init functions and then sealed. After sealing
// they are read-only, so concurrent Resolve calls need no locking.
type Family struct {
	name   string
	shapes map[Tag]Shape
	sealed bool
}

// NewFamily creates an empty family.
func NewFamily(name string) *Family {
	return &Family{name: name, shapes: make(map[Tag]Shape)}
}

// Name returns the family name used in errors and metrics.
func (f *Family) Name() string { return f.name }

// Register adds a shape. It fails with DuplicateTagError if the tag is taken and
// with ErrFamilySealed once the family has been sealed.
func (f *Family) Register(s Shape) error {
	if f.sealed {
		return fmt.Errorf("register %s tag %d: %w", f.name, s.Tag, ErrFamilySealed)
	}
	if _, exists := f.shapes[s.Tag]; exists {
		return &DuplicateTagError{Family: f.name, Tag: s.Tag}
	}
	if s.build == nil || s.extract == nil {
		return fmt.Errorf("register %s tag %d: shape %q was not built with NewShape", f.name, s.Tag, s.Name)
	}
	f.shapes[s.Tag] = s
	return nil
}

// MustRegister registers every shape and panics on the first error.
// Registration errors are programming errors, so this is meant for init functions.
func (f *Family) MustRegister(shapes ...Shape) *Family {
	for _, s := range shapes {
		if err := f.Register(s); err != nil {
			panic(err)
		}
	}
	return f
}

// Seal makes the family read-only.
func (f *Family) Seal() { f.sealed = true }

// Sealed reports whether Seal has been called.
func (f *Family) Sealed() bool { return f.sealed }

// Resolve returns the shape registered for tag.
func (f *Family) Resolve(tag Tag) (Shape, error) {
	s, ok := f.shapes[tag]
	if !ok {
		return Shape{}, &UnknownVariantError{Family: f.name, Tag: tag}
	}
	return s, nil
}

// Shapes lists the registered shapes ordered by tag.
func (f *Family) Shapes() []Shape {
	out := make([]Shape, 0, len(f.shapes))
	for _, s := range f.shapes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Narrow converts a decoded variant to its family interface T. A nil v yields the zero T.
func Narrow[T Variant](v Variant) T {
	t, _ := v.(T)
	return t
}

// NarrowAll converts every element with Narrow. A nil slice stays nil.
func NarrowAll[T Variant](vs []Variant) []T {
	if vs == nil {
		return nil
	}
	out := make([]T, len(vs))
	for i, v := range vs {
		out[i] = Narrow[T](v)
	}
	return out
}

// Widen is the inverse of NarrowAll, used by extract functions.
func Widen[T Variant](ts []T) []Variant {
	if ts == nil {
		return nil
	}
	out := make([]Variant, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

// VariantName returns the registered shape name of v, or "unknown".
func VariantName(v Variant) string {
	if v == nil || v.Family() == nil {
		return "unknown"
	}
	s, err := v.Family().Resolve(v.Tag())
	if err != nil {
		return "unknown"
	}
	return s.Name
}
