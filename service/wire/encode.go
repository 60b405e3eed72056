package wire

import (
	"fmt"
	"reflect"
)

func (c *Codec) encodeVariant(v Variant, path string, depth int) (Envelope, error) {
	if depth > c.maxDepth {
		return nil, &DepthExceededError{Path: path, Max: c.maxDepth}
	}
	if isAbsent(v) {
		return nil, fmt.Errorf("cannot encode nil variant%s", at(path))
	}
	f := v.Family()
	if f == nil {
		return nil, fmt.Errorf("cannot encode %T%s: no family", v, at(path))
	}

	shape, err := f.Resolve(v.Tag())
	if err != nil {
		return nil, &UnknownVariantError{Family: f.Name(), Tag: v.Tag(), Path: path}
	}
	values, ok := shape.extract(v)
	if !ok {
		return nil, fmt.Errorf("%T is not the %s shape registered for %s tag %d", v, shape.Name, f.Name(), shape.Tag)
	}

	env := Envelope{TypeKey: uint64(shape.Tag)}
	if err := c.encodeFields(shape.Fields, values, env, path, depth); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Codec) encodeFields(fields []Field, values Values, env Envelope, path string, depth int) error {
	for _, f := range fields {
		raw, present := values[f.Name]
		if !present || isAbsent(raw) {
			if f.Optional {
				continue
			}
			// A nil byte-string or sequence is empty, not absent.
			scalarRef := !f.Sequence && (f.Kind == KindObject || f.Kind == KindVariant)
			if !present || scalarRef {
				return &MissingFieldError{Path: path, Name: f.Name}
			}
		}

		out, err := c.encodeValue(f, raw, path, depth)
		if err != nil {
			return err
		}
		env[f.Name] = out
	}
	return nil
}

func (c *Codec) encodeValue(f Field, raw any, path string, depth int) (any, error) {
	if !f.Sequence {
		return c.encodeScalar(f, f.Name, raw, path, depth)
	}

	var items []any
	if !isAbsent(raw) {
		var ok bool
		if items, ok = asSlice(raw); !ok {
			return nil, &TypeMismatchError{Path: path, Name: f.Name, Expected: f.Describe(), Actual: fmt.Sprintf("%T", raw)}
		}
	}
	if len(items) < f.MinItems {
		return nil, &TypeMismatchError{Path: path, Name: f.Name, Expected: f.Describe(), Actual: "empty array"}
	}

	out := make([]any, len(items))
	for i, item := range items {
		v, err := c.encodeScalar(f, fmt.Sprintf("%s[%d]", f.Name, i), item, path, depth)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Codec) encodeScalar(f Field, name string, raw any, path string, depth int) (any, error) {
	mismatch := func(actual string) error {
		return &TypeMismatchError{Path: path, Name: name, Expected: f.describeElem(), Actual: actual}
	}

	switch f.Kind {
	case KindBytes:
		switch b := raw.(type) {
		case HexBytes:
			return b.String(), nil
		case []byte:
			return HexBytes(b).String(), nil
		case nil:
			return HexBytes(nil).String(), nil
		}
		return nil, mismatch(fmt.Sprintf("%T", raw))

	case KindUint:
		n, ok := asUint(raw)
		if !ok {
			return nil, mismatch(fmt.Sprintf("%T", raw))
		}
		if f.Max > 0 && n > f.Max {
			return nil, mismatch(fmt.Sprintf("%d (maximum %d)", n, f.Max))
		}
		return n, nil

	case KindDecimal:
		s, ok := asText(raw)
		if !ok {
			return nil, mismatch(fmt.Sprintf("%T", raw))
		}
		d, err := ParseDecimal(s)
		if err != nil {
			return nil, mismatch(fmt.Sprintf("malformed decimal-string %q", s))
		}
		return string(d), nil

	case KindString:
		s, ok := asText(raw)
		if !ok {
			return nil, mismatch(fmt.Sprintf("%T", raw))
		}
		if !f.allows(s) {
			return nil, mismatch(fmt.Sprintf("%q", s))
		}
		return s, nil

	case KindObject:
		obj, ok := asObject(raw)
		if !ok || obj == nil {
			return nil, mismatch(fmt.Sprintf("%T", raw))
		}
		return cloneMap(obj), nil

	case KindVariant:
		v, ok := raw.(Variant)
		if !ok || isAbsent(v) {
			return nil, mismatch(fmt.Sprintf("%T", raw))
		}
		if v.Family() != f.Family {
			return nil, mismatch(fmt.Sprintf("%T", v))
		}
		return c.encodeVariant(v, joinPath(path, name), depth+1)

	default:
		return nil, fmt.Errorf("field %q: unsupported kind %d", name, f.Kind)
	}
}

// asText accepts strings and named string types such as enums.
func asText(raw any) (string, bool) {
	if s, ok := raw.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// isAbsent reports whether v is nil or a nil map, slice, pointer or interface.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
