package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

func (c *Codec) decodeVariant(f *Family, env map[string]any, path string, depth int) (Variant, error) {
	if depth > c.maxDepth {
		return nil, &DepthExceededError{Path: path, Max: c.maxDepth}
	}

	raw, present := env[TypeKey]
	if !present {
		return nil, &MissingFieldError{Path: path, Name: TypeKey}
	}
	tag, ok := asUint(raw)
	if !ok {
		return nil, &TypeMismatchError{Path: path, Name: TypeKey, Expected: "integer tag", Actual: describe(raw)}
	}

	shape, err := f.Resolve(Tag(tag))
	if err != nil {
		return nil, &UnknownVariantError{Family: f.Name(), Tag: Tag(tag), Path: path}
	}

	values, err := c.decodeFields(shape.Fields, env, path, depth, true)
	if err != nil {
		return nil, err
	}
	return shape.build(values), nil
}

func (c *Codec) decodeFields(fields []Field, env map[string]any, path string, depth int, tagged bool) (Values, error) {
	if c.strict {
		if err := checkUnexpected(fields, env, path, tagged); err != nil {
			return nil, err
		}
	}

	values := make(Values, len(fields))
	for _, f := range fields {
		raw, present := env[f.Name]
		if !present || raw == nil {
			if f.Optional {
				continue
			}
			if !present {
				return nil, &MissingFieldError{Path: path, Name: f.Name}
			}
			return nil, &TypeMismatchError{Path: path, Name: f.Name, Expected: f.Describe(), Actual: "null"}
		}

		v, err := c.decodeValue(f, raw, path, depth)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

func checkUnexpected(fields []Field, env map[string]any, path string, tagged bool) error {
	declared := make(map[string]struct{}, len(fields)+1)
	for _, f := range fields {
		declared[f.Name] = struct{}{}
	}
	if tagged {
		declared[TypeKey] = struct{}{}
	}

	// Sorted so the reported field does not depend on map iteration order.
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := declared[k]; !ok {
			return &UnexpectedFieldError{Path: path, Name: k}
		}
	}
	return nil
}

func (c *Codec) decodeValue(f Field, raw any, path string, depth int) (any, error) {
	if !f.Sequence {
		return c.decodeScalar(f, f.Name, raw, path, depth)
	}

	items, ok := asSlice(raw)
	if !ok {
		return nil, &TypeMismatchError{Path: path, Name: f.Name, Expected: f.Describe(), Actual: describe(raw)}
	}
	if len(items) < f.MinItems {
		return nil, &TypeMismatchError{Path: path, Name: f.Name, Expected: f.Describe(), Actual: "empty array"}
	}

	switch f.Kind {
	case KindBytes:
		return decodeList[HexBytes](c, f, items, path, depth)
	case KindUint:
		return decodeList[uint64](c, f, items, path, depth)
	case KindDecimal:
		return decodeList[Decimal](c, f, items, path, depth)
	case KindString:
		return decodeList[string](c, f, items, path, depth)
	case KindObject:
		return decodeList[Object](c, f, items, path, depth)
	case KindVariant:
		return decodeList[Variant](c, f, items, path, depth)
	default:
		return nil, fmt.Errorf("field %q: unsupported kind %d", f.Name, f.Kind)
	}
}

// decodeList decodes the elements of a sequence. A required empty array decodes
// to nil, which encodes back to it. An optional one stays non-nil so that it is
// not dropped on encode.
func decodeList[T any](c *Codec, f Field, items []any, path string, depth int) ([]T, error) {
	if len(items) == 0 && !f.Optional {
		return nil, nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		v, err := c.decodeScalar(f, fmt.Sprintf("%s[%d]", f.Name, i), item, path, depth)
		if err != nil {
			return nil, err
		}
		out[i] = v.(T)
	}
	return out, nil
}

// decodeScalar decodes one value of f's kind. name is the field name, indexed for sequence elements.
func (c *Codec) decodeScalar(f Field, name string, raw any, path string, depth int) (any, error) {
	mismatch := func(actual string) error {
		return &TypeMismatchError{Path: path, Name: name, Expected: f.describeElem(), Actual: actual}
	}

	switch f.Kind {
	case KindBytes:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		b, err := ParseHex(s)
		if err != nil {
			return nil, mismatch(fmt.Sprintf("malformed byte-string %q", s))
		}
		return b, nil

	case KindUint:
		n, ok := asUint(raw)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		if f.Max > 0 && n > f.Max {
			return nil, mismatch(fmt.Sprintf("%d (maximum %d)", n, f.Max))
		}
		return n, nil

	case KindDecimal:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		d, err := ParseDecimal(s)
		if err != nil {
			return nil, mismatch(fmt.Sprintf("malformed decimal-string %q", s))
		}
		return d, nil

	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		if !f.allows(s) {
			return nil, mismatch(fmt.Sprintf("%q", s))
		}
		return s, nil

	case KindObject:
		obj, ok := asObject(raw)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		return Object(cloneMap(obj)), nil

	case KindVariant:
		obj, ok := asObject(raw)
		if !ok {
			return nil, mismatch(describe(raw))
		}
		if f.Family == nil {
			return nil, fmt.Errorf("field %q: variant field without a family", name)
		}
		return c.decodeVariant(f.Family, obj, joinPath(path, name), depth+1)

	default:
		return nil, fmt.Errorf("field %q: unsupported kind %d", name, f.Kind)
	}
}

// asUint accepts JSON numbers and Go integers that are integral and non-negative.
func asUint(raw any) (uint64, bool) {
	switch n := raw.(type) {
	case json.Number:
		u, err := strconv.ParseUint(string(n), 10, 64)
		return u, err == nil
	case float64:
		return floatToUint(n)
	case float32:
		return floatToUint(float64(n))
	case int:
		return uint64(n), n >= 0
	case int8:
		return uint64(n), n >= 0
	case int16:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case Tag:
		return uint64(n), true
	}
	return 0, false
}

// floatToUint only accepts values that float64 represents exactly.
func floatToUint(f float64) (uint64, bool) {
	if f < 0 || f != math.Trunc(f) || f > 1<<53 {
		return 0, false
	}
	return uint64(f), true
}

func asObject(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case Envelope:
		return m, true
	case Object:
		return m, true
	}
	return nil, false
}

func asSlice(raw any) ([]any, bool) {
	if items, ok := raw.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// describe names the JSON type of raw for TypeMismatchError.Actual.
func describe(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		s := string(v)
		switch {
		case strings.HasPrefix(s, "-"):
			return "negative number"
		case strings.ContainsAny(s, ".eE"):
			return "non-integer number"
		}
		return "number"
	case float64:
		return describeFloat(v)
	case float32:
		return describeFloat(float64(v))
	case map[string]any, Envelope, Object:
		return "object"
	case []any:
		return "array"
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return "negative number"
		}
		return "number"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprintf("%T", raw)
}

func describeFloat(f float64) string {
	switch {
	case f < 0:
		return "negative number"
	case f != math.Trunc(f):
		return "non-integer number"
	}
	return "number"
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// cloneMap deep-copies JSON-shaped data so decoded values never alias caller input.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case Envelope:
		return cloneMap(x)
	case Object:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
