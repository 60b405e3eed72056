package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A small recursive family used to exercise the codec without the ledger packages.

var (
	nodeFamily  = NewFamily("Node")
	otherFamily = NewFamily("Other")
)

type node interface {
	Variant
	isNode()
}

type leaf struct {
	ID    HexBytes
	Count uint16
	Note  string
}

type branch struct {
	Label    string
	Amount   Decimal
	Children []node
	Extra    node
	Meta     Object
}

type stranger struct{}

func (leaf) Family() *Family { return nodeFamily }
func (leaf) Tag() Tag { return 0 }
func (leaf) isNode() {}
func (branch) Family() *Family { return nodeFamily }
func (branch) Tag() Tag { return 1 }
func (branch) isNode() {}
func (stranger) Family() *Family { return otherFamily }
func (stranger) Tag() Tag { return 0 }
func (stranger) isNode() {}

func toNodes(vs []Variant) []node {
	if vs == nil {
		return nil
	}
	out := make([]node, len(vs))
	for i, v := range vs {
		out[i] = v.(node)
	}
	return out
}

func init() {
	nodeFamily.MustRegister(
		NewShape(0, "Leaf",
			[]Field{BytesField("id"), UintField("count").Bound(65535), StringField("note").Opt().OneOf("a", "b")},
			func(v Values) leaf {
				return leaf{ID: v.Bytes("id"), Count: uint16(v.Uint("count")), Note: v.Text("note")}
			},
			func(l leaf) Values {
				vals := Values{"id": l.ID, "count": uint64(l.Count)}
				if l.Note != "" {
					vals["note"] = l.Note
				}
				return vals
			},
		),
		NewShape(1, "Branch",
			[]Field{
				StringField("label"),
				DecimalField("amount"),
				VariantField("children", nodeFamily).NonEmpty(),
				VariantField("extra", nodeFamily).Opt(),
				ObjectField("meta").Opt(),
			},
			func(v Values) branch {
				b := branch{
					Label:    v.Text("label"),
					Amount:   v.Decimal("amount"),
					Children: toNodes(v.Variants("children")),
					Meta:     v.Object("meta"),
				}
				if x := v.Variant("extra"); x != nil {
					b.Extra = x.(node)
				}
				return b
			},
			func(b branch) Values {
				children := make([]Variant, len(b.Children))
				for i, c := range b.Children {
					children[i] = c
				}
				return Values{"label": b.Label, "amount": b.Amount, "children": children, "extra": b.Extra, "meta": b.Meta}
			},
		),
	).Seal()

	otherFamily.MustRegister(NewShape(0, "Stranger", nil,
		func(Values) stranger { return stranger{} },
		func(stranger) Values { return Values{} },
	)).Seal()
}

func mustParse(t *testing.T, s string) Envelope {
	t.Helper()
	env, err := ParseEnvelope([]byte(s))
	require.NoError(t, err)
	return env
}

func TestDecode_Leaf(t *testing.T) {
	v, err := Default.Decode(nodeFamily, mustParse(t, `{"type":0,"id":"0xABcd","count":7}`))
	require.NoError(t, err)

	l, ok := v.(leaf)
	require.True(t, ok, "expected leaf, got %T", v)
	assert.Equal(t, HexBytes{0xab, 0xcd}, l.ID)
	assert.Equal(t, uint16(7), l.Count)
	assert.Empty(t, l.Note)
}

func TestDecode_NestedBranch(t *testing.T) {
	input := `{"type":1,"label":"root","amount":"1000000000000000000000","children":[
		{"type":0,"id":"0x01","count":1},
		{"type":1,"label":"inner","amount":"0","children":[{"type":0,"id":"0x","count":2}]}
	],"meta":{"k":[1,2,{"x":null}]}}`

	v, err := DecodeAs[node](Default, nodeFamily, mustParse(t, input))
	require.NoError(t, err)

	b := v.(branch)
	assert.Equal(t, "root", b.Label)
	assert.Equal(t, Decimal("1000000000000000000000"), b.Amount)
	require.Len(t, b.Children, 2)
	assert.IsType(t, leaf{}, b.Children[0])
	inner := b.Children[1].(branch)
	require.Len(t, inner.Children, 1)
	assert.Empty(t, inner.Children[0].(leaf).ID)
	assert.Nil(t, b.Extra)
	assert.Contains(t, b.Meta, "k")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		field    string
		path     string
		contains string
	}{
		{"missing type", `{"id":"0x01","count":1}`, ErrKindMissingField, "type", "", `missing field "type"`},
		{"null type", `{"type":null}`, ErrKindTypeMismatch, "type", "", "got null"},
		{"string type", `{"type":"0"}`, ErrKindTypeMismatch, "type", "", "got string"},
		{"negative type", `{"type":-1}`, ErrKindTypeMismatch, "type", "", "negative number"},
		{"fractional type", `{"type":1.5}`, ErrKindTypeMismatch, "type", "", "non-integer number"},
		{"unknown tag", `{"type":9}`, ErrKindUnknownVariant, "type", "", "unknown Node variant 9"},
		{"missing required", `{"type":0,"count":1}`, ErrKindMissingField, "id", "", `missing field "id"`},
		{"null required", `{"type":0,"id":null,"count":1}`, ErrKindTypeMismatch, "id", "", "got null"},
		{"hex without prefix", `{"type":0,"id":"abcd","count":1}`, ErrKindTypeMismatch, "id", "", "malformed byte-string"},
		{"odd hex", `{"type":0,"id":"0xabc","count":1}`, ErrKindTypeMismatch, "id", "", "malformed byte-string"},
		{"bytes as number", `{"type":0,"id":5,"count":1}`, ErrKindTypeMismatch, "id", "", "got number"},
		{"count above bound", `{"type":0,"id":"0x01","count":65536}`, ErrKindTypeMismatch, "count", "", "maximum 65535"},
		{"count as string", `{"type":0,"id":"0x01","count":"1"}`, ErrKindTypeMismatch, "count", "", "got string"},
		{"enum violation", `{"type":0,"id":"0x01","count":1,"note":"c"}`, ErrKindTypeMismatch, "note", "", `"c"`},
		{"decimal with sign", `{"type":1,"label":"x","amount":"-1","children":[{"type":0,"id":"0x","count":0}]}`, ErrKindTypeMismatch, "amount", "", "malformed decimal-string"},
		{"decimal as number", `{"type":1,"label":"x","amount":1,"children":[{"type":0,"id":"0x","count":0}]}`, ErrKindTypeMismatch, "amount", "", "got number"},
		{"empty children", `{"type":1,"label":"x","amount":"1","children":[]}`, ErrKindTypeMismatch, "children", "", "empty array"},
		{"children not array", `{"type":1,"label":"x","amount":"1","children":{}}`, ErrKindTypeMismatch, "children", "", "got object"},
		{"nested unknown", `{"type":1,"label":"x","amount":"1","children":[{"type":4}]}`, ErrKindUnknownVariant, "type", "children[0]", "at children[0]"},
		{"nested missing", `{"type":1,"label":"x","amount":"1","children":[{"type":0,"id":"0x"}]}`, ErrKindMissingField, "count", "children[0]", ""},
		{"element not object", `{"type":1,"label":"x","amount":"1","children":[3]}`, ErrKindTypeMismatch, "children[0]", "", "expected Node variant"},
		{"meta not object", `{"type":1,"label":"x","amount":"1","children":[{"type":0,"id":"0x","count":0}],"meta":[]}`, ErrKindTypeMismatch, "meta", "", "got array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Default.Decode(nodeFamily, mustParse(t, tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.kind, ErrorKind(err))
			name, path := ErrorField(err)
			assert.Equal(t, tt.field, name)
			assert.Equal(t, tt.path, path)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestDecode_NullOptionalIsAbsent(t *testing.T) {
	v, err := Default.Decode(nodeFamily, mustParse(t, `{"type":0,"id":"0x01","count":1,"note":null}`))
	require.NoError(t, err)
	assert.Empty(t, v.(leaf).Note)
}

func TestDecode_StrictMode(t *testing.T) {
	input := `{"type":0,"id":"0x01","count":1,"zeta":true,"alpha":1}`

	_, err := Default.Decode(nodeFamily, mustParse(t, input))
	require.NoError(t, err, "lenient codec ignores extra fields")

	_, err = Default.WithStrict(true).Decode(nodeFamily, mustParse(t, input))
	require.Error(t, err)
	assert.Equal(t, ErrKindUnexpectedField, ErrorKind(err))
	name, _ := ErrorField(err)
	assert.Equal(t, "alpha", name, "first undeclared key in sorted order")
	assert.False(t, Default.Strict())
}

func TestDecode_DepthGuard(t *testing.T) {
	nest := func(levels int) string {
		s := `{"type":0,"id":"0x","count":0}`
		for i := 0; i < levels; i++ {
			s = `{"type":1,"label":"l","amount":"0","children":[` + s + `]}`
		}
		return s
	}

	c := NewCodec(Options{MaxDepth: 3})
	assert.Equal(t, 3, c.MaxDepth())

	_, err := c.Decode(nodeFamily, mustParse(t, nest(3)))
	require.NoError(t, err)

	_, err = c.Decode(nodeFamily, mustParse(t, nest(4)))
	require.Error(t, err)
	assert.Equal(t, ErrKindDepthExceeded, ErrorKind(err))

	assert.Equal(t, DefaultMaxDepth, NewCodec(Options{}).MaxDepth())
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	env := mustParse(t, `{"type":1,"label":"x","amount":"1","children":[{"type":0,"id":"0x","count":0}],"meta":{"a":{"b":1}}}`)
	v, err := Default.Decode(nodeFamily, env)
	require.NoError(t, err)

	env["meta"].(map[string]any)["a"].(map[string]any)["b"] = "changed"
	assert.Equal(t, json.Number("1"), v.(branch).Meta["a"].(map[string]any)["b"])
}

func TestEncode_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"type":0,"count":7,"id":"0xabcd"}`,
		`{"type":0,"count":0,"id":"0x","note":"b"}`,
		`{"type":1,"amount":"340282366920938463463374607431768211455","children":[{"type":0,"count":1,"id":"0x01"}],"extra":{"type":0,"count":2,"id":"0x02"},"label":"r","meta":{"z":1,"a":[true,null]}}`,
	}

	for _, in := range inputs {
		v, err := Default.Unmarshal(nodeFamily, []byte(in))
		require.NoError(t, err)

		out, err := Default.Marshal(v)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(out), `{"type":`), "type tag first: %s", out)

		again, err := Default.Unmarshal(nodeFamily, out)
		require.NoError(t, err)
		assert.Equal(t, v, again)

		var want, got any
		require.NoError(t, json.Unmarshal([]byte(in), &want))
		require.NoError(t, json.Unmarshal(out, &got))
		assert.Equal(t, want, got)
	}
}

func TestEncode_CanonicalHexAndOmittedOptionals(t *testing.T) {
	v, err := Default.Unmarshal(nodeFamily, []byte(`{"type":0,"id":"0xABCD","count":3}`))
	require.NoError(t, err)

	out, err := Default.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"type":0,"count":3,"id":"0xabcd"}`, string(out))
}

func TestEncode_Errors(t *testing.T) {
	child := leaf{ID: HexBytes{1}, Count: 1}

	t.Run("empty required sequence", func(t *testing.T) {
		_, err := Default.Encode(branch{Label: "x", Amount: "1"})
		require.Error(t, err)
		assert.Equal(t, ErrKindTypeMismatch, ErrorKind(err))
	})

	t.Run("malformed decimal", func(t *testing.T) {
		_, err := Default.Encode(branch{Label: "x", Amount: "1e3", Children: []node{child}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed decimal-string")
	})

	t.Run("enum violation", func(t *testing.T) {
		_, err := Default.Encode(leaf{ID: HexBytes{1}, Note: "z"})
		require.Error(t, err)
		name, _ := ErrorField(err)
		assert.Equal(t, "note", name)
	})

	t.Run("nil variant", func(t *testing.T) {
		_, err := Default.Encode(nil)
		require.Error(t, err)
	})

	t.Run("variant from another family", func(t *testing.T) {
		_, err := Default.Encode(branch{Label: "x", Amount: "1", Children: []node{stranger{}}})
		require.Error(t, err)
		mismatch, ok := IsTypeMismatch(err)
		require.True(t, ok)
		assert.Equal(t, "children[0]", mismatch.Name)
		assert.Equal(t, "Node variant", mismatch.Expected)
	})

	t.Run("nil bytes encode as empty", func(t *testing.T) {
		env, err := Default.Encode(leaf{})
		require.NoError(t, err)
		assert.Equal(t, "0x", env["id"])
	})
}

func TestFamily_Register(t *testing.T) {
	f := NewFamily("Scratch")
	s := NewShape(3, "Three", nil,
		func(Values) stranger { return stranger{} },
		func(stranger) Values { return Values{} },
	)

	require.NoError(t, f.Register(s))

	err := f.Register(s)
	var dup *DuplicateTagError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, Tag(3), dup.Tag)
	assert.Equal(t, ErrKindDuplicateTag, ErrorKind(err))

	assert.Panics(t, func() { f.MustRegister(s) })

	f.Seal()
	assert.True(t, f.Sealed())
	err = f.Register(NewShape(4, "Four", nil,
		func(Values) stranger { return stranger{} },
		func(stranger) Values { return Values{} },
	))
	assert.True(t, errors.Is(err, ErrFamilySealed))

	err = NewFamily("Raw").Register(Shape{Tag: 1, Name: "bare"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NewShape")
}

func TestFamily_ShapesAndResolve(t *testing.T) {
	shapes := nodeFamily.Shapes()
	require.Len(t, shapes, 2)
	assert.Equal(t, "Leaf", shapes[0].Name)
	assert.Equal(t, "Branch", shapes[1].Name)

	_, err := nodeFamily.Resolve(2)
	uv, ok := IsUnknownVariant(err)
	require.True(t, ok)
	assert.Equal(t, "Node", uv.Family)

	assert.Equal(t, "Branch", VariantName(branch{}))
	assert.Equal(t, "unknown", VariantName(nil))
}

type recordingObserver struct {
	decodes []string
	encodes []string
}

func (r *recordingObserver) ObserveDecode(family, variant string, _ time.Duration, err error) {
	r.decodes = append(r.decodes, family+"/"+variant+"/"+outcome(err))
}

func (r *recordingObserver) ObserveEncode(family, variant string, _ time.Duration, err error) {
	r.encodes = append(r.encodes, family+"/"+variant+"/"+outcome(err))
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorKind(err)
}

func TestCodec_Observer(t *testing.T) {
	obs := &recordingObserver{}
	c := NewCodec(Options{Observer: obs})

	v, err := c.Decode(nodeFamily, mustParse(t, `{"type":0,"id":"0x","count":0}`))
	require.NoError(t, err)
	_, err = c.Decode(nodeFamily, mustParse(t, `{"type":7}`))
	require.Error(t, err)
	_, err = c.Encode(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"Node/Leaf/ok", "Node/unknown/unknown_variant"}, obs.decodes)
	assert.Equal(t, []string{"Node/Leaf/ok"}, obs.encodes)
}

func TestDecodeAs_WrongInterface(t *testing.T) {
	type other interface {
		Variant
		notImplemented()
	}
	_, err := DecodeAs[other](Default, nodeFamily, mustParse(t, `{"type":0,"id":"0x","count":0}`))
	require.Error(t, err)
	assert.Equal(t, ErrKindMalformed, ErrorKind(err))
}
