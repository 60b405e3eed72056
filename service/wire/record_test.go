package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type holder struct {
	Index uint32
	Item  node
}

var holderRecord = NewRecord("Holder",
	[]Field{UintField("index").Bound(1<<32 - 1), VariantField("item", nodeFamily)},
	func(v Values) holder {
		h := holder{Index: uint32(v.Uint("index"))}
		if x := v.Variant("item"); x != nil {
			h.Item = x.(node)
		}
		return h
	},
	func(h holder) Values {
		return Values{"index": uint64(h.Index), "item": h.Item}
	},
)

func TestRecord_RoundTrip(t *testing.T) {
	in := []byte(`{"index":4294967295,"item":{"type":0,"id":"0xff","count":9}}`)

	h, err := UnmarshalRecord(Default, holderRecord, in)
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), h.Index)
	assert.Equal(t, leaf{ID: HexBytes{0xff}, Count: 9}, h.Item)

	out, err := MarshalRecord(Default, holderRecord, h)
	require.NoError(t, err)
	assert.Equal(t, `{"index":4294967295,"item":{"type":0,"count":9,"id":"0xff"}}`, string(out))

	assert.Equal(t, "Holder", holderRecord.Name())
	assert.Len(t, holderRecord.Fields(), 2)
}

func TestRecord_Errors(t *testing.T) {
	_, err := UnmarshalRecord(Default, holderRecord, []byte(`{"index":4294967296,"item":{"type":0,"id":"0x","count":0}}`))
	require.Error(t, err)
	assert.Equal(t, ErrKindTypeMismatch, ErrorKind(err))

	_, err = UnmarshalRecord(Default, holderRecord, []byte(`{"index":1}`))
	missing, ok := IsMissingField(err)
	require.True(t, ok)
	assert.Equal(t, "item", missing.Name)

	_, err = UnmarshalRecord(Default, holderRecord, []byte(`{"index":1,"item":{"type":8}}`))
	uv, ok := IsUnknownVariant(err)
	require.True(t, ok)
	assert.Equal(t, "item", uv.Path)

	// The type key is not part of a record, so strict mode rejects it.
	_, err = UnmarshalRecord(Default.WithStrict(true), holderRecord, []byte(`{"type":0,"index":1,"item":{"type":0,"id":"0x","count":0}}`))
	assert.Equal(t, ErrKindUnexpectedField, ErrorKind(err))

	_, err = EncodeRecord(Default, holderRecord, holder{Index: 1})
	missing, ok = IsMissingField(err)
	require.True(t, ok)
	assert.Equal(t, "item", missing.Name)
}
