// Package block defines the block aggregate and the Input, Payload and Essence
// variant families it is built from.
package block

import "github.com/brojonat/ledgerwire/service/wire"

// Block is the unit of the ledger. Parents keeps the order it was received in.
type Block struct {
	ProtocolVersion uint8
	Parents         []wire.HexBytes
	Payload         Payload // optional
	Nonce           wire.Decimal
	BurnedMana      wire.Decimal
}

// BlockRecord describes the Block envelope.
var BlockRecord = wire.NewRecord("Block",
	[]wire.Field{
		wire.UintField("protocolVersion").Bound(255),
		wire.BytesField("parents").NonEmpty(),
		wire.VariantField("payload", PayloadFamily).Opt(),
		wire.DecimalField("nonce"),
		wire.DecimalField("burnedMana"),
	},
	func(v wire.Values) Block {
		return Block{
			ProtocolVersion: uint8(v.Uint("protocolVersion")),
			Parents:         v.BytesList("parents"),
			Payload:         wire.Narrow[Payload](v.Variant("payload")),
			Nonce:           v.Decimal("nonce"),
			BurnedMana:      v.Decimal("burnedMana"),
		}
	},
	func(b Block) wire.Values {
		return wire.Values{
			"protocolVersion": uint64(b.ProtocolVersion),
			"parents":         b.Parents,
			"payload":         b.Payload,
			"nonce":           b.Nonce,
			"burnedMana":      b.BurnedMana,
		}
	},
)

// DecodeBlock decodes a Block envelope with c.
func DecodeBlock(c *wire.Codec, env wire.Envelope) (Block, error) {
	return wire.DecodeRecord(c, BlockRecord, env)
}

// EncodeBlock returns the envelope of b.
func EncodeBlock(c *wire.Codec, b Block) (wire.Envelope, error) {
	return wire.EncodeRecord(c, BlockRecord, b)
}

// MarshalJSON encodes the block with the default codec.
func (b Block) MarshalJSON() ([]byte, error) {
	return wire.MarshalRecord(wire.Default, BlockRecord, b)
}

// UnmarshalJSON decodes the block with the default codec.
func (b *Block) UnmarshalJSON(data []byte) error {
	decoded, err := wire.UnmarshalRecord(wire.Default, BlockRecord, data)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}
