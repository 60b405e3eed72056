package block

import "github.com/brojonat/ledgerwire/service/wire"

// Payload tags. Tags 0 to 3 belong to payload kinds this client does not carry.
const (
	TreasuryTransactionPayloadTag wire.Tag = 4
	TaggedDataPayloadTag          wire.Tag = 5
	TransactionPayloadTag         wire.Tag = 6
)

// RegularTransactionEssenceTag is the only Essence tag.
const RegularTransactionEssenceTag wire.Tag = 1

var (
	// PayloadFamily holds the block payload variants.
	PayloadFamily = wire.NewFamily("Payload")

	// EssenceFamily holds the transaction essence variants.
	EssenceFamily = wire.NewFamily("Essence")
)

// Payload is the content carried by a block or a transaction essence.
type Payload interface {
	wire.Variant
	isPayload()
}

// Essence is the signed part of a transaction.
type Essence interface {
	wire.Variant
	isEssence()
}

// TreasuryTransactionPayload moves funds out of the treasury.
type TreasuryTransactionPayload struct {
	Input  Input
	Output wire.Object
}

// TaggedDataPayload carries arbitrary data under an application tag.
type TaggedDataPayload struct {
	DataTag wire.HexBytes // "tag" on the wire
	Data    wire.HexBytes
}

// TransactionPayload is a signed transaction.
type TransactionPayload struct {
	Essence Essence
	Unlocks []wire.Object
}

// RegularTransactionEssence lists what a transaction consumes and creates.
// Payload is optional and may itself be a TransactionPayload.
type RegularTransactionEssence struct {
	NetworkID        wire.Decimal
	InputsCommitment wire.HexBytes
	Inputs           []Input
	Outputs          []wire.Object
	Payload          Payload
}

func (TreasuryTransactionPayload) Family() *wire.Family { return PayloadFamily }
func (TreasuryTransactionPayload) Tag() wire.Tag { return TreasuryTransactionPayloadTag }
func (TreasuryTransactionPayload) isPayload() {}

func (TaggedDataPayload) Family() *wire.Family { return PayloadFamily }
func (TaggedDataPayload) Tag() wire.Tag { return TaggedDataPayloadTag }
func (TaggedDataPayload) isPayload() {}

func (TransactionPayload) Family() *wire.Family { return PayloadFamily }
func (TransactionPayload) Tag() wire.Tag { return TransactionPayloadTag }
func (TransactionPayload) isPayload() {}

func (RegularTransactionEssence) Family() *wire.Family { return EssenceFamily }
func (RegularTransactionEssence) Tag() wire.Tag { return RegularTransactionEssenceTag }
func (RegularTransactionEssence) isEssence() {}

func init() {
	PayloadFamily.MustRegister(
		wire.NewShape(TreasuryTransactionPayloadTag, "TreasuryTransactionPayload",
			[]wire.Field{
				wire.VariantField("input", InputFamily),
				wire.ObjectField("output"),
			},
			func(v wire.Values) TreasuryTransactionPayload {
				return TreasuryTransactionPayload{
					Input:  wire.Narrow[Input](v.Variant("input")),
					Output: v.Object("output"),
				}
			},
			func(p TreasuryTransactionPayload) wire.Values {
				return wire.Values{"input": p.Input, "output": p.Output}
			},
		),
		wire.NewShape(TaggedDataPayloadTag, "TaggedDataPayload",
			[]wire.Field{
				wire.BytesField("tag"),
				wire.BytesField("data"),
			},
			func(v wire.Values) TaggedDataPayload {
				return TaggedDataPayload{DataTag: v.Bytes("tag"), Data: v.Bytes("data")}
			},
			func(p TaggedDataPayload) wire.Values {
				return wire.Values{"tag": p.DataTag, "data": p.Data}
			},
		),
		wire.NewShape(TransactionPayloadTag, "TransactionPayload",
			[]wire.Field{
				wire.VariantField("essence", EssenceFamily),
				wire.ObjectField("unlocks").List(),
			},
			func(v wire.Values) TransactionPayload {
				return TransactionPayload{
					Essence: wire.Narrow[Essence](v.Variant("essence")),
					Unlocks: v.Objects("unlocks"),
				}
			},
			func(p TransactionPayload) wire.Values {
				return wire.Values{"essence": p.Essence, "unlocks": p.Unlocks}
			},
		),
	).Seal()

	EssenceFamily.MustRegister(
		wire.NewShape(RegularTransactionEssenceTag, "RegularTransactionEssence",
			[]wire.Field{
				wire.DecimalField("networkId"),
				wire.BytesField("inputsCommitment"),
				wire.VariantField("inputs", InputFamily).NonEmpty(),
				wire.ObjectField("outputs").NonEmpty(),
				wire.VariantField("payload", PayloadFamily).Opt(),
			},
			func(v wire.Values) RegularTransactionEssence {
				return RegularTransactionEssence{
					NetworkID:        v.Decimal("networkId"),
					InputsCommitment: v.Bytes("inputsCommitment"),
					Inputs:           wire.NarrowAll[Input](v.Variants("inputs")),
					Outputs:          v.Objects("outputs"),
					Payload:          wire.Narrow[Payload](v.Variant("payload")),
				}
			},
			func(e RegularTransactionEssence) wire.Values {
				return wire.Values{
					"networkId":        e.NetworkID,
					"inputsCommitment": e.InputsCommitment,
					"inputs":           wire.Widen(e.Inputs),
					"outputs":          e.Outputs,
					"payload":          e.Payload,
				}
			},
		),
	).Seal()
}

// DecodePayload decodes a Payload envelope with c.
func DecodePayload(c *wire.Codec, env wire.Envelope) (Payload, error) {
	return wire.DecodeAs[Payload](c, PayloadFamily, env)
}

// DecodeEssence decodes an Essence envelope with c.
func DecodeEssence(c *wire.Codec, env wire.Envelope) (Essence, error) {
	return wire.DecodeAs[Essence](c, EssenceFamily, env)
}

// UnmarshalPayload parses and decodes a Payload with the default codec.
func UnmarshalPayload(data []byte) (Payload, error) {
	return wire.UnmarshalAs[Payload](wire.Default, PayloadFamily, data)
}
