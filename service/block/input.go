package block

import "github.com/brojonat/ledgerwire/service/wire"

// Input tags.
const (
	UTXOInputTag     wire.Tag = 0
	TreasuryInputTag wire.Tag = 1
)

// InputFamily holds the transaction input variants.
var InputFamily = wire.NewFamily("Input")

// Input is a reference to funds consumed by a transaction. It is implemented by
// UTXOInput and TreasuryInput only.
type Input interface {
	wire.Variant
	isInput()
}

// UTXOInput references an unspent output of an earlier transaction.
type UTXOInput struct {
	TransactionID          wire.HexBytes
	TransactionOutputIndex uint16
}

// TreasuryInput references the treasury output created by a milestone.
type TreasuryInput struct {
	MilestoneID wire.HexBytes
}

func (UTXOInput) Family() *wire.Family { return InputFamily }
func (UTXOInput) Tag() wire.Tag { return UTXOInputTag }
func (UTXOInput) isInput() {}

func (TreasuryInput) Family() *wire.Family { return InputFamily }
func (TreasuryInput) Tag() wire.Tag { return TreasuryInputTag }
func (TreasuryInput) isInput() {}

func init() {
	InputFamily.MustRegister(
		wire.NewShape(UTXOInputTag, "UTXOInput",
			[]wire.Field{
				wire.BytesField("transactionId"),
				wire.UintField("transactionOutputIndex").Bound(65535),
			},
			func(v wire.Values) UTXOInput {
				return UTXOInput{
					TransactionID:          v.Bytes("transactionId"),
					TransactionOutputIndex: uint16(v.Uint("transactionOutputIndex")),
				}
			},
			func(u UTXOInput) wire.Values {
				return wire.Values{
					"transactionId":          u.TransactionID,
					"transactionOutputIndex": uint64(u.TransactionOutputIndex),
				}
			},
		),
		wire.NewShape(TreasuryInputTag, "TreasuryInput",
			[]wire.Field{wire.BytesField("milestoneId")},
			func(v wire.Values) TreasuryInput {
				return TreasuryInput{MilestoneID: v.Bytes("milestoneId")}
			},
			func(t TreasuryInput) wire.Values {
				return wire.Values{"milestoneId": t.MilestoneID}
			},
		),
	).Seal()
}

// DecodeInput decodes an Input envelope with c.
func DecodeInput(c *wire.Codec, env wire.Envelope) (Input, error) {
	return wire.DecodeAs[Input](c, InputFamily, env)
}

// UnmarshalInput parses and decodes an Input with the default codec.
func UnmarshalInput(data []byte) (Input, error) {
	return wire.UnmarshalAs[Input](wire.Default, InputFamily, data)
}
