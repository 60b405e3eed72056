package wallet

import (
	"github.com/brojonat/ledgerwire/service/block"
	"github.com/brojonat/ledgerwire/service/wire"
)

// TransactionProgress tags, in the order a wallet reports them while sending.
const (
	SelectingInputsTag wire.Tag = iota
	GeneratingRemainderDepositAddressTag
	PreparedTransactionTag
	PreparedTransactionEssenceHashTag
	SigningTransactionTag
	PerformingPowTag
	BroadcastingTag
)

// TransactionProgressFamily holds the stages of sending a transaction.
var TransactionProgressFamily = wire.NewFamily("TransactionProgress")

// TransactionProgress is one stage of sending a transaction.
type TransactionProgress interface {
	wire.Variant
	isTransactionProgress()
}

// SelectingInputs is the first stage: the wallet picks the outputs to spend.
type SelectingInputs struct{}

// GeneratingRemainderDepositAddress asks the user to confirm the remainder address.
type GeneratingRemainderDepositAddress struct {
	Address string
}

// PreparedTransaction carries the unsigned essence and the data needed to sign it.
// InputsData and Remainder are owned by the signer and are not interpreted here.
type PreparedTransaction struct {
	Essence    block.Essence
	InputsData []wire.Object
	Remainder  wire.Object // optional
}

// PreparedTransactionEssenceHash carries the hash a blind-signing device shows.
type PreparedTransactionEssenceHash struct {
	Hash wire.HexBytes
}

// SigningTransaction means the inputs are being signed.
type SigningTransaction struct{}

// PerformingPow means proof of work is being done for the block.
type PerformingPow struct{}

// Broadcasting is the last stage: the block is sent to the network.
type Broadcasting struct{}

func (SelectingInputs) Family() *wire.Family { return TransactionProgressFamily }
func (SelectingInputs) Tag() wire.Tag { return SelectingInputsTag }
func (SelectingInputs) isTransactionProgress() {}

func (GeneratingRemainderDepositAddress) Family() *wire.Family { return TransactionProgressFamily }
func (GeneratingRemainderDepositAddress) Tag() wire.Tag { return GeneratingRemainderDepositAddressTag }
func (GeneratingRemainderDepositAddress) isTransactionProgress() {}

func (PreparedTransaction) Family() *wire.Family { return TransactionProgressFamily }
func (PreparedTransaction) Tag() wire.Tag { return PreparedTransactionTag }
func (PreparedTransaction) isTransactionProgress() {}

func (PreparedTransactionEssenceHash) Family() *wire.Family { return TransactionProgressFamily }
func (PreparedTransactionEssenceHash) Tag() wire.Tag { return PreparedTransactionEssenceHashTag }
func (PreparedTransactionEssenceHash) isTransactionProgress() {}

func (SigningTransaction) Family() *wire.Family { return TransactionProgressFamily }
func (SigningTransaction) Tag() wire.Tag { return SigningTransactionTag }
func (SigningTransaction) isTransactionProgress() {}

func (PerformingPow) Family() *wire.Family { return TransactionProgressFamily }
func (PerformingPow) Tag() wire.Tag { return PerformingPowTag }
func (PerformingPow) isTransactionProgress() {}

func (Broadcasting) Family() *wire.Family { return TransactionProgressFamily }
func (Broadcasting) Tag() wire.Tag { return BroadcastingTag }
func (Broadcasting) isTransactionProgress() {}

func init() {
	TransactionProgressFamily.MustRegister(
		emptyShape(SelectingInputsTag, "SelectingInputs", SelectingInputs{}),
		wire.NewShape(GeneratingRemainderDepositAddressTag, "GeneratingRemainderDepositAddress",
			[]wire.Field{wire.StringField("address")},
			func(v wire.Values) GeneratingRemainderDepositAddress {
				return GeneratingRemainderDepositAddress{Address: v.Text("address")}
			},
			func(p GeneratingRemainderDepositAddress) wire.Values {
				return wire.Values{"address": p.Address}
			},
		),
		wire.NewShape(PreparedTransactionTag, "PreparedTransaction",
			[]wire.Field{
				wire.VariantField("essence", block.EssenceFamily),
				wire.ObjectField("inputsData").List(),
				wire.ObjectField("remainder").Opt(),
			},
			func(v wire.Values) PreparedTransaction {
				return PreparedTransaction{
					Essence:    wire.Narrow[block.Essence](v.Variant("essence")),
					InputsData: v.Objects("inputsData"),
					Remainder:  v.Object("remainder"),
				}
			},
			func(p PreparedTransaction) wire.Values {
				return wire.Values{"essence": p.Essence, "inputsData": p.InputsData, "remainder": p.Remainder}
			},
		),
		wire.NewShape(PreparedTransactionEssenceHashTag, "PreparedTransactionEssenceHash",
			[]wire.Field{wire.BytesField("hash")},
			func(v wire.Values) PreparedTransactionEssenceHash {
				return PreparedTransactionEssenceHash{Hash: v.Bytes("hash")}
			},
			func(p PreparedTransactionEssenceHash) wire.Values {
				return wire.Values{"hash": p.Hash}
			},
		),
		emptyShape(SigningTransactionTag, "SigningTransaction", SigningTransaction{}),
		emptyShape(PerformingPowTag, "PerformingPow", PerformingPow{}),
		emptyShape(BroadcastingTag, "Broadcasting", Broadcasting{}),
	).Seal()
}

// emptyShape describes a variant that carries nothing but its tag.
func emptyShape[T wire.Variant](tag wire.Tag, name string, zero T) wire.Shape {
	return wire.NewShape(tag, name, nil,
		func(wire.Values) T { return zero },
		func(T) wire.Values { return wire.Values{} },
	)
}

// DecodeTransactionProgress decodes a TransactionProgress envelope with c.
func DecodeTransactionProgress(c *wire.Codec, env wire.Envelope) (TransactionProgress, error) {
	return wire.DecodeAs[TransactionProgress](c, TransactionProgressFamily, env)
}

// Stage returns the position of p in the send sequence, starting at 0.
func Stage(p TransactionProgress) int {
	return int(p.Tag())
}

// IsInitialStage reports whether p starts a send.
func IsInitialStage(p TransactionProgress) bool {
	_, ok := p.(SelectingInputs)
	return ok
}

// IsTerminalStage reports whether p is the last stage of a send.
func IsTerminalStage(p TransactionProgress) bool {
	_, ok := p.(Broadcasting)
	return ok
}

// Follows reports whether next may be reported after prev within one send.
// Stages only move forward, but a wallet may skip stages it does not need
// (for example there is no remainder address when the inputs match exactly).
func Follows(prev, next TransactionProgress) bool {
	return Stage(next) > Stage(prev)
}
