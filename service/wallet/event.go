// Package wallet defines the events a wallet emits per account: the WalletEvent
// and TransactionProgress variant families and the Event aggregate.
package wallet

import (
	"math"

	"github.com/brojonat/ledgerwire/service/block"
	"github.com/brojonat/ledgerwire/service/wire"
)

// WalletEvent tags.
const (
	ConsolidationRequiredTag wire.Tag = iota
	LedgerAddressGenerationTag
	NewOutputTag
	SpentOutputTag
	TransactionInclusionTag
	TransactionProgressTag
)

// InclusionState is the ledger inclusion state of a transaction.
type InclusionState string

const (
	InclusionPending       InclusionState = "Pending"
	InclusionConfirmed     InclusionState = "Confirmed"
	InclusionConflicting   InclusionState = "Conflicting"
	InclusionUnknownPruned InclusionState = "UnknownPruned"
)

var inclusionStates = []string{
	string(InclusionPending),
	string(InclusionConfirmed),
	string(InclusionConflicting),
	string(InclusionUnknownPruned),
}

// WalletEventFamily holds the wallet event variants.
var WalletEventFamily = wire.NewFamily("WalletEvent")

// WalletEvent is something that happened to an account.
type WalletEvent interface {
	wire.Variant
	isWalletEvent()
}

// ConsolidationRequired asks the user to consolidate the account outputs.
type ConsolidationRequired struct{}

// LedgerAddressGeneration asks the user to confirm an address on a hardware wallet.
type LedgerAddressGeneration struct {
	Address string
}

// NewOutput reports an output received by the account. Transaction and
// TransactionInputs are only set when the wallet has them.
type NewOutput struct {
	Output            wire.Object
	Transaction       block.Payload
	TransactionInputs []wire.Object
}

// SpentOutput reports an output of the account that was spent.
type SpentOutput struct {
	Output wire.Object
}

// TransactionInclusion reports a change of the inclusion state of a transaction.
type TransactionInclusion struct {
	TransactionID  wire.HexBytes
	InclusionState InclusionState
}

// TransactionProgressEvent wraps a stage of an outgoing transaction.
type TransactionProgressEvent struct {
	Progress TransactionProgress
}

func (ConsolidationRequired) Family() *wire.Family { return WalletEventFamily }
func (ConsolidationRequired) Tag() wire.Tag { return ConsolidationRequiredTag }
func (ConsolidationRequired) isWalletEvent() {}

func (LedgerAddressGeneration) Family() *wire.Family { return WalletEventFamily }
func (LedgerAddressGeneration) Tag() wire.Tag { return LedgerAddressGenerationTag }
func (LedgerAddressGeneration) isWalletEvent() {}

func (NewOutput) Family() *wire.Family { return WalletEventFamily }
func (NewOutput) Tag() wire.Tag { return NewOutputTag }
func (NewOutput) isWalletEvent() {}

func (SpentOutput) Family() *wire.Family { return WalletEventFamily }
func (SpentOutput) Tag() wire.Tag { return SpentOutputTag }
func (SpentOutput) isWalletEvent() {}

func (TransactionInclusion) Family() *wire.Family { return WalletEventFamily }
func (TransactionInclusion) Tag() wire.Tag { return TransactionInclusionTag }
func (TransactionInclusion) isWalletEvent() {}

func (TransactionProgressEvent) Family() *wire.Family { return WalletEventFamily }
func (TransactionProgressEvent) Tag() wire.Tag { return TransactionProgressTag }
func (TransactionProgressEvent) isWalletEvent() {}

func init() {
	WalletEventFamily.MustRegister(
		emptyShape(ConsolidationRequiredTag, "ConsolidationRequired", ConsolidationRequired{}),
		wire.NewShape(LedgerAddressGenerationTag, "LedgerAddressGeneration",
			[]wire.Field{wire.StringField("address")},
			func(v wire.Values) LedgerAddressGeneration {
				return LedgerAddressGeneration{Address: v.Text("address")}
			},
			func(e LedgerAddressGeneration) wire.Values {
				return wire.Values{"address": e.Address}
			},
		),
		wire.NewShape(NewOutputTag, "NewOutput",
			[]wire.Field{
				wire.ObjectField("output"),
				wire.VariantField("transaction", block.PayloadFamily).Opt(),
				wire.ObjectField("transactionInputs").List().Opt(),
			},
			func(v wire.Values) NewOutput {
				return NewOutput{
					Output:            v.Object("output"),
					Transaction:       wire.Narrow[block.Payload](v.Variant("transaction")),
					TransactionInputs: v.Objects("transactionInputs"),
				}
			},
			func(e NewOutput) wire.Values {
				return wire.Values{
					"output":            e.Output,
					"transaction":       e.Transaction,
					"transactionInputs": e.TransactionInputs,
				}
			},
		),
		wire.NewShape(SpentOutputTag, "SpentOutput",
			[]wire.Field{wire.ObjectField("output")},
			func(v wire.Values) SpentOutput {
				return SpentOutput{Output: v.Object("output")}
			},
			func(e SpentOutput) wire.Values {
				return wire.Values{"output": e.Output}
			},
		),
		wire.NewShape(TransactionInclusionTag, "TransactionInclusion",
			[]wire.Field{
				wire.BytesField("transactionId"),
				wire.StringField("inclusionState").OneOf(inclusionStates...),
			},
			func(v wire.Values) TransactionInclusion {
				return TransactionInclusion{
					TransactionID:  v.Bytes("transactionId"),
					InclusionState: InclusionState(v.Text("inclusionState")),
				}
			},
			func(e TransactionInclusion) wire.Values {
				return wire.Values{"transactionId": e.TransactionID, "inclusionState": e.InclusionState}
			},
		),
		wire.NewShape(TransactionProgressTag, "TransactionProgress",
			[]wire.Field{wire.VariantField("progress", TransactionProgressFamily)},
			func(v wire.Values) TransactionProgressEvent {
				return TransactionProgressEvent{Progress: wire.Narrow[TransactionProgress](v.Variant("progress"))}
			},
			func(e TransactionProgressEvent) wire.Values {
				return wire.Values{"progress": e.Progress}
			},
		),
	).Seal()
}

// DecodeWalletEvent decodes a WalletEvent envelope with c.
func DecodeWalletEvent(c *wire.Codec, env wire.Envelope) (WalletEvent, error) {
	return wire.DecodeAs[WalletEvent](c, WalletEventFamily, env)
}

// Event is a wallet event together with the account it belongs to.
type Event struct {
	AccountIndex uint32
	Event        WalletEvent
}

// Progress returns the transaction progress carried by e, if any.
func (e Event) Progress() (TransactionProgress, bool) {
	p, ok := e.Event.(TransactionProgressEvent)
	if !ok || p.Progress == nil {
		return nil, false
	}
	return p.Progress, true
}

// EventRecord describes the Event envelope.
var EventRecord = wire.NewRecord("Event",
	[]wire.Field{
		wire.UintField("accountIndex").Bound(math.MaxUint32),
		wire.VariantField("event", WalletEventFamily),
	},
	func(v wire.Values) Event {
		return Event{
			AccountIndex: uint32(v.Uint("accountIndex")),
			Event:        wire.Narrow[WalletEvent](v.Variant("event")),
		}
	},
	func(e Event) wire.Values {
		return wire.Values{"accountIndex": uint64(e.AccountIndex), "event": e.Event}
	},
)

// DecodeEvent decodes an Event envelope with c.
func DecodeEvent(c *wire.Codec, env wire.Envelope) (Event, error) {
	return wire.DecodeRecord(c, EventRecord, env)
}

// EncodeEvent returns the envelope of e.
func EncodeEvent(c *wire.Codec, e Event) (wire.Envelope, error) {
	return wire.EncodeRecord(c, EventRecord, e)
}

// UnmarshalEvent parses and decodes an Event with c.
func UnmarshalEvent(c *wire.Codec, data []byte) (Event, error) {
	return wire.UnmarshalRecord(c, EventRecord, data)
}

// MarshalEvent encodes e to compact JSON with c.
func MarshalEvent(c *wire.Codec, e Event) ([]byte, error) {
	return wire.MarshalRecord(c, EventRecord, e)
}

// MarshalJSON encodes the event with the default codec.
func (e Event) MarshalJSON() ([]byte, error) {
	return MarshalEvent(wire.Default, e)
}

// UnmarshalJSON decodes the event with the default codec.
func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := UnmarshalEvent(wire.Default, data)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
