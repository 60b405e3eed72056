// Package schema names every shape that can be decoded from the outside, so the
// server and the CLI can select one by a stable string.
package schema

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brojonat/ledgerwire/service/block"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
)

// ErrUnknownSchema is returned by Lookup for names that are not in the catalog.
var ErrUnknownSchema = errors.New("unknown schema")

// Schema names.
const (
	Input               = "input"
	Payload             = "payload"
	Essence             = "essence"
	WalletEvent         = "wallet-event"
	TransactionProgress = "transaction-progress"
	Block               = "block"
	Event               = "event"
)

// Decoded is the result of decoding through the catalog.
type Decoded struct {
	Schema  string
	Variant string    // shape name for families, record name for records
	Tag     *wire.Tag // nil for records
	Value   any       // the typed value, e.g. block.Block or block.Input

	// Envelope is the value re-encoded in canonical form.
	Envelope wire.Envelope
}

// Entry is one decodable schema: a variant family or an untagged record.
type Entry struct {
	Name   string
	Family *wire.Family // nil for records
	fields []wire.Field

	decode func(c *wire.Codec, env wire.Envelope) (Decoded, error)
}

// IsRecord reports whether the entry is an untagged aggregate.
func (e Entry) IsRecord() bool { return e.Family == nil }

// Fields returns the fields of a record entry.
func (e Entry) Fields() []wire.Field { return e.fields }

// Decode validates env against the entry and returns the typed value with its canonical envelope.
func (e Entry) Decode(c *wire.Codec, env wire.Envelope) (Decoded, error) {
	d, err := e.decode(c, env)
	if err != nil {
		return Decoded{}, err
	}
	d.Schema = e.Name
	return d, nil
}

// Unmarshal parses JSON and decodes it with Decode.
func (e Entry) Unmarshal(c *wire.Codec, data []byte) (Decoded, error) {
	env, err := wire.ParseEnvelope(data)
	if err != nil {
		return Decoded{}, err
	}
	return e.Decode(c, env)
}

func familyEntry(name string, f *wire.Family) Entry {
	return Entry{
		Name:   name,
		Family: f,
		decode: func(c *wire.Codec, env wire.Envelope) (Decoded, error) {
			v, err := c.Decode(f, env)
			if err != nil {
				return Decoded{}, err
			}
			canonical, err := c.Encode(v)
			if err != nil {
				return Decoded{}, fmt.Errorf("failed to re-encode %s: %w", name, err)
			}
			tag := v.Tag()
			return Decoded{Variant: wire.VariantName(v), Tag: &tag, Value: v, Envelope: canonical}, nil
		},
	}
}

func recordEntry[T any](name string, r *wire.Record[T]) Entry {
	return Entry{
		Name:   name,
		fields: r.Fields(),
		decode: func(c *wire.Codec, env wire.Envelope) (Decoded, error) {
			v, err := wire.DecodeRecord(c, r, env)
			if err != nil {
				return Decoded{}, err
			}
			canonical, err := wire.EncodeRecord(c, r, v)
			if err != nil {
				return Decoded{}, fmt.Errorf("failed to re-encode %s: %w", name, err)
			}
			return Decoded{Variant: r.Name(), Value: v, Envelope: canonical}, nil
		},
	}
}

var catalog = map[string]Entry{
	Input:               familyEntry(Input, block.InputFamily),
	Payload:             familyEntry(Payload, block.PayloadFamily),
	Essence:             familyEntry(Essence, block.EssenceFamily),
	WalletEvent:         familyEntry(WalletEvent, wallet.WalletEventFamily),
	TransactionProgress: familyEntry(TransactionProgress, wallet.TransactionProgressFamily),
	Block:               recordEntry(Block, block.BlockRecord),
	Event:               recordEntry(Event, wallet.EventRecord),
}

// Lookup returns the entry registered under name.
func Lookup(name string) (Entry, error) {
	e, ok := catalog[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownSchema, name, Names())
	}
	return e, nil
}

// Names lists the catalog in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every entry sorted by name.
func All() []Entry {
	names := Names()
	out := make([]Entry, len(names))
	for i, name := range names {
		out[i] = catalog[name]
	}
	return out
}
