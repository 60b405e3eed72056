package nats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the name of the JetStream stream for wallet events.
	StreamName = "WALLET_EVENTS"

	// SubjectPrefix prefixes the per-account subjects.
	SubjectPrefix = "wallet.events."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 7 * 24 * time.Hour

	// EventTypeHeader names the WalletEvent variant carried by a message.
	EventTypeHeader = "Ledgerwire-Event-Type"
)

// Subject returns the subject events of an account are published on.
func Subject(accountIndex uint32) string {
	return SubjectPrefix + strconv.FormatUint(uint64(accountIndex), 10)
}

// FilterSubject returns the consumer filter for account, or for all accounts when account is empty.
func FilterSubject(account string) (string, error) {
	if account == "" {
		return StreamSubjects, nil
	}
	idx, err := ParseAccount(account)
	if err != nil {
		return "", err
	}
	return Subject(idx), nil
}

// ParseAccount parses a decimal account index.
func ParseAccount(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid account index %q: %w", s, err)
	}
	return uint32(n), nil
}

// ParseSubject returns the account index encoded in a per-account subject.
func ParseSubject(subject string) (uint32, error) {
	rest, ok := strings.CutPrefix(subject, SubjectPrefix)
	if !ok {
		return 0, fmt.Errorf("subject %q is not a wallet event subject", subject)
	}
	return ParseAccount(rest)
}

// NewEventMsg encodes e into a message for its account subject with a fresh Nats-Msg-Id.
func NewEventMsg(c *wire.Codec, e wallet.Event) (*nats.Msg, error) {
	return NewEventMsgWithID(c, uuid.NewString(), e)
}

// NewEventMsgWithID is NewEventMsg with a caller-chosen Nats-Msg-Id. JetStream drops a
// second message with the same id inside the duplicate window.
func NewEventMsgWithID(c *wire.Codec, id string, e wallet.Event) (*nats.Msg, error) {
	if id == "" {
		return nil, fmt.Errorf("message id is required")
	}
	data, err := wallet.MarshalEvent(c, e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	msg := nats.NewMsg(Subject(e.AccountIndex))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, id)
	msg.Header.Set(EventTypeHeader, wire.VariantName(e.Event))
	return msg, nil
}

// DecodeMessage decodes the payload of a wallet event message.
func DecodeMessage(c *wire.Codec, data []byte) (wallet.Event, error) {
	e, err := wallet.UnmarshalEvent(c, data)
	if err != nil {
		return wallet.Event{}, fmt.Errorf("failed to decode event message: %w", err)
	}
	return e, nil
}
