package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Delivery is one message taken off the wallet event stream.
// Err is set when the payload could not be decoded; Data still holds the raw bytes.
type Delivery struct {
	Subject   string
	EventType string
	Data      []byte
	Event     wallet.Event
	Err       error
}

// ConsumeOptions selects which messages a consumer receives.
type ConsumeOptions struct {
	// Account limits delivery to one account index. Empty means every account.
	Account string
	// Durable names a durable consumer. Empty creates an ephemeral one.
	Durable string
	// DeliverAll replays the retained stream instead of starting with new messages.
	DeliverAll bool
}

// Subscriber reads wallet events back from JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	codec  *wire.Codec
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming wallet events.
func NewSubscriber(natsURL string, codec *wire.Codec, logger *slog.Logger) (*Subscriber, error) {
	nc, js, err := Connect(natsURL, "ledgerwire-subscriber")
	if err != nil {
		return nil, err
	}

	logger.Info("NATS subscriber initialized", "url", natsURL)

	return &Subscriber{
		nc:     nc,
		js:     js,
		codec:  codec,
		logger: logger,
	}, nil
}

// ConsumerConfig builds the consumer configuration for opts.
func ConsumerConfig(opts ConsumeOptions) (jetstream.ConsumerConfig, error) {
	filter, err := FilterSubject(opts.Account)
	if err != nil {
		return jetstream.ConsumerConfig{}, err
	}

	cfg := jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if opts.DeliverAll {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	return cfg, nil
}

// Consume creates a consumer and delivers decoded events on the returned channel
// until ctx is done. The channel is never closed; callers select on ctx as well.
func (s *Subscriber) Consume(ctx context.Context, opts ConsumeOptions) (<-chan Delivery, error) {
	cfg, err := ConsumerConfig(opts)
	if err != nil {
		return nil, err
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	deliveries := make(chan Delivery, 10)
	consCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		d := s.delivery(msg)
		if d.Err != nil {
			s.logger.Warn("failed to decode wallet event",
				"subject", d.Subject,
				"error", d.Err,
			)
		}
		if err := msg.Ack(); err != nil {
			s.logger.Error("failed to ack message", "error", err)
		}
		select {
		case deliveries <- d:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		consCtx.Stop()
	}()

	s.logger.Debug("consumer started",
		"stream", StreamName,
		"filter", cfg.FilterSubject,
		"durable", cfg.Durable,
	)

	return deliveries, nil
}

// StreamInfo returns the state of the wallet event stream.
func (s *Subscriber) StreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := s.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}
	return info, nil
}

func (s *Subscriber) delivery(msg jetstream.Msg) Delivery {
	d := Delivery{
		Subject: msg.Subject(),
		Data:    msg.Data(),
	}
	if h := msg.Headers(); h != nil {
		d.EventType = h.Get(EventTypeHeader)
	}
	d.Event, d.Err = DecodeMessage(s.codec, d.Data)
	if d.Err == nil && d.EventType == "" {
		d.EventType = wire.VariantName(d.Event.Event)
	}
	return d
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
