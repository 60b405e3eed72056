package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/ledgerwire/service/metrics"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing wallet events to NATS.
type Publisher interface {
	// PublishEvent publishes a single event to JetStream on the subject
	// "wallet.events.{accountIndex}".
	PublishEvent(ctx context.Context, event wallet.Event) error

	// PublishEventBatch publishes multiple events. Events that fail are logged and skipped.
	PublishEventBatch(ctx context.Context, events []wallet.Event) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes wallet events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	codec   *wire.Codec
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Connect dials NATS with the options shared by every component of this service.
func Connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. m may be nil.
func NewPublisher(natsURL string, codec *wire.Codec, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, js, err := Connect(natsURL, "ledgerwire-publisher")
	if err != nil {
		return nil, err
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		codec:   codec,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// StreamConfig is the configuration of the wallet event stream.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet events per account",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
	}
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	if _, err := p.js.CreateStream(ctx, StreamConfig()); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishEvent publishes a single wallet event.
func (p *JetStreamPublisher) PublishEvent(ctx context.Context, event wallet.Event) error {
	msg, err := NewEventMsg(p.codec, event)
	if err != nil {
		return err
	}
	return p.publish(ctx, msg)
}

// PublishEventWithID publishes event with a fixed message id, so publishing the same
// id twice stores the event once.
func (p *JetStreamPublisher) PublishEventWithID(ctx context.Context, id string, event wallet.Event) error {
	msg, err := NewEventMsgWithID(p.codec, id, event)
	if err != nil {
		return err
	}
	return p.publish(ctx, msg)
}

func (p *JetStreamPublisher) publish(ctx context.Context, msg *nats.Msg) error {
	start := time.Now()
	_, err := p.js.PublishMsg(ctx, msg)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(msg.Subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published wallet event",
		"subject", msg.Subject,
		"event_type", msg.Header.Get(EventTypeHeader),
		"msg_id", msg.Header.Get(nats.MsgIdHdr),
	)

	return nil
}

// PublishEventBatch publishes multiple events.
func (p *JetStreamPublisher) PublishEventBatch(ctx context.Context, events []wallet.Event) error {
	if len(events) == 0 {
		return nil
	}

	failed := 0
	for _, event := range events {
		if err := p.PublishEvent(ctx, event); err != nil {
			// Don't fail the entire batch on one error
			failed++
			p.logger.Error("failed to publish event in batch",
				"account", event.AccountIndex,
				"event_type", wire.VariantName(event.Event),
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published event batch",
		"count", len(events),
		"failed", failed,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
