package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ledgerwire/service/metrics"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
)

// keepaliveInterval is how often an idle stream receives a comment line.
var keepaliveInterval = 10 * time.Second

// EventSource delivers wallet events from the stream. *nats.Subscriber implements it.
type EventSource interface {
	Consume(ctx context.Context, opts natspkg.ConsumeOptions) (<-chan natspkg.Delivery, error)
}

// SSEPublisher relays wallet events to Server-Sent Events clients.
type SSEPublisher struct {
	source  EventSource
	codec   *wire.Codec
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// StreamEvent is the data of one "wallet_event" SSE message.
type StreamEvent struct {
	Subject   string              `json:"subject"`
	EventType string              `json:"event_type"`
	Event     json.RawMessage     `json:"event"`
	Progress  *tracker.Transition `json:"progress,omitempty"`
}

// NewSSEPublisher creates an SSE publisher reading from source. m may be nil.
func NewSSEPublisher(source EventSource, codec *wire.Codec, m *metrics.Metrics, logger *slog.Logger) *SSEPublisher {
	return &SSEPublisher{
		source:  source,
		codec:   codec,
		metrics: m,
		logger:  logger,
	}
}

// Close closes the underlying source if it holds a connection.
func (p *SSEPublisher) Close() error {
	if c, ok := p.source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamEvents handles SSE streaming for wallet events.
// If the account path parameter is empty, streams all accounts. Otherwise, streams one account.
// Every relayed progress event is classified against the previous one seen on the same stream.
func handleStreamEvents(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		accountDesc := account
		if account == "" {
			accountDesc = "all"
		}

		if _, err := natspkg.FilterSubject(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		deliveries, err := publisher.source.Consume(ctx, natspkg.ConsumeOptions{Account: account})
		if err != nil {
			logger.ErrorContext(ctx, "failed to create consumer",
				"account", accountDesc,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusBadGateway)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}

		if publisher.metrics != nil {
			publisher.metrics.RecordSSEConnectionChange(accountDesc, 1)
			defer publisher.metrics.RecordSSEConnectionChange(accountDesc, -1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"account", accountDesc,
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {\"account\":%q}\n\n", accountDesc)
		flush()

		// Per-stream classification; the shared tracker is fed by the ingest path.
		progress := tracker.New(tracker.NewMemoryStore(0), nil, logger)

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case d := <-deliveries:
				if d.Err != nil {
					logger.WarnContext(ctx, "skipping undecodable event",
						"subject", d.Subject,
						"error", d.Err,
					)
					continue
				}

				data, err := publisher.streamEvent(ctx, progress, d)
				if err != nil {
					logger.WarnContext(ctx, "failed to encode stream event",
						"subject", d.Subject,
						"error", err,
					)
					continue
				}

				fmt.Fprintf(w, "event: wallet_event\ndata: %s\n\n", data)
				flush()

				if publisher.metrics != nil {
					publisher.metrics.RecordSSEEventSent(accountDesc, d.EventType)
				}

				logger.DebugContext(ctx, "sent wallet event",
					"account", d.Event.AccountIndex,
					"event_type", d.EventType,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"account", accountDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

func (p *SSEPublisher) streamEvent(ctx context.Context, progress *tracker.Tracker, d natspkg.Delivery) ([]byte, error) {
	encoded, err := wallet.MarshalEvent(p.codec, d.Event)
	if err != nil {
		return nil, err
	}

	ev := StreamEvent{
		Subject:   d.Subject,
		EventType: d.EventType,
		Event:     encoded,
	}

	transition, err := progress.Observe(ctx, d.Event)
	if err != nil {
		return nil, err
	}
	if transition.Result != tracker.ResultIgnored {
		ev.Progress = &transition
	}

	return json.Marshal(ev)
}
