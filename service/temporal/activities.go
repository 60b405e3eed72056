package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/ledgerwire/service/db"
	"github.com/brojonat/ledgerwire/service/metrics"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// IngestEventsInput contains the input parameters for ingesting a batch of Event documents.
type IngestEventsInput struct {
	Documents []json.RawMessage `json:"documents"`
	Archive   bool              `json:"archive"` // store decoded events in Postgres
	Publish   bool              `json:"publish"` // publish decoded events to NATS
}

// IngestEventsResult summarizes an ingest run.
type IngestEventsResult struct {
	Received   int             `json:"received"`
	Decoded    int             `json:"decoded"`
	Failed     int             `json:"failed"`
	Archived   int             `json:"archived"`
	Duplicates int             `json:"duplicates"` // already archived under the same message id
	Published  int             `json:"published"`
	Failures   []DecodeFailure `json:"failures,omitempty"`
}

// DecodeFailure describes a document that did not decode.
type DecodeFailure struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// DecodedEvent is a decoded document and the message id it is archived and published under.
type DecodedEvent struct {
	Index     int          `json:"index"`
	MessageID string       `json:"message_id,omitempty"`
	Event     wallet.Event `json:"event"`
}

// DecodeEventsInput contains parameters for the DecodeEvents activity.
type DecodeEventsInput struct {
	Documents []json.RawMessage `json:"documents"`
}

// DecodeEventsResult contains the result of the DecodeEvents activity.
type DecodeEventsResult struct {
	Events   []DecodedEvent  `json:"events"`
	Failures []DecodeFailure `json:"failures"`
}

// ArchiveEventsInput contains parameters for the ArchiveEvents activity.
type ArchiveEventsInput struct {
	Events []DecodedEvent `json:"events"`
}

// ArchiveEventsResult contains the result of the ArchiveEvents activity.
type ArchiveEventsResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// PublishEventsInput contains parameters for the PublishEvents activity.
type PublishEventsInput struct {
	Events []DecodedEvent `json:"events"`
}

// PublishEventsResult contains the result of the PublishEvents activity.
type PublishEventsResult struct {
	Published int `json:"published"`
}

// ArchiveStore defines the database operations needed by activities.
// This allows for easy mocking in tests.
type ArchiveStore interface {
	InsertEvent(ctx context.Context, params db.InsertEventParams) (bool, error)
}

// EventPublisher defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type EventPublisher interface {
	PublishEventWithID(ctx context.Context, id string, event wallet.Event) error
}

// Activities holds the dependencies needed by Temporal activities.
// store and publisher may be nil when the worker runs without them.
type Activities struct {
	codec     *wire.Codec
	store     ArchiveStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(codec *wire.Codec, store ArchiveStore, publisher EventPublisher, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if codec == nil {
		codec = wire.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		codec:     codec,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// DecodeEvents decodes every document as an Event. Documents that do not decode are
// reported as failures; the activity itself only fails on cancellation.
func (a *Activities) DecodeEvents(ctx context.Context, input DecodeEventsInput) (*DecodeEventsResult, error) {
	defer a.recordDuration("DecodeEvents", time.Now())

	result := &DecodeEventsResult{
		Events:   make([]DecodedEvent, 0, len(input.Documents)),
		Failures: make([]DecodeFailure, 0),
	}

	for i, doc := range input.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e, err := wallet.UnmarshalEvent(a.codec, doc)
		if err != nil {
			field, path := wire.ErrorField(err)
			result.Failures = append(result.Failures, DecodeFailure{
				Index: i,
				Kind:  wire.ErrorKind(err),
				Field: field,
				Path:  path,
				Error: err.Error(),
			})
			continue
		}
		result.Events = append(result.Events, DecodedEvent{Index: i, Event: e})
	}

	a.logger.InfoContext(ctx, "decoded events",
		"received", len(input.Documents),
		"decoded", len(result.Events),
		"failed", len(result.Failures),
	)
	if a.metrics != nil {
		a.metrics.RecordIngestedEvents("decode", "success", len(result.Events))
		a.metrics.RecordIngestedEvents("decode", "error", len(result.Failures))
	}

	return result, nil
}

// ArchiveEvents stores events in the archive. Events already stored under the same
// message id are counted as duplicates, so a retried activity does not store twice.
func (a *Activities) ArchiveEvents(ctx context.Context, input ArchiveEventsInput) (*ArchiveEventsResult, error) {
	defer a.recordDuration("ArchiveEvents", time.Now())

	if a.store == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("archive store is not configured", "ArchiveDisabled", nil)
	}

	result := &ArchiveEventsResult{}
	for _, ev := range input.Events {
		params, err := db.EventParams(a.codec, ev.MessageID, ev.Event)
		if err != nil {
			return nil, temporalsdk.NewNonRetryableApplicationError(
				fmt.Sprintf("failed to prepare event %d: %v", ev.Index, err), "InvalidEvent", err)
		}

		inserted, err := a.store.InsertEvent(ctx, params)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to archive event",
				"message_id", ev.MessageID,
				"error", err,
			)
			return nil, fmt.Errorf("failed to archive event %s: %w", ev.MessageID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	a.logger.InfoContext(ctx, "archived events",
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
	)
	if a.metrics != nil {
		a.metrics.RecordIngestedEvents("archive", "inserted", result.Inserted)
		a.metrics.RecordIngestedEvents("archive", "duplicate", result.Duplicates)
	}

	return result, nil
}

// PublishEvents publishes events to NATS under their message ids.
func (a *Activities) PublishEvents(ctx context.Context, input PublishEventsInput) (*PublishEventsResult, error) {
	defer a.recordDuration("PublishEvents", time.Now())

	if a.publisher == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("publisher is not configured", "PublishDisabled", nil)
	}

	result := &PublishEventsResult{}
	for _, ev := range input.Events {
		if err := a.publisher.PublishEventWithID(ctx, ev.MessageID, ev.Event); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish event",
				"message_id", ev.MessageID,
				"account", ev.Event.AccountIndex,
				"error", err,
			)
			if a.metrics != nil {
				a.metrics.RecordIngestedEvents("publish", "error", 1)
			}
			return nil, fmt.Errorf("failed to publish event %s: %w", ev.MessageID, err)
		}
		result.Published++
	}

	a.logger.InfoContext(ctx, "published events", "count", result.Published)
	if a.metrics != nil {
		a.metrics.RecordIngestedEvents("publish", "success", result.Published)
	}

	return result, nil
}

func (a *Activities) recordDuration(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}
