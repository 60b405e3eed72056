package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no archived event matches.
var ErrNotFound = errors.New("event not found")

// Schema creates the archive table. It is safe to apply more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS wallet_events (
	message_id    TEXT PRIMARY KEY,
	account_index BIGINT NOT NULL,
	event_type    TEXT NOT NULL,
	tag           BIGINT NOT NULL,
	envelope      JSONB NOT NULL,
	received_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS wallet_events_account_received_idx
	ON wallet_events (account_index, received_at DESC);
`

// Store archives wallet events in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ArchivedEvent is one stored wallet event. Envelope is the canonical Event JSON.
type ArchivedEvent struct {
	MessageID    string          `json:"message_id"`
	AccountIndex uint32          `json:"account_index"`
	EventType    string          `json:"event_type"`
	Tag          uint64          `json:"tag"`
	Envelope     json.RawMessage `json:"envelope"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// Decode decodes the stored envelope back into an Event.
func (e *ArchivedEvent) Decode(c *wire.Codec) (wallet.Event, error) {
	return wallet.UnmarshalEvent(c, e.Envelope)
}

// InsertEventParams contains the parameters for archiving an event.
type InsertEventParams struct {
	MessageID    string
	AccountIndex uint32
	EventType    string
	Tag          uint64
	Envelope     json.RawMessage
}

// EventParams encodes e with c into insert parameters.
func EventParams(c *wire.Codec, messageID string, e wallet.Event) (InsertEventParams, error) {
	if messageID == "" {
		return InsertEventParams{}, fmt.Errorf("message id is required")
	}
	data, err := wallet.MarshalEvent(c, e)
	if err != nil {
		return InsertEventParams{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return InsertEventParams{
		MessageID:    messageID,
		AccountIndex: e.AccountIndex,
		EventType:    wire.VariantName(e.Event),
		Tag:          uint64(e.Event.Tag()),
		Envelope:     data,
	}, nil
}

// InsertEvent archives an event. inserted is false when the message id was already stored.
func (s *Store) InsertEvent(ctx context.Context, params InsertEventParams) (inserted bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_events (message_id, account_index, event_type, tag, envelope)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO NOTHING`,
		params.MessageID,
		int64(params.AccountIndex),
		params.EventType,
		int64(params.Tag),
		[]byte(params.Envelope),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetEvent retrieves an archived event by message id.
func (s *Store) GetEvent(ctx context.Context, messageID string) (*ArchivedEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT message_id, account_index, event_type, tag, envelope, received_at
		FROM wallet_events
		WHERE message_id = $1`, messageID)

	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEventsParams filters ListEvents. Zero values do not filter.
type ListEventsParams struct {
	AccountIndex *uint32
	EventType    string
	Since        *time.Time
	Limit        int32
}

// ListEvents returns archived events, newest first.
func (s *Store) ListEvents(ctx context.Context, params ListEventsParams) ([]*ArchivedEvent, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	var account *int64
	if params.AccountIndex != nil {
		v := int64(*params.AccountIndex)
		account = &v
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, account_index, event_type, tag, envelope, received_at
		FROM wallet_events
		WHERE ($1::BIGINT IS NULL OR account_index = $1)
		  AND ($2 = '' OR event_type = $2)
		  AND ($3::TIMESTAMPTZ IS NULL OR received_at >= $3)
		ORDER BY received_at DESC, message_id
		LIMIT $4`,
		account, params.EventType, params.Since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*ArchivedEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// CountEventsByType counts the archived events of an account per event type.
func (s *Store) CountEventsByType(ctx context.Context, accountIndex uint32) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, count(*)
		FROM wallet_events
		WHERE account_index = $1
		GROUP BY event_type`, int64(accountIndex))
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			eventType string
			n         int64
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	return counts, nil
}

// DeleteEventsBefore removes events received before the cutoff and returns how many were removed.
func (s *Store) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallet_events WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(row pgx.Row) (*ArchivedEvent, error) {
	var (
		e       ArchivedEvent
		account int64
		tag     int64
		data    []byte
	)
	if err := row.Scan(&e.MessageID, &account, &e.EventType, &tag, &data, &e.ReceivedAt); err != nil {
		return nil, err
	}
	e.AccountIndex = uint32(account)
	e.Tag = uint64(tag)
	e.Envelope = json.RawMessage(data)
	return &e, nil
}
