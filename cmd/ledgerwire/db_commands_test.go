package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/brojonat/ledgerwire/service/db"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.TestStore {
	t.Helper()

	// Skip by default - require explicit opt-in
	if os.Getenv("RUN_DB_TESTS") == "" {
		t.Skip("Skipping database integration test (set RUN_DB_TESTS=1 to enable)")
	}

	store := db.NewTestStore(t)
	t.Cleanup(store.Close)
	store.Cleanup(t)
	return store
}

func archived(t *testing.T, id, doc string) *db.ArchivedEvent {
	t.Helper()
	e, err := wallet.UnmarshalEvent(wire.Default, []byte(doc))
	require.NoError(t, err)
	params, err := db.EventParams(wire.Default, id, e)
	require.NoError(t, err)
	return &db.ArchivedEvent{
		MessageID:    params.MessageID,
		AccountIndex: params.AccountIndex,
		EventType:    params.EventType,
		Tag:          params.Tag,
		Envelope:     params.Envelope,
		ReceivedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestListParams(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		params, err := listParams("", "", "", 50)
		require.NoError(t, err)
		assert.Nil(t, params.AccountIndex)
		assert.Nil(t, params.Since)
		assert.Equal(t, int32(50), params.Limit)
	})

	t.Run("all filters", func(t *testing.T) {
		params, err := listParams("7", "TransactionProgress", "2026-01-02T03:04:05Z", 10)
		require.NoError(t, err)
		require.NotNil(t, params.AccountIndex)
		assert.Equal(t, uint32(7), *params.AccountIndex)
		assert.Equal(t, "TransactionProgress", params.EventType)
		require.NotNil(t, params.Since)
		assert.True(t, params.Since.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	})

	t.Run("invalid account", func(t *testing.T) {
		_, err := listParams("-1", "", "", 50)
		assert.Error(t, err)
	})

	t.Run("invalid since", func(t *testing.T) {
		_, err := listParams("", "", "yesterday", 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RFC3339")
	})
}

func TestPrintArchivedEvents(t *testing.T) {
	var buf bytes.Buffer
	printArchivedEvents(&buf, []*db.ArchivedEvent{
		archived(t, "ingest-1/0", progressDoc),
		archived(t, "ingest-1/1", inclusionDoc),
	})

	out := buf.String()
	assert.Contains(t, out, "RECEIVED")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "TransactionProgress")
	assert.Contains(t, out, "SelectingInputs")
	assert.Contains(t, out, "TransactionInclusion")
	assert.Contains(t, out, "ingest-1/1")

	buf.Reset()
	printArchivedEvents(&buf, nil)
	assert.Equal(t, "No events found\n", buf.String())
}

func TestEventDetail(t *testing.T) {
	assert.Equal(t, "SelectingInputs", eventDetail(archived(t, "a", progressDoc)))
	assert.Equal(t, "-", eventDetail(archived(t, "b", inclusionDoc)))
	assert.Equal(t, "(undecodable)", eventDetail(&db.ArchivedEvent{Envelope: json.RawMessage(`{"accountIndex":1}`)}))
}

func TestPrintCounts(t *testing.T) {
	var buf bytes.Buffer
	printCounts(&buf, map[string]int64{"TransactionProgress": 3, "NewOutput": 1})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "NewOutput")
	assert.Contains(t, string(lines[2]), "TransactionProgress")
}

func TestDBCommands_RequireDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, args := range [][]string{
		{"ledgerwire", "db", "events"},
		{"ledgerwire", "db", "counts", "1"},
		{"ledgerwire", "db", "prune", "--older-than", "24h"},
		{"ledgerwire", "db", "migrate"},
	} {
		app, _, _ := testApp()
		err := app.Run(args)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "database-url is required")
	}
}

func TestDBCommands_ArgumentErrors(t *testing.T) {
	app, _, _ := testApp()
	err := app.Run([]string{"ledgerwire", "db", "counts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one argument")

	app, _, _ = testApp()
	err = app.Run([]string{"ledgerwire", "db", "events", "--since", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time format")
}

func TestDBCommands_Integration(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for id, doc := range map[string]string{
		"ingest-1/0": progressDoc,
		"ingest-1/1": inclusionDoc,
	} {
		e, err := wallet.UnmarshalEvent(wire.Default, []byte(doc))
		require.NoError(t, err)
		params, err := db.EventParams(wire.Default, id, e)
		require.NoError(t, err)
		_, err = store.InsertEvent(ctx, params)
		require.NoError(t, err)
	}

	dbURL := db.TestDatabaseURL()

	t.Run("events json", func(t *testing.T) {
		app, out, _ := testApp()
		require.NoError(t, app.Run([]string{"ledgerwire", "--json", "db", "--database-url", dbURL, "events", "3"}))

		var events []db.ArchivedEvent
		require.NoError(t, json.Unmarshal(out.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, "ingest-1/0", events[0].MessageID)
	})

	t.Run("counts", func(t *testing.T) {
		app, out, _ := testApp()
		require.NoError(t, app.Run([]string{"ledgerwire", "db", "--database-url", dbURL, "counts", "4"}))
		assert.Contains(t, out.String(), "TransactionInclusion")
	})

	t.Run("prune", func(t *testing.T) {
		store.MustExec(t, "UPDATE wallet_events SET received_at = now() - interval '48 hours' WHERE message_id = 'ingest-1/0'")

		app, out, _ := testApp()
		require.NoError(t, app.Run([]string{"ledgerwire", "db", "--database-url", dbURL, "prune", "--older-than", "24h"}))
		assert.Contains(t, out.String(), "Deleted 1 events")
	})

	t.Run("migrate", func(t *testing.T) {
		app, out, _ := testApp()
		require.NoError(t, app.Run([]string{"ledgerwire", "db", "--database-url", dbURL, "migrate"}))
		assert.Contains(t, out.String(), "up to date")
	})
}
