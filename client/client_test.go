package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brojonat/ledgerwire/client"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/server"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*client.Client, *natspkg.MockPublisher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := natspkg.NewMockPublisher()
	tr := tracker.New(tracker.NewMemoryStore(0), nil, logger)

	srv := httptest.NewServer(server.New(":0", wire.Default, pub, nil, tr, nil, logger).Handler())
	t.Cleanup(srv.Close)

	return client.NewClient(srv.URL, nil, nil), pub
}

func TestDecode(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	out, err := c.Decode(ctx, "payload", []byte(`{"type":5,"tag":"0xAA","data":"0x01"}`), false)
	require.NoError(t, err)
	assert.Equal(t, "payload", out.Name)
	assert.Equal(t, "TaggedDataPayload", out.Variant)
	require.NotNil(t, out.Tag)
	assert.Equal(t, uint64(5), *out.Tag)
	assert.JSONEq(t, `{"type":5,"tag":"0xaa","data":"0x01"}`, string(out.Envelope))

	out, err = c.Decode(ctx, "event", []byte(`{"accountIndex":1,"event":{"type":0}}`), false)
	require.NoError(t, err)
	assert.Nil(t, out.Tag)
	assert.Equal(t, "Event", out.Variant)
}

func TestDecode_Rejected(t *testing.T) {
	c, _ := setup(t)

	_, err := c.Decode(context.Background(), "input", []byte(`{"type":1,"milestoneId":"0x00","x":1}`), true)
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, wire.ErrKindUnexpectedField, apiErr.Kind)
	assert.Equal(t, "x", apiErr.Field)
	assert.Contains(t, err.Error(), "unexpected_field")
}

func TestPublishEventAndProgress(t *testing.T) {
	c, pub := setup(t)
	ctx := context.Background()

	e := wallet.Event{
		AccountIndex: 12,
		Event: wallet.TransactionProgressEvent{
			Progress: wallet.PreparedTransactionEssenceHash{Hash: wire.MustParseHex("0x5f3a")},
		},
	}

	res, err := c.PublishEvent(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, "wallet.events.12", res.Subject)
	assert.Equal(t, "TransactionProgress", res.EventType)
	require.NotNil(t, res.Progress)
	assert.Equal(t, tracker.ResultFirst, res.Progress.Result)

	require.Len(t, pub.GetPublishedEvents(), 1)
	assert.Equal(t, e, pub.GetPublishedEvents()[0])

	state, err := c.Progress(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Stage)
	assert.Equal(t, "PreparedTransactionEssenceHash", state.Variant)

	_, err = c.Progress(ctx, 13)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestFamiliesAndHealth(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	infos, err := c.Families(ctx)
	require.NoError(t, err)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.ElementsMatch(t, []string{"block", "essence", "event", "input", "payload", "transaction-progress", "wallet-event"}, names)

	assert.NoError(t, c.Health(ctx))
}

func TestErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/v1/families":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "event publishing is not configured"})
		}
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL+"/", nil, nil)
	ctx := context.Background()

	err := c.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = c.Families(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500: boom")

	_, err = c.PublishEvent(ctx, wallet.Event{AccountIndex: 1, Event: wallet.ConsolidationRequired{}})
	require.Error(t, err)
	assert.Equal(t, "request failed: event publishing is not configured", err.Error())

	_, err = c.PublishEvent(ctx, wallet.Event{AccountIndex: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal event")
}

func TestStreamEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/events/4", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: connected\ndata: {\"account\":\"4\"}\n\n")
		io.WriteString(w, ": keepalive\n\n")
		io.WriteString(w, "event: wallet_event\ndata: {\"subject\":\"wallet.events.4\"}\n\n")
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, nil, nil)
	var got []client.StreamMessage
	err := c.StreamEvents(context.Background(), "4", func(m client.StreamMessage) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "connected", got[0].Event)
	assert.Equal(t, "wallet_event", got[1].Event)
	assert.JSONEq(t, `{"subject":"wallet.events.4"}`, got[1].Data)

	stop := errors.New("stop")
	err = c.StreamEvents(context.Background(), "4", func(m client.StreamMessage) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}
