package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	deliveries chan natspkg.Delivery
	opts       chan natspkg.ConsumeOptions
	err        error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		deliveries: make(chan natspkg.Delivery, 10),
		opts:       make(chan natspkg.ConsumeOptions, 1),
	}
}

func (f *fakeSource) Consume(ctx context.Context, opts natspkg.ConsumeOptions) (<-chan natspkg.Delivery, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opts <- opts
	return f.deliveries, nil
}

func progressDelivery(account uint32, p wallet.TransactionProgress) natspkg.Delivery {
	return natspkg.Delivery{
		Subject:   natspkg.Subject(account),
		EventType: "TransactionProgress",
		Event:     wallet.Event{AccountIndex: account, Event: wallet.TransactionProgressEvent{Progress: p}},
	}
}

type sseMessage struct {
	event string
	data  string
}

// readMessages parses SSE messages until n have been read, skipping comments.
func readMessages(t *testing.T, r *bufio.Reader, n int) []sseMessage {
	t.Helper()
	var (
		out []sseMessage
		cur sseMessage
	)
	for len(out) < n {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if cur.event != "" {
				out = append(out, cur)
			}
			cur = sseMessage{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return out
}

func startStream(t *testing.T, source *fakeSource, path string) *bufio.Reader {
	t.Helper()
	sse := NewSSEPublisher(source, wire.Default, nil, testLogger())
	srv := httptest.NewServer(New(":0", wire.Default, nil, sse, nil, nil, testLogger()).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamEvents_RelaysWithProgress(t *testing.T) {
	source := newFakeSource()
	body := startStream(t, source, "/api/v1/stream/events/3")

	msgs := readMessages(t, body, 1)
	assert.Equal(t, "connected", msgs[0].event)
	assert.JSONEq(t, `{"account":"3"}`, msgs[0].data)

	select {
	case opts := <-source.opts:
		assert.Equal(t, "3", opts.Account)
	case <-time.After(time.Second):
		t.Fatal("consumer was not created")
	}

	source.deliveries <- progressDelivery(3, wallet.SelectingInputs{})
	source.deliveries <- natspkg.Delivery{Subject: "wallet.events.3", Err: errors.New("bad payload")}
	source.deliveries <- natspkg.Delivery{
		Subject:   "wallet.events.3",
		EventType: "ConsolidationRequired",
		Event:     wallet.Event{AccountIndex: 3, Event: wallet.ConsolidationRequired{}},
	}
	source.deliveries <- progressDelivery(3, wallet.PerformingPow{})

	msgs = readMessages(t, body, 3)
	for _, m := range msgs {
		assert.Equal(t, "wallet_event", m.event)
	}

	var first StreamEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].data), &first))
	assert.Equal(t, "wallet.events.3", first.Subject)
	assert.Equal(t, "TransactionProgress", first.EventType)
	assert.JSONEq(t, `{"accountIndex":3,"event":{"type":5,"progress":{"type":0}}}`, string(first.Event))
	require.NotNil(t, first.Progress)
	assert.Equal(t, "first", string(first.Progress.Result))

	var plain StreamEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[1].data), &plain))
	assert.Equal(t, "ConsolidationRequired", plain.EventType)
	assert.Nil(t, plain.Progress)

	var last StreamEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[2].data), &last))
	require.NotNil(t, last.Progress)
	assert.Equal(t, "forward", string(last.Progress.Result))
	assert.Equal(t, "SelectingInputs", last.Progress.Previous)
	assert.Equal(t, "PerformingPow", last.Progress.Current)
}

func TestStreamEvents_AllAccounts(t *testing.T) {
	source := newFakeSource()
	body := startStream(t, source, "/api/v1/stream/events")

	msgs := readMessages(t, body, 1)
	assert.JSONEq(t, `{"account":"all"}`, msgs[0].data)

	opts := <-source.opts
	assert.Empty(t, opts.Account)
}

func TestStreamEvents_Keepalive(t *testing.T) {
	old := keepaliveInterval
	keepaliveInterval = 10 * time.Millisecond
	t.Cleanup(func() { keepaliveInterval = old })

	body := startStream(t, newFakeSource(), "/api/v1/stream/events")
	readMessages(t, body, 1)

	line, err := body.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keepalive\n", line)
}

func TestStreamEvents_Rejections(t *testing.T) {
	source := newFakeSource()
	sse := NewSSEPublisher(source, wire.Default, nil, testLogger())
	h := New(":0", wire.Default, nil, sse, nil, nil, testLogger()).Handler()

	rec, out := do(t, h, http.MethodGet, "/api/v1/stream/events/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "invalid account index")

	source.err = errors.New("no stream")
	rec, out = do(t, h, http.MethodGet, "/api/v1/stream/events/1", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed to subscribe", out["error"])
}
