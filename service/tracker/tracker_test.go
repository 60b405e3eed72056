package tracker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/brojonat/ledgerwire/service/metrics"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func progressEvent(account uint32, p wallet.TransactionProgress) wallet.Event {
	return wallet.Event{AccountIndex: account, Event: wallet.TransactionProgressEvent{Progress: p}}
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestClassify(t *testing.T) {
	at := func(p wallet.TransactionProgress) State {
		return State{Stage: wallet.Stage(p), Variant: wire.VariantName(p)}
	}

	tests := []struct {
		name    string
		prev    State
		hasPrev bool
		next    wallet.TransactionProgress
		want    Result
	}{
		{"no previous", State{}, false, wallet.SigningTransaction{}, ResultFirst},
		{"next stage", at(wallet.SelectingInputs{}), true, wallet.GeneratingRemainderDepositAddress{Address: "rms1"}, ResultForward},
		{"skipped stages", at(wallet.SelectingInputs{}), true, wallet.PreparedTransactionEssenceHash{}, ResultForward},
		{"restart after broadcast", at(wallet.Broadcasting{}), true, wallet.SelectingInputs{}, ResultRestart},
		{"restart from selecting", at(wallet.SelectingInputs{}), true, wallet.SelectingInputs{}, ResultRestart},
		{"backwards", at(wallet.PerformingPow{}), true, wallet.SigningTransaction{}, ResultRegression},
		{"repeated", at(wallet.SigningTransaction{}), true, wallet.SigningTransaction{}, ResultRegression},
		{"after terminal", at(wallet.Broadcasting{}), true, wallet.PerformingPow{}, ResultRegression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.prev, tt.hasPrev, tt.next))
		})
	}
}

func runSequence(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx := context.Background()

	steps := []struct {
		progress wallet.TransactionProgress
		want     Result
		previous string
	}{
		{wallet.SelectingInputs{}, ResultFirst, ""},
		{wallet.SigningTransaction{}, ResultForward, "SelectingInputs"},
		{wallet.PerformingPow{}, ResultForward, "SigningTransaction"},
		{wallet.SigningTransaction{}, ResultRegression, "PerformingPow"},
		{wallet.Broadcasting{}, ResultForward, "SigningTransaction"},
		{wallet.SelectingInputs{}, ResultRestart, "Broadcasting"},
	}

	for i, step := range steps {
		got, err := tr.Observe(ctx, progressEvent(7, step.progress))
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.want, got.Result, "step %d", i)
		assert.Equal(t, step.previous, got.Previous, "step %d", i)
		assert.Equal(t, wire.VariantName(step.progress), got.Current, "step %d", i)
		assert.Equal(t, uint32(7), got.Account)
	}

	st, ok, err := tr.Current(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, st.Stage)
	assert.Equal(t, "SelectingInputs", st.Variant)

	// Other accounts are independent.
	got, err := tr.Observe(ctx, progressEvent(8, wallet.Broadcasting{}))
	require.NoError(t, err)
	assert.Equal(t, ResultFirst, got.Result)

	require.NoError(t, tr.Reset(ctx, 7))
	_, ok, err = tr.Current(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_MemoryStore(t *testing.T) {
	runSequence(t, New(NewMemoryStore(time.Hour), nil, testLogger()))
}

func TestTracker_RedisStore(t *testing.T) {
	client, mr := setupRedis(t)
	runSequence(t, New(NewRedisStore(client, time.Hour), nil, testLogger()))

	assert.True(t, mr.Exists(Key(8)))
	assert.Equal(t, time.Hour, mr.TTL(Key(8)))
	assert.False(t, mr.Exists(Key(7)))
}

func TestTracker_IgnoresOtherEvents(t *testing.T) {
	store := NewMemoryStore(0)
	tr := New(store, nil, testLogger())
	ctx := context.Background()

	got, err := tr.Observe(ctx, wallet.Event{AccountIndex: 1, Event: wallet.ConsolidationRequired{}})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, got.Result)
	assert.Empty(t, got.Current)

	_, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	tr := New(NewMemoryStore(0), m, testLogger())
	ctx := context.Background()

	_, err := tr.Observe(ctx, progressEvent(1, wallet.SelectingInputs{}))
	require.NoError(t, err)
	_, err = tr.Observe(ctx, progressEvent(1, wallet.PerformingPow{}))
	require.NoError(t, err)
	_, err = tr.Observe(ctx, progressEvent(1, wallet.SigningTransaction{}))
	require.NoError(t, err)
	_, err = tr.Observe(ctx, wallet.Event{AccountIndex: 1, Event: wallet.SpentOutput{Output: wire.MustObject(`{}`)}})
	require.NoError(t, err)

	expected := `
# HELP progress_transitions_total Total number of observed transaction progress transitions by classification
# TYPE progress_transitions_total counter
progress_transitions_total{result="first"} 1
progress_transitions_total{result="forward"} 1
progress_transitions_total{result="ignored"} 1
progress_transitions_total{result="regression"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "progress_transitions_total"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := store.Swap(ctx, 3, State{Stage: 2, Variant: "PreparedTransaction", UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(30 * time.Second)
	st, ok, err := store.Get(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, st.Stage)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Swap(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewRedisStore(client, 0)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, ok, err := store.Swap(ctx, 4, State{Stage: 1, Variant: "GeneratingRemainderDepositAddress", UpdatedAt: ts})
	require.NoError(t, err)
	assert.False(t, ok)

	prev, ok, err := store.Swap(ctx, 4, State{Stage: 4, Variant: "SigningTransaction", UpdatedAt: ts})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, State{Stage: 1, Variant: "GeneratingRemainderDepositAddress", UpdatedAt: ts}, prev)

	raw, err := mr.Get(Key(4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":4,"variant":"SigningTransaction","updated_at":"2024-01-01T12:00:00Z"}`, raw)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewRedisStore(client, 0)
	require.NoError(t, mr.Set(Key(5), "not json"))

	_, _, err := store.Get(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode progress state")
}

func TestRedisStore_Unavailable(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewRedisStore(client, 0)
	mr.Close()

	_, _, err := store.Swap(context.Background(), 1, State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to swap progress state")
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ledgerwire:progress:v1:42", Key(42))
}
