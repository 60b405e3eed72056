// Package tracker follows the TransactionProgress stages reported per account and
// classifies each update against the previous one.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/ledgerwire/service/metrics"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
)

// Result classifies a progress update.
type Result string

const (
	// ResultFirst is the first progress seen for an account.
	ResultFirst Result = "first"
	// ResultForward moves to a later stage.
	ResultForward Result = "forward"
	// ResultRestart is a SelectingInputs after any stage, i.e. a new send.
	ResultRestart Result = "restart"
	// ResultRegression repeats or goes back to an earlier stage without restarting.
	ResultRegression Result = "regression"
	// ResultIgnored is any event that carries no progress.
	ResultIgnored Result = "ignored"
)

// Transition is the outcome of observing one event.
type Transition struct {
	Account  uint32 `json:"account"`
	Result   Result `json:"result"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

// Classify compares the next stage with the previous state.
func Classify(prev State, hasPrev bool, next wallet.TransactionProgress) Result {
	switch {
	case !hasPrev:
		return ResultFirst
	case wallet.IsInitialStage(next):
		return ResultRestart
	case wallet.Stage(next) > prev.Stage:
		return ResultForward
	default:
		return ResultRegression
	}
}

// Tracker records progress per account in a Store.
type Tracker struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a tracker. m may be nil.
func New(store Store, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Observe classifies e and, when it carries progress, stores it as the account's latest stage.
func (t *Tracker) Observe(ctx context.Context, e wallet.Event) (Transition, error) {
	tr := Transition{Account: e.AccountIndex, Result: ResultIgnored}

	progress, ok := e.Progress()
	if !ok {
		t.record(tr.Result)
		return tr, nil
	}

	tr.Current = wire.VariantName(progress)
	next := State{
		Stage:     wallet.Stage(progress),
		Variant:   tr.Current,
		UpdatedAt: t.now().UTC(),
	}

	prev, hasPrev, err := t.store.Swap(ctx, e.AccountIndex, next)
	if err != nil {
		return Transition{}, err
	}
	if hasPrev {
		tr.Previous = prev.Variant
	}
	tr.Result = Classify(prev, hasPrev, progress)

	if tr.Result == ResultRegression {
		t.logger.Warn("transaction progress regressed",
			"account", e.AccountIndex,
			"previous", tr.Previous,
			"current", tr.Current,
		)
	} else {
		t.logger.Debug("transaction progress",
			"account", e.AccountIndex,
			"result", tr.Result,
			"current", tr.Current,
		)
	}

	t.record(tr.Result)
	return tr, nil
}

// Current returns the latest stored state of account.
func (t *Tracker) Current(ctx context.Context, account uint32) (State, bool, error) {
	return t.store.Get(ctx, account)
}

// Reset forgets account.
func (t *Tracker) Reset(ctx context.Context, account uint32) error {
	return t.store.Clear(ctx, account)
}

func (t *Tracker) record(r Result) {
	if t.metrics != nil {
		t.metrics.RecordProgressTransition(string(r))
	}
}
