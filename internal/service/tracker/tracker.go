package tracker

import (
	"context"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/pkg/keylock"
)

// Observation is one gateway reading for a key.
type Observation struct {
	Key          models.SignalKey
	Signal       models.Signal
	Confidence   float64
	ModelVersion string
	ModelBacked  bool
}

// Tracker keeps the last-known signal per (pair, timeframe) and reports label changes.
type Tracker struct {
	store repository.SignalStateStore
	locks *keylock.Locker
	now   func() time.Time
}

// Option configures Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a Tracker over store.
func New(store repository.SignalStateStore, opts ...Option) *Tracker {
	t := &Tracker{store: store, locks: keylock.New(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records obs and returns a transition when the label differs from the stored one.
// The first observation of a key is stored without a transition. Same-label observations
// refresh confidence and model version in place.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (models.Transition, bool, error) {
	if !obs.Signal.Valid() {
		return models.Transition{}, false, models.Failuref(models.FailureInvalidInput, "tracker.observe", "unknown signal %q", obs.Signal)
	}

	unlock := t.locks.Lock(obs.Key.String())
	defer unlock()

	prev, found, err := t.store.Get(ctx, obs.Key)
	if err != nil {
		return models.Transition{}, false, fmt.Errorf("load state %s: %w", obs.Key, err)
	}

	cur := models.SignalState{
		Pair:         obs.Key.Pair,
		Timeframe:    obs.Key.Timeframe,
		Signal:       obs.Signal,
		Confidence:   obs.Confidence,
		ModelVersion: obs.ModelVersion,
		ModelBacked:  obs.ModelBacked,
		UpdatedAt:    t.now(),
	}
	if err := t.store.Put(ctx, cur); err != nil {
		return models.Transition{}, false, fmt.Errorf("store state %s: %w", obs.Key, err)
	}

	if !found || prev.Signal == cur.Signal {
		return models.Transition{}, false, nil
	}
	return models.Transition{Key: obs.Key, Previous: prev, Current: cur}, true, nil
}

// Current returns the stored state for key.
func (t *Tracker) Current(ctx context.Context, key models.SignalKey) (models.SignalState, bool, error) {
	return t.store.Get(ctx, key)
}
