package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eurusd1h = models.SignalKey{Pair: "EUR/USD", Timeframe: models.TF1h}

func obs(sig models.Signal, conf float64) Observation {
	return Observation{Key: eurusd1h, Signal: sig, Confidence: conf, ModelVersion: "v1", ModelBacked: true}
}

func TestTracker_FirstObservationNeverEmits(t *testing.T) {
	tr := New(repository.NewMemorySignalStateStore())

	_, changed, err := tr.Observe(context.Background(), obs(models.SignalLong, 0.8))
	require.NoError(t, err)
	assert.False(t, changed)

	st, ok, err := tr.Current(context.Background(), eurusd1h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.SignalLong, st.Signal)
}

func TestTracker_HoldLongLong(t *testing.T) {
	tr := New(repository.NewMemorySignalStateStore())
	ctx := context.Background()

	_, changed, err := tr.Observe(ctx, obs(models.SignalHold, 0.5))
	require.NoError(t, err)
	assert.False(t, changed)

	tn, changed, err := tr.Observe(ctx, obs(models.SignalLong, 0.72))
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, models.SignalHold, tn.Previous.Signal)
	assert.Equal(t, models.SignalLong, tn.Current.Signal)
	assert.Equal(t, 0.72, tn.Current.Confidence)
	assert.Equal(t, eurusd1h, tn.Key)

	_, changed, err = tr.Observe(ctx, obs(models.SignalLong, 0.9))
	require.NoError(t, err)
	assert.False(t, changed)

	st, _, err := tr.Current(ctx, eurusd1h)
	require.NoError(t, err)
	assert.Equal(t, 0.9, st.Confidence)
}

func TestTracker_EmitsIffLabelChanges(t *testing.T) {
	tr := New(repository.NewMemorySignalStateStore())
	ctx := context.Background()
	seq := []models.Signal{models.SignalLong, models.SignalLong, models.SignalShort, models.SignalHold, models.SignalHold, models.SignalLong}
	want := []bool{false, false, true, true, false, true}

	for i, s := range seq {
		_, changed, err := tr.Observe(ctx, obs(s, 0.6))
		require.NoError(t, err)
		assert.Equal(t, want[i], changed, "step %d", i)
	}
}

func TestTracker_RejectsUnknownSignal(t *testing.T) {
	tr := New(repository.NewMemorySignalStateStore())
	_, _, err := tr.Observe(context.Background(), obs(models.Signal("up"), 0.6))
	assert.Equal(t, models.FailureInvalidInput, models.KindOf(err))
}

func TestTracker_ConcurrentObserveSameKey(t *testing.T) {
	now := time.Now()
	tr := New(repository.NewMemorySignalStateStore(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_, _, err := tr.Observe(ctx, obs(models.SignalHold, 0.5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := tr.Observe(ctx, obs(models.SignalLong, 0.7))
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, transitions)
}
