package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/repository"
	"FxPulse/internal/service/dispatch"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signalCandidate(pair string, conf float64) models.NotificationCandidate {
	prev := models.SignalState{Pair: pair, Timeframe: models.TF1h, Signal: models.SignalHold}
	cur := prev
	cur.Signal = models.SignalLong
	cur.Confidence = conf
	cur.ModelBacked = true
	return models.NotificationCandidate{
		ID:            uuid.NewString(),
		Kind:          models.KindSignalChange,
		SubscriberIDs: []string{"u1"},
		Pair:          pair,
		Timeframe:     models.TF1h,
		Confidence:    conf,
		ModelBacked:   true,
		Transition:    &models.Transition{Key: prev.Key(), Previous: prev, Current: cur},
	}
}

func newTestNotifier(now *time.Time) (*Notifier, *recordingAdapter, *repository.MemoryNotificationStore) {
	store := repository.NewMemoryNotificationStore(0)
	adapter := &recordingAdapter{}
	clock := func() time.Time { return *now }
	d := dispatch.New(store, dispatch.PlainRenderer{}, []service.ChannelAdapter{adapter}, dispatch.WithClock(clock))
	return NewNotifier(store, d, WithNotifierClock(clock)), adapter, store
}

func TestNotifier_CooldownSpacing(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	n, adapter, _ := newTestNotifier(&now)
	p := profile("u1")
	p.CooldownMinutes = 30
	profiles := map[string]models.SubscriberProfile{"u1": p}
	ctx := context.Background()

	out := n.Notify(ctx, signalCandidate("EUR/USD", 0.7), profiles)
	assert.Equal(t, NotifyOutcome{Admitted: 1, Delivered: 1}, out)

	now = now.Add(10 * time.Minute)
	out = n.Notify(ctx, signalCandidate("EUR/USD", 0.75), profiles)
	assert.Equal(t, NotifyOutcome{Suppressed: 1}, out)

	out = n.Notify(ctx, signalCandidate("GBP/USD", 0.75), profiles)
	assert.Equal(t, 1, out.Admitted, "other streams are not in cooldown")

	now = now.Add(20 * time.Minute)
	out = n.Notify(ctx, signalCandidate("EUR/USD", 0.75), profiles)
	assert.Equal(t, 1, out.Admitted)
	assert.Equal(t, 3, adapter.count())
}

func TestNotifier_DailyCapRollingWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	n, _, _ := newTestNotifier(&now)
	p := profile("u1")
	p.MaxNotificationsPerDay = 2
	profiles := map[string]models.SubscriberProfile{"u1": p}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out := n.Notify(ctx, signalCandidate("EUR/USD", 0.7), profiles)
		if i < 2 {
			assert.Equal(t, 1, out.Admitted, "send %d", i)
		} else {
			assert.Equal(t, 1, out.Suppressed, "send %d", i)
		}
		now = now.Add(time.Hour)
	}

	now = now.Add(22 * time.Hour)
	out := n.Notify(ctx, signalCandidate("EUR/USD", 0.7), profiles)
	assert.Equal(t, 1, out.Admitted, "the first send left the window")
}

func TestNotifier_HistoryOutlivesShortRetention(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := repository.NewMemoryNotificationStore(time.Hour, repository.WithNotificationClock(clock))
	adapter := &recordingAdapter{}
	d := dispatch.New(store, dispatch.PlainRenderer{}, []service.ChannelAdapter{adapter}, dispatch.WithClock(clock))
	n := NewNotifier(store, d, WithNotifierClock(clock))

	p := profile("u1")
	p.CooldownMinutes = 180
	p.MaxNotificationsPerDay = 2
	ctx := context.Background()

	dec, _ := n.NotifySubscriber(ctx, signalCandidate("EUR/USD", 0.8), p)
	require.True(t, dec.Admitted)

	now = now.Add(2 * time.Hour)
	dec, _ = n.NotifySubscriber(ctx, signalCandidate("GBP/USD", 0.8), p)
	require.True(t, dec.Admitted)

	dec, _ = n.NotifySubscriber(ctx, signalCandidate("EUR/USD", 0.8), p)
	assert.Equal(t, models.ReasonCooldown, dec.Reason)

	now = now.Add(2 * time.Hour)
	dec, _ = n.NotifySubscriber(ctx, signalCandidate("EUR/USD", 0.8), p)
	assert.Equal(t, models.ReasonDailyCap, dec.Reason)
	assert.Equal(t, 2, adapter.count())
}

func TestNotifier_BelowConfidenceAndUnknownSubscriber(t *testing.T) {
	now := time.Now()
	n, adapter, _ := newTestNotifier(&now)
	p := profile("u1")
	p.MinConfidence = 0.7

	d, results := n.NotifySubscriber(context.Background(), signalCandidate("EUR/USD", 0.65), p)
	assert.False(t, d.Admitted)
	assert.Equal(t, models.ReasonBelowConfidence, d.Reason)
	assert.Nil(t, results)

	c := signalCandidate("EUR/USD", 0.9)
	c.SubscriberIDs = []string{"ghost"}
	assert.Equal(t, NotifyOutcome{}, n.Notify(context.Background(), c, map[string]models.SubscriberProfile{"u1": p}))
	assert.Zero(t, adapter.count())
}

func TestNotifier_SerializesPerSubscriber(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	n, adapter, _ := newTestNotifier(&now)
	p := profile("u1")
	p.CooldownMinutes = 60
	profiles := map[string]models.SubscriberProfile{"u1": p}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Notify(context.Background(), signalCandidate("EUR/USD", 0.8), profiles)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, adapter.count())
}

func TestNotifications_HistoryAndAck(t *testing.T) {
	store := repository.NewMemoryNotificationStore(0)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Append(ctx, models.NotificationRecord{
			ID: id, NotificationID: "n" + id, SubscriberID: "u1", Kind: models.KindSignalChange,
			Pair: "EUR/USD", Channel: models.ChannelInApp, SentAt: base.Add(time.Duration(i) * time.Minute), Success: true,
		}))
	}
	notes := NewNotifications(store)

	recs, err := notes.History(ctx, "u1", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r3", recs[0].ID)
	assert.Equal(t, "r2", recs[1].ID)

	handler := NewAckHandler("notification-acks", notes, nil, nil)
	assert.Equal(t, "notification-acks", handler.Topic())

	msg, _ := json.Marshal(map[string]interface{}{"subscriber_id": "u1", "record_id": "r2", "acknowledged_at": base.Add(time.Hour)})
	require.NoError(t, handler.Handle(ctx, msg))

	recs, err = notes.History(ctx, "u1", time.Time{}, 0)
	require.NoError(t, err)
	require.NotNil(t, recs[1].AcknowledgedAt)
	assert.True(t, recs[1].AcknowledgedAt.Equal(base.Add(time.Hour)))
	assert.Nil(t, recs[0].AcknowledgedAt)

	missing, _ := json.Marshal(map[string]string{"subscriber_id": "u1", "record_id": "nope"})
	assert.NoError(t, handler.Handle(ctx, missing), "unknown records are dropped, not retried")
	assert.Error(t, handler.Handle(ctx, []byte("{")))
	assert.ErrorIs(t, notes.Acknowledge(ctx, "", "r1", time.Time{}), ErrInvalidAck)
}
