package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAdapter struct {
	mock.Mock
	ch models.Channel
}

func (m *mockAdapter) Channel() models.Channel { return m.ch }

func (m *mockAdapter) Send(ctx context.Context, dest string, msg service.Message) error {
	return m.Called(ctx, dest, msg).Error(0)
}

type slowAdapter struct {
	ch    models.Channel
	delay time.Duration
}

func (s slowAdapter) Channel() models.Channel { return s.ch }

func (s slowAdapter) Send(ctx context.Context, _ string, _ service.Message) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type captureEvents struct {
	mu      sync.Mutex
	results [][]models.DeliveryResult
}

func (c *captureEvents) PublishCycleReport(context.Context, models.CycleReport) error { return nil }

func (c *captureEvents) PublishDelivery(_ context.Context, _ models.NotificationCandidate, _ string, r []models.DeliveryResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
	return errors.New("broker down")
}

func (c *captureEvents) Close() error { return nil }

func candidate() models.NotificationCandidate {
	prev := models.SignalState{Pair: "EUR/USD", Timeframe: models.TF1h, Signal: models.SignalHold}
	cur := prev
	cur.Signal = models.SignalLong
	cur.Confidence = 0.72
	return models.NotificationCandidate{
		ID:          "n1",
		Kind:        models.KindSignalChange,
		Pair:        "EUR/USD",
		Timeframe:   models.TF1h,
		Confidence:  0.72,
		ModelBacked: true,
		Transition:  &models.Transition{Key: prev.Key(), Previous: prev, Current: cur},
	}
}

func subscriber(channels ...models.Channel) models.SubscriberProfile {
	return models.SubscriberProfile{
		ID:              "u1",
		EnabledChannels: channels,
		Destinations: map[models.Channel]string{
			models.ChannelTelegram: "chat-1",
			models.ChannelEmail:    "u1@example.com",
		},
	}
}

func TestDispatch_IsolatesChannelFailures(t *testing.T) {
	store := repository.NewMemoryNotificationStore(0)
	events := &captureEvents{}

	tg := &mockAdapter{ch: models.ChannelTelegram}
	tg.On("Send", mock.Anything, "chat-1", mock.AnythingOfType("service.Message")).Return(errors.New("bot blocked"))
	email := &mockAdapter{ch: models.ChannelEmail}
	email.On("Send", mock.Anything, "u1@example.com", mock.Anything).Return(nil)
	inApp := &mockAdapter{ch: models.ChannelInApp}
	inApp.On("Send", mock.Anything, "u1", mock.Anything).Return(nil)

	d := New(store, PlainRenderer{}, []service.ChannelAdapter{tg, email, inApp}, WithEvents(events))

	results, err := d.Dispatch(context.Background(), candidate(), subscriber(models.ChannelTelegram, models.ChannelEmail, models.ChannelInApp, models.ChannelDiscord))
	require.NoError(t, err)
	require.Len(t, results, 4)

	byChannel := map[models.Channel]models.DeliveryResult{}
	for _, r := range results {
		byChannel[r.Channel] = r
	}
	assert.False(t, byChannel[models.ChannelTelegram].Success)
	assert.Equal(t, "bot blocked", byChannel[models.ChannelTelegram].Reason)
	assert.True(t, byChannel[models.ChannelEmail].Success)
	assert.True(t, byChannel[models.ChannelInApp].Success)
	assert.False(t, byChannel[models.ChannelDiscord].Success)
	assert.Contains(t, byChannel[models.ChannelDiscord].Reason, "not configured")

	recs, err := store.Recent(context.Background(), "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for _, r := range recs {
		assert.Equal(t, "n1", r.NotificationID)
		assert.NotEmpty(t, r.ID)
	}

	require.Len(t, events.results, 1)
	tg.AssertExpectations(t)
	email.AssertExpectations(t)
	inApp.AssertExpectations(t)
}

func TestDispatch_ChannelsRunInParallelWithOwnTimeout(t *testing.T) {
	store := repository.NewMemoryNotificationStore(0)
	adapters := []service.ChannelAdapter{
		slowAdapter{ch: models.ChannelTelegram, delay: time.Second},
		slowAdapter{ch: models.ChannelEmail, delay: 20 * time.Millisecond},
		slowAdapter{ch: models.ChannelInApp, delay: 20 * time.Millisecond},
	}
	d := New(store, PlainRenderer{}, adapters, WithChannelTimeout(100*time.Millisecond))

	start := time.Now()
	results, err := d.Dispatch(context.Background(), candidate(), subscriber(models.ChannelTelegram, models.ChannelEmail, models.ChannelInApp))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)
}

func TestDispatch_RenderFailureRecordsEveryChannel(t *testing.T) {
	store := repository.NewMemoryNotificationStore(0)
	inApp := &mockAdapter{ch: models.ChannelInApp}
	d := New(store, PlainRenderer{}, []service.ChannelAdapter{inApp})

	c := candidate()
	c.Transition = nil
	results, err := d.Dispatch(context.Background(), c, subscriber(models.ChannelInApp))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Reason, "render")
	inApp.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	recs, err := store.Recent(context.Background(), "u1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDispatch_MissingDestination(t *testing.T) {
	store := repository.NewMemoryNotificationStore(0)
	discord := &mockAdapter{ch: models.ChannelDiscord}
	d := New(store, PlainRenderer{}, []service.ChannelAdapter{discord})

	results, err := d.Dispatch(context.Background(), candidate(), subscriber(models.ChannelDiscord))
	require.NoError(t, err)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Reason, "no discord destination")
}

func TestPlainRenderer(t *testing.T) {
	msg, err := PlainRenderer{}.Render(candidate(), models.SubscriberProfile{})
	require.NoError(t, err)
	assert.Equal(t, "EUR/USD 1h: LONG", msg.Subject)
	assert.Contains(t, msg.Text, "from hold to long")
	assert.Contains(t, msg.Text, "72%")

	rr := 2.0
	snap := &models.PositionSnapshot{
		Position:       models.Position{ID: "p1", Pair: "EUR/USD", Direction: models.DirectionLong, EntryPrice: 1.1},
		CurrentPrice:   1.108,
		PnLPips:        80,
		RiskReward:     &rr,
		Recommendation: models.RecommendTightenStop,
	}
	msg, err = PlainRenderer{}.Render(models.NotificationCandidate{Kind: models.KindRiskAlert, Pair: "EUR/USD", Snapshot: snap}, models.SubscriberProfile{})
	require.NoError(t, err)
	assert.Equal(t, "EUR/USD long position: tighten stop", msg.Subject)
	assert.Contains(t, msg.Text, "+80.0 pips")
}
