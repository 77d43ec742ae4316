package repository

import (
	"context"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySignalStateStore(t *testing.T) {
	s := NewMemorySignalStateStore()
	ctx := context.Background()
	key := models.SignalKey{Pair: "EUR/USD", Timeframe: models.TF1h}

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, models.SignalState{Pair: "EUR/USD", Timeframe: models.TF1h, Signal: models.SignalLong, Confidence: 0.7}))
	require.NoError(t, s.Put(ctx, models.SignalState{Pair: "EUR/USD", Timeframe: models.TF1h, Signal: models.SignalShort, Confidence: 0.8}))

	st, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.SignalShort, st.Signal)
}

func record(id, sub string, sentAt time.Time) models.NotificationRecord {
	return models.NotificationRecord{
		ID:             id,
		NotificationID: "n-" + id,
		SubscriberID:   sub,
		Kind:           models.KindSignalChange,
		Pair:           "EUR/USD",
		Timeframe:      models.TF1h,
		Channel:        models.ChannelInApp,
		SentAt:         sentAt,
		Success:        true,
	}
}

func TestMemoryNotificationStore_RecentOrderedAndFiltered(t *testing.T) {
	s := NewMemoryNotificationStore(0)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx,
		record("b", "u1", base.Add(2*time.Hour)),
		record("a", "u1", base),
		record("c", "u2", base.Add(time.Hour)),
	))

	recs, err := s.Recent(ctx, "u1", base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ID)

	recs, err = s.Recent(ctx, "u1", base)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
}

func TestMemoryNotificationStore_RetentionPrunes(t *testing.T) {
	s := NewMemoryNotificationStore(24 * time.Hour)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("old", "u1", now.Add(-48*time.Hour)), record("new", "u1", now)))

	recs, err := s.Recent(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].ID)
}

func TestMemoryNotificationStore_RetainOutlivesRetention(t *testing.T) {
	now := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	s := NewMemoryNotificationStore(24*time.Hour, WithNotificationClock(func() time.Time { return now }))
	ctx := context.Background()

	held := record("held", "u1", now.Add(-48*time.Hour))
	held.Retain = 72 * time.Hour
	require.NoError(t, s.Append(ctx, held, record("old", "u2", now.Add(-48*time.Hour))))

	recs, err := s.Recent(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "held", recs[0].ID)

	recs, err = s.Recent(ctx, "u2", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryNotificationStore_Acknowledge(t *testing.T) {
	s := NewMemoryNotificationStore(0)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Append(ctx, record("a", "u1", now)))

	first := now.Add(time.Minute)
	require.NoError(t, s.Acknowledge(ctx, "u1", "a", first))
	require.NoError(t, s.Acknowledge(ctx, "u1", "a", first.Add(time.Hour)))

	recs, err := s.Recent(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, recs[0].AcknowledgedAt)
	assert.True(t, recs[0].AcknowledgedAt.Equal(first))

	assert.ErrorIs(t, s.Acknowledge(ctx, "u1", "missing", now), repository.ErrNotFound)
	assert.ErrorIs(t, s.Acknowledge(ctx, "u2", "a", now), repository.ErrNotFound)
}

func TestMemorySnapshotStore_Bounded(t *testing.T) {
	s := NewMemorySnapshotStore(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		snap := models.PositionSnapshot{Position: models.Position{ID: "p1"}, CurrentPrice: float64(i)}
		require.NoError(t, s.AppendSnapshots(ctx, []models.PositionSnapshot{snap}))
	}
	h := s.History("p1")
	require.Len(t, h, 2)
	assert.Equal(t, 1.0, h[0].CurrentPrice)
	assert.Equal(t, 2.0, h[1].CurrentPrice)
}

type failingAudit struct{ calls int }

func (f *failingAudit) AppendNotifications(context.Context, []models.NotificationRecord) error {
	f.calls++
	return assert.AnError
}

func TestAuditedNotificationStore_AuditFailureIsNotFatal(t *testing.T) {
	primary := NewMemoryNotificationStore(0)
	audit := &failingAudit{}
	s := NewAuditedNotificationStore(primary, audit, logger.Nop())
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("a", "u1", time.Now())))
	assert.Equal(t, 1, audit.calls)

	recs, err := s.Recent(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
