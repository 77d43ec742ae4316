package repository

import (
	"context"
	"errors"
	"time"

	"FxPulse/internal/domain/models"
)

// SignalStateStore holds the last-known signal per (pair, timeframe).
type SignalStateStore interface {
	Get(ctx context.Context, key models.SignalKey) (models.SignalState, bool, error)
	Put(ctx context.Context, state models.SignalState) error
}

// SnapshotStore appends position snapshot history.
type SnapshotStore interface {
	AppendSnapshots(ctx context.Context, snaps []models.PositionSnapshot) error
}

// NotificationStore keeps notification records for cooldown and cap checks.
type NotificationStore interface {
	Append(ctx context.Context, recs ...models.NotificationRecord) error
	// Recent returns the subscriber's records sent at or after since, oldest first.
	Recent(ctx context.Context, subscriberID string, since time.Time) ([]models.NotificationRecord, error)
	Acknowledge(ctx context.Context, subscriberID, recordID string, at time.Time) error
}

// NotificationAudit receives an append-only copy of every notification record.
type NotificationAudit interface {
	AppendNotifications(ctx context.Context, recs []models.NotificationRecord) error
}

// SubscriberStore is a read-only view of subscriber profiles.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]models.SubscriberProfile, error)
}

// PositionStore is a read-only view of open positions.
type PositionStore interface {
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// EventPublisher emits operational events for downstream consumers.
type EventPublisher interface {
	PublishCycleReport(ctx context.Context, r models.CycleReport) error
	PublishDelivery(ctx context.Context, c models.NotificationCandidate, subscriberID string, results []models.DeliveryResult) error
	Close() error
}

// Metrics records pipeline observations.
type Metrics interface {
	RecordCycle(state string, seconds float64)
	RecordUnit(kind, result string)
	RecordGateway(result string, seconds float64)
	RecordSuppressed(reason string)
	RecordDelivery(channel string, ok bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetSessions(n int)
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")
