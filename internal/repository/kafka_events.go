package repository

import (
	"context"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	pkgkafka "FxPulse/pkg/kafka"
)

// producer is the subset of pkg/kafka.Producer the event publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

var _ producer = (*pkgkafka.Producer)(nil)

// DeliveryEvent is the payload published for every dispatched notification.
type DeliveryEvent struct {
	NotificationID string                  `json:"notification_id"`
	SubscriberID   string                  `json:"subscriber_id"`
	Kind           models.CandidateKind    `json:"kind"`
	Pair           string                  `json:"pair"`
	Timeframe      models.Timeframe        `json:"timeframe,omitempty"`
	PositionID     string                  `json:"position_id,omitempty"`
	Confidence     float64                 `json:"confidence"`
	Results        []models.DeliveryResult `json:"results"`
	PublishedAt    time.Time               `json:"published_at"`
}

// KafkaEventPublisher publishes cycle reports and delivery events.
type KafkaEventPublisher struct {
	producer           producer
	reportsTopic       string
	notificationsTopic string
}

// NewKafkaEventPublisher creates the publisher over p.
func NewKafkaEventPublisher(p producer, reportsTopic, notificationsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, reportsTopic: reportsTopic, notificationsTopic: notificationsTopic}
}

func (p *KafkaEventPublisher) PublishCycleReport(ctx context.Context, r models.CycleReport) error {
	return p.producer.Publish(pkgkafka.WithTraceID(ctx, r.CycleID), p.reportsTopic, []byte(r.CycleID), r)
}

func (p *KafkaEventPublisher) PublishDelivery(ctx context.Context, c models.NotificationCandidate, subscriberID string, results []models.DeliveryResult) error {
	return p.producer.Publish(pkgkafka.WithTraceID(ctx, c.ID), p.notificationsTopic, []byte(subscriberID), DeliveryEvent{
		NotificationID: c.ID,
		SubscriberID:   subscriberID,
		Kind:           c.Kind,
		Pair:           c.Pair,
		Timeframe:      c.Timeframe,
		PositionID:     c.PositionID,
		Confidence:     c.Confidence,
		Results:        results,
		PublishedAt:    time.Now().UTC(),
	})
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NoopEventPublisher drops events. Used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishCycleReport(context.Context, models.CycleReport) error { return nil }

func (NoopEventPublisher) PublishDelivery(context.Context, models.NotificationCandidate, string, []models.DeliveryResult) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }

var (
	_ repository.EventPublisher = (*KafkaEventPublisher)(nil)
	_ repository.EventPublisher = NoopEventPublisher{}
)
