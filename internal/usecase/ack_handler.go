package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	domrepo "FxPulse/internal/domain/repository"
	"FxPulse/pkg/logger"
)

// AckHandler consumes acknowledgment events published by client apps.
type AckHandler struct {
	topic   string
	notes   *Notifications
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewAckHandler(topic string, notes *Notifications, metrics domrepo.Metrics, log *logger.Logger) *AckHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AckHandler{topic: topic, notes: notes, metrics: metrics, log: log}
}

func (h *AckHandler) Topic() string { return h.topic }

// incoming message schema: {subscriber_id, record_id, acknowledged_at}
func (h *AckHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		SubscriberID   string    `json:"subscriber_id"`
		RecordID       string    `json:"record_id"`
		AcknowledgedAt time.Time `json:"acknowledged_at"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("ack_unmarshal")
		return err
	}

	start := time.Now()
	err := h.notes.Acknowledge(ctx, m.SubscriberID, m.RecordID, m.AcknowledgedAt)
	if h.metrics != nil {
		h.metrics.RecordLatency("ack_seconds", time.Since(start).Seconds())
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domrepo.ErrNotFound), errors.Is(err, ErrInvalidAck):
		// Expired or malformed acks never succeed on retry.
		h.log.Warn("ack dropped",
			logger.String("subscriber_id", m.SubscriberID),
			logger.String("record_id", m.RecordID),
			logger.Error(err))
		h.recordError("ack_dropped")
		return nil
	default:
		h.recordError("ack_store")
		return err
	}
}

func (h *AckHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
