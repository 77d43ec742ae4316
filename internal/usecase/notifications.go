package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
)

// ErrInvalidAck is returned for acknowledgments missing ids.
var ErrInvalidAck = errors.New("subscriber id and record id are required")

// Notifications serves notification history and acknowledgments.
type Notifications struct {
	store repository.NotificationStore
	now   func() time.Time
}

// NewNotifications creates the history service.
func NewNotifications(store repository.NotificationStore) *Notifications {
	return &Notifications{store: store, now: time.Now}
}

// History returns up to limit records of a subscriber sent at or after since, newest first.
func (n *Notifications) History(ctx context.Context, subscriberID string, since time.Time, limit int) ([]models.NotificationRecord, error) {
	recs, err := n.store.Recent(ctx, subscriberID, since)
	if err != nil {
		return nil, fmt.Errorf("notification history: %w", err)
	}
	out := make([]models.NotificationRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Acknowledge marks one record as seen. A zero at means now.
func (n *Notifications) Acknowledge(ctx context.Context, subscriberID, recordID string, at time.Time) error {
	if subscriberID == "" || recordID == "" {
		return ErrInvalidAck
	}
	if at.IsZero() {
		at = n.now()
	}
	return n.store.Acknowledge(ctx, subscriberID, recordID, at)
}
