package repository

import (
	"context"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/pkg/logger"
)

// AuditedNotificationStore writes through to a primary store and copies every appended
// record to an append-only audit sink. Audit failures are logged, not returned.
type AuditedNotificationStore struct {
	repository.NotificationStore
	audit repository.NotificationAudit
	log   *logger.Logger
}

// NewAuditedNotificationStore wraps primary with audit.
func NewAuditedNotificationStore(primary repository.NotificationStore, audit repository.NotificationAudit, log *logger.Logger) *AuditedNotificationStore {
	return &AuditedNotificationStore{NotificationStore: primary, audit: audit, log: log}
}

func (s *AuditedNotificationStore) Append(ctx context.Context, recs ...models.NotificationRecord) error {
	if err := s.NotificationStore.Append(ctx, recs...); err != nil {
		return err
	}
	if err := s.audit.AppendNotifications(ctx, recs); err != nil {
		s.log.Warn("notification audit append failed", logger.Int("records", len(recs)), logger.Error(err))
	}
	return nil
}

var _ repository.NotificationStore = (*AuditedNotificationStore)(nil)
