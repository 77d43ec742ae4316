package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
)

// MemoryNotificationStore keeps recent notification records per subscriber in memory.
type MemoryNotificationStore struct {
	mu        sync.RWMutex
	records   map[string][]models.NotificationRecord
	retention time.Duration
	now       func() time.Time
}

// MemoryNotificationOption configures MemoryNotificationStore.
type MemoryNotificationOption func(*MemoryNotificationStore)

// WithNotificationClock sets the clock used for pruning.
func WithNotificationClock(now func() time.Time) MemoryNotificationOption {
	return func(s *MemoryNotificationStore) {
		s.now = now
	}
}

// NewMemoryNotificationStore creates a store that prunes records older than retention on append.
// A non-positive retention keeps everything.
func NewMemoryNotificationStore(retention time.Duration, opts ...MemoryNotificationOption) *MemoryNotificationStore {
	s := &MemoryNotificationStore{
		records:   make(map[string][]models.NotificationRecord),
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// retentionFor returns, per subscriber in recs, how long its records must be
// kept: the store retention, stretched by any record that asks to be retained
// longer. A non-positive retention disables pruning and is returned unchanged.
func retentionFor(retention time.Duration, recs []models.NotificationRecord) map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, r := range recs {
		keep := retention
		if retention > 0 && r.Retain > keep {
			keep = r.Retain
		}
		if cur, ok := out[r.SubscriberID]; !ok || keep > cur {
			out[r.SubscriberID] = keep
		}
	}
	return out
}

func (s *MemoryNotificationStore) Append(_ context.Context, recs ...models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		s.records[r.SubscriberID] = append(s.records[r.SubscriberID], r)
	}
	for sub, keep := range retentionFor(s.retention, recs) {
		list := s.records[sub]
		sort.SliceStable(list, func(i, j int) bool { return list[i].SentAt.Before(list[j].SentAt) })
		if keep > 0 {
			cutoff := s.now().Add(-keep)
			i := sort.Search(len(list), func(i int) bool { return !list[i].SentAt.Before(cutoff) })
			list = append([]models.NotificationRecord(nil), list[i:]...)
		}
		s.records[sub] = list
	}
	return nil
}

func (s *MemoryNotificationStore) Recent(_ context.Context, subscriberID string, since time.Time) ([]models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[subscriberID]
	i := sort.Search(len(list), func(i int) bool { return !list[i].SentAt.Before(since) })
	return append([]models.NotificationRecord(nil), list[i:]...), nil
}

func (s *MemoryNotificationStore) Acknowledge(_ context.Context, subscriberID, recordID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.records[subscriberID]
	for i := range list {
		if list[i].ID != recordID {
			continue
		}
		if list[i].AcknowledgedAt == nil {
			ts := at
			list[i].AcknowledgedAt = &ts
		}
		return nil
	}
	return repository.ErrNotFound
}
