package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisNotificationStore indexes records per subscriber in a sorted set scored by sent-at
// (unix millis) and keeps the record bodies in a companion hash.
type RedisNotificationStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisNotificationStore creates a store under "<prefix>:notif:<subscriber>".
func NewRedisNotificationStore(client *redis.Client, prefix string, retention time.Duration) *RedisNotificationStore {
	return &RedisNotificationStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisNotificationStore) indexKey(sub string) string { return s.prefix + ":notif:" + sub }
func (s *RedisNotificationStore) bodyKey(sub string) string {
	return s.prefix + ":notif:" + sub + ":recs"
}

func (s *RedisNotificationStore) Append(ctx context.Context, recs ...models.NotificationRecord) error {
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	keep := retentionFor(s.retention, recs)
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, s.indexKey(r.SubscriberID), redis.Z{Score: float64(r.SentAt.UnixMilli()), Member: r.ID})
		pipe.HSet(ctx, s.bodyKey(r.SubscriberID), r.ID, data)
	}
	for sub, d := range keep {
		if d > 0 {
			pipe.Expire(ctx, s.indexKey(sub), d)
			pipe.Expire(ctx, s.bodyKey(sub), d)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append notifications: %w", err)
	}
	for sub, d := range keep {
		if d <= 0 {
			continue
		}
		if err := s.prune(ctx, sub, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisNotificationStore) prune(ctx context.Context, sub string, keep time.Duration) error {
	cutoff := strconv.FormatInt(time.Now().Add(-keep).UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(sub), &redis.ZRangeBy{Min: "-inf", Max: "(" + cutoff}).Result()
	if err != nil {
		return fmt.Errorf("prune %s: %w", sub, err)
	}
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.indexKey(sub), members...)
	pipe.HDel(ctx, s.bodyKey(sub), ids...)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisNotificationStore) Recent(ctx context.Context, subscriberID string, since time.Time) ([]models.NotificationRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(subscriberID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", subscriberID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := s.client.HMGet(ctx, s.bodyKey(subscriberID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("recent bodies %s: %w", subscriberID, err)
	}
	out := make([]models.NotificationRecord, 0, len(bodies))
	for _, b := range bodies {
		raw, ok := b.(string)
		if !ok {
			continue
		}
		var r models.NotificationRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisNotificationStore) Acknowledge(ctx context.Context, subscriberID, recordID string, at time.Time) error {
	raw, err := s.client.HGet(ctx, s.bodyKey(subscriberID), recordID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("ack %s: %w", recordID, err)
	}
	var r models.NotificationRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decode %s: %w", recordID, err)
	}
	if r.AcknowledgedAt != nil {
		return nil
	}
	r.AcknowledgedAt = &at
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.bodyKey(subscriberID), recordID, data).Err()
}
