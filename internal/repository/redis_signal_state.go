package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FxPulse/internal/domain/models"

	"github.com/redis/go-redis/v9"
)

// RedisSignalStateStore keeps every signal state as a field of one Redis hash.
type RedisSignalStateStore struct {
	client *redis.Client
	key    string
}

// NewRedisSignalStateStore creates a store under "<prefix>:signals".
func NewRedisSignalStateStore(client *redis.Client, prefix string) *RedisSignalStateStore {
	return &RedisSignalStateStore{client: client, key: prefix + ":signals"}
}

func (s *RedisSignalStateStore) Get(ctx context.Context, key models.SignalKey) (models.SignalState, bool, error) {
	data, err := s.client.HGet(ctx, s.key, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.SignalState{}, false, nil
		}
		return models.SignalState{}, false, fmt.Errorf("hget %s: %w", key, err)
	}
	var st models.SignalState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.SignalState{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return st, true, nil
}

func (s *RedisSignalStateStore) Put(ctx context.Context, state models.SignalState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, state.Key().String(), data).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", state.Key(), err)
	}
	return nil
}
