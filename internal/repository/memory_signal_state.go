package repository

import (
	"context"
	"sync"

	"FxPulse/internal/domain/models"
)

// MemorySignalStateStore keeps signal states in process memory.
type MemorySignalStateStore struct {
	mu     sync.RWMutex
	states map[models.SignalKey]models.SignalState
}

// NewMemorySignalStateStore creates an empty store.
func NewMemorySignalStateStore() *MemorySignalStateStore {
	return &MemorySignalStateStore{states: make(map[models.SignalKey]models.SignalState)}
}

func (s *MemorySignalStateStore) Get(_ context.Context, key models.SignalKey) (models.SignalState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok, nil
}

func (s *MemorySignalStateStore) Put(_ context.Context, state models.SignalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Key()] = state
	return nil
}
