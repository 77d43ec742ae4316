package repository

import (
	"context"
	"sync"

	"FxPulse/internal/domain/models"
)

// MemorySnapshotStore keeps the last limit snapshots per position.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	limit int
	byPos map[string][]models.PositionSnapshot
}

// NewMemorySnapshotStore creates a bounded in-memory history.
func NewMemorySnapshotStore(limit int) *MemorySnapshotStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemorySnapshotStore{limit: limit, byPos: make(map[string][]models.PositionSnapshot)}
}

func (s *MemorySnapshotStore) AppendSnapshots(_ context.Context, snaps []models.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		list := append(s.byPos[snap.ID], snap)
		if len(list) > s.limit {
			list = list[len(list)-s.limit:]
		}
		s.byPos[snap.ID] = list
	}
	return nil
}

// History returns the retained snapshots of a position, oldest first.
func (s *MemorySnapshotStore) History(positionID string) []models.PositionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PositionSnapshot(nil), s.byPos[positionID]...)
}
