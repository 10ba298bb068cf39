// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/ports"
)

// SnapshotStore is an in-memory implementation of ports.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	clock  ports.Clock
	nextID int64
	snaps  []snapshot.Snapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore(clock ports.Clock) *SnapshotStore {
	return &SnapshotStore{
		clock:  clock,
		nextID: 1,
	}
}

// Append stores a new snapshot stamped with the store's clock.
func (s *SnapshotStore) Append(ctx context.Context, payload []byte, timezone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timezone == "" {
		timezone = "UTC"
	}

	id := s.nextID
	s.nextID++

	s.snaps = append(s.snaps, snapshot.Snapshot{
		ID:        id,
		CreatedAt: s.clock.Now().UTC(),
		Timezone:  timezone,
		Payload:   append([]byte(nil), payload...),
	})
	return id, nil
}

// Seed inserts a snapshot with an explicit ID and timestamp.
// Used by tests to reproduce historical logs.
func (s *SnapshotStore) Seed(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snaps = append(s.snaps, snap)
	if snap.ID >= s.nextID {
		s.nextID = snap.ID + 1
	}
}

// List returns all snapshots, oldest first.
func (s *SnapshotStore) List(ctx context.Context) ([]snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]snapshot.Snapshot, len(s.snaps))
	copy(result, s.snaps)

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetByID retrieves a snapshot.
func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snaps {
		if snap.ID == id {
			return snap, nil
		}
	}
	return snapshot.Snapshot{}, ports.ErrNotFound
}

// Latest returns the newest snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (snapshot.Snapshot, error) {
	all, _ := s.List(ctx)
	if len(all) == 0 {
		return snapshot.Snapshot{}, ports.ErrNotFound
	}
	return all[len(all)-1], nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

// Ensure interface compliance.
var _ ports.SnapshotStore = (*SnapshotStore)(nil)
