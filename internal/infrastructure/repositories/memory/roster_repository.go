package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
)

// MemoryRosterRepository keeps snapshots as encoded JSON so callers never
// share mutable state with the store.
type MemoryRosterRepository struct {
	rosters map[domain.ConferenceID][]byte
	mu      sync.RWMutex
}

func NewMemoryRosterRepository() ports.RosterRepository {
	return &MemoryRosterRepository{
		rosters: make(map[domain.ConferenceID][]byte),
	}
}

func (r *MemoryRosterRepository) Save(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	if snapshot == nil || snapshot.ConferenceID == "" {
		return fmt.Errorf("roster snapshot without conference id")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters[snapshot.ConferenceID] = data
	return nil
}

func (r *MemoryRosterRepository) Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error) {
	r.mu.RLock()
	data, exists := r.rosters[id]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.ErrConferenceNotFound
	}

	var snapshot domain.RosterSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster: %w", err)
	}
	return &snapshot, nil
}

func (r *MemoryRosterRepository) Delete(ctx context.Context, id domain.ConferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rosters[id]; !exists {
		return domain.ErrConferenceNotFound
	}
	delete(r.rosters, id)
	return nil
}
