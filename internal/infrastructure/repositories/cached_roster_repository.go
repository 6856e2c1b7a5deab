package repositories

import (
	"context"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/cache"
)

const rosterKeyPrefix = "roster:"

// CachedRosterRepository keeps recently saved or loaded snapshots in memory
// so inspection polling does not reach the backing store on every request.
// Saves are write-through.
type CachedRosterRepository struct {
	base  ports.RosterRepository
	cache *cache.Cache[*domain.RosterSnapshot]
}

var _ ports.RosterRepository = (*CachedRosterRepository)(nil)

func NewCachedRosterRepository(base ports.RosterRepository, ttl time.Duration) *CachedRosterRepository {
	return &CachedRosterRepository{
		base:  base,
		cache: cache.NewCache[*domain.RosterSnapshot](ttl),
	}
}

// Save stores the snapshot and refreshes the cached copy
func (r *CachedRosterRepository) Save(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	if err := r.base.Save(ctx, snapshot); err != nil {
		// The store may hold either version now.
		if snapshot != nil {
			r.cache.Delete(rosterKey(snapshot.ConferenceID))
		}
		return err
	}
	r.cache.Set(rosterKey(snapshot.ConferenceID), snapshot)
	return nil
}

// Load gets a snapshot with caching
func (r *CachedRosterRepository) Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error) {
	return r.cache.GetOrSet(ctx, rosterKey(id), func(ctx context.Context) (*domain.RosterSnapshot, error) {
		return r.base.Load(ctx, id)
	})
}

// Delete removes the snapshot and invalidates the cache
func (r *CachedRosterRepository) Delete(ctx context.Context, id domain.ConferenceID) error {
	r.cache.Delete(rosterKey(id))
	return r.base.Delete(ctx, id)
}

// Close stops the cache cleanup goroutine.
func (r *CachedRosterRepository) Close() {
	r.cache.Stop()
}

func rosterKey(id domain.ConferenceID) string {
	return rosterKeyPrefix + string(id)
}
