package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rillconf:"

type RedisRosterRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRosterRepository stores snapshots under rillconf:roster:<id>. A
// zero ttl keeps them until deleted.
func NewRedisRosterRepository(client *redis.Client, ttl time.Duration) ports.RosterRepository {
	return &RedisRosterRepository{
		client: client,
		prefix: keyPrefix + "roster:",
		ttl:    ttl,
	}
}

func (r *RedisRosterRepository) rosterKey(id domain.ConferenceID) string {
	return r.prefix + string(id)
}

func (r *RedisRosterRepository) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisRosterRepository) Save(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	if snapshot == nil || snapshot.ConferenceID == "" {
		return fmt.Errorf("roster snapshot without conference id")
	}
	ctx, span := tracing.TraceRepositoryOperation(ctx, "roster.save", "redis")
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "roster.save")
	tracing.AddSpanAttributes(ctx, tracing.ConferenceIDKey.String(string(snapshot.ConferenceID)))

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.rosterKey(snapshot.ConferenceID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), string(snapshot.ConferenceID))
	if _, err := pipe.Exec(ctx); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to save roster in Redis: %w", err)
	}
	return nil
}

func (r *RedisRosterRepository) Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error) {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "roster.load", "redis")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ConferenceIDKey.String(string(id)))

	data, err := r.client.Get(ctx, r.rosterKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrConferenceNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get roster from Redis: %w", err)
	}

	var snapshot domain.RosterSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster: %w", err)
	}
	return &snapshot, nil
}

func (r *RedisRosterRepository) Delete(ctx context.Context, id domain.ConferenceID) error {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "roster.delete", "redis")
	defer span.End()

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.rosterKey(id))
	pipe.SRem(ctx, r.indexKey(), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete roster from Redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrConferenceNotFound
	}
	return nil
}
