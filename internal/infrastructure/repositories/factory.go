package repositories

import (
	"context"
	"time"

	"rillconf/internal/core/ports"
	"rillconf/internal/infrastructure/reliability"
	"rillconf/internal/infrastructure/repositories/memory"
	redisrepo "rillconf/internal/infrastructure/repositories/redis"
	"rillconf/pkg/circuitbreaker"
	"rillconf/pkg/config"
	"rillconf/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rosterCacheTTL bounds how stale a Redis backed snapshot read through the
// inspection API may be.
const rosterCacheTTL = 5 * time.Second

// RepositoryFactory picks Redis when it is configured and reachable and
// falls back to memory otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.SugaredLogger
	caches      []*CachedRosterRepository
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		ttl:      cfg.Redis.TTL,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		client, err := redisrepo.NewRedisClient(
			dialCtx,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

// CreateRosterRepository returns the in-memory store, or the Redis store
// guarded by retries and a circuit breaker and fronted by a short-lived
// cache.
func (f *RepositoryFactory) CreateRosterRepository() ports.RosterRepository {
	if !f.useRedis || f.redisClient == nil {
		return memory.NewMemoryRosterRepository()
	}

	guarded := reliability.NewRosterRepositoryWrapper(
		redisrepo.NewRedisRosterRepository(f.redisClient, f.ttl),
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		f.logger,
	)
	cached := NewCachedRosterRepository(guarded, rosterCacheTTL)
	f.caches = append(f.caches, cached)
	return cached
}

// RedisClient is nil when the factory fell back to memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	for _, c := range f.caches {
		c.Close()
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}
