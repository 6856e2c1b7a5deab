package repositories

import (
	"context"
	"testing"

	"rillconf/internal/infrastructure/repositories/memory"
	"rillconf/pkg/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	factory := NewRepositoryFactory(context.Background(), cfg, zap.NewNop().Sugar())

	assert.Nil(t, factory.RedisClient())
	assert.IsType(t, &memory.MemoryRosterRepository{}, factory.CreateRosterRepository())
	assert.NoError(t, factory.Close())
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	factory := NewRepositoryFactory(context.Background(), cfg, zap.NewNop().Sugar())

	assert.Nil(t, factory.RedisClient())
	assert.IsType(t, &memory.MemoryRosterRepository{}, factory.CreateRosterRepository())
}
