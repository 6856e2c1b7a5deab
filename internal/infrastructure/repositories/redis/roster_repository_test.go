package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRosterKeys(t *testing.T) {
	repo := NewRedisRosterRepository(nil, 0).(*RedisRosterRepository)

	assert.Equal(t, "rillconf:roster:conf-1", repo.rosterKey("conf-1"))
	assert.Equal(t, "rillconf:roster:index", repo.indexKey())
	assert.Equal(t, "rillconf:schema:version", schemaVersionKey)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := getMigrations()
	assert.Len(t, migrations, currentSchemaVersion)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
	}
}
