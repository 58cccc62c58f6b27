package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisPoolOption(t *testing.T) {
	cfg := &RedisConfig{}
	WithRedisPool(20, 4, 3*time.Second)(cfg)
	assert.Equal(t, 20, cfg.PoolSize)
	assert.Equal(t, 4, cfg.MinIdleConns)
	assert.Equal(t, 3*time.Second, cfg.PoolTimeout)
}

func TestLayeredOptions(t *testing.T) {
	cfg := &LayeredConfig{}
	WithLayeredMemorySize(50)(cfg)
	WithLayeredMemoryTTL(10 * time.Second)(cfg)
	assert.Equal(t, 50, cfg.MemoryMaxSize)
	assert.Equal(t, 10*time.Second, cfg.MemoryTTL)
}
