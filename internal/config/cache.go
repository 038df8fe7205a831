package config

import "time"

// CacheConfig contains configuration for the layered snapshot cache.
type CacheConfig struct {
	// MemoryCapacity bounds the number of project snapshots held in memory.
	MemoryCapacity int `envconfig:"MEMORY_CAPACITY" default:"1024" validate:"min=1"`

	// MemoryTTL is how long a snapshot stays in the in-memory layer before
	// falling back to Redis.
	MemoryTTL time.Duration `envconfig:"MEMORY_TTL" default:"30s" validate:"gt=0"`

	// RedisTTL is how long a snapshot stays in Redis before falling back to
	// the database.
	RedisTTL time.Duration `envconfig:"REDIS_TTL" default:"5m" validate:"gt=0"`

	// InvalidationChannel is the Redis pub/sub channel carrying project
	// invalidation events.
	InvalidationChannel string `envconfig:"INVALIDATION_CHANNEL" default:"ff:invalidate"`
}
