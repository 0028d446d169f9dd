package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Driver identifiers supported by the key-value store.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// KVConfig selects and configures a KVStore driver.
type KVConfig struct {
	Driver string
	Redis  RedisConfig
	// GCInterval controls how often the memory driver sweeps expired keys.
	GCInterval time.Duration
}

// NewKVStore creates a key-value store based on the provided configuration.
func NewKVStore(ctx context.Context, cfg KVConfig, logger *zap.SugaredLogger) (KVStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverRedis
	}

	switch driver {
	case DriverRedis:
		return NewRedisStore(ctx, cfg.Redis, logger)
	case DriverMemory:
		if logger != nil {
			logger.Warnw("Using in-memory key-value store; state is lost on restart and not shared between processes")
		}
		return NewMemoryStore(cfg.GCInterval), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
