package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"formdesk/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig captures connection options for the redis driver.
// URL, when set, takes precedence over the discrete fields.
type RedisConfig struct {
	URL      string
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
}

// RedisStore is the production KVStore. The underlying client is a pooled
// handle shared by all in-flight requests.
type RedisStore struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisStore creates a redis-backed store and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.SugaredLogger) (*RedisStore, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address required")
		}
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	store := &RedisStore{
		client: redis.NewClient(opts),
		logger: logger,
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return store, nil
}

// Driver implements KVStore.
func (rs *RedisStore) Driver() string { return DriverRedis }

// Ping tests the Redis connection
func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return rs.fail("ping", "", err)
	}
	return nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// Set stores a value with expiration
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return rs.fail("set", key, err)
	}
	return nil
}

// Replace uses SET XX so a concurrently deleted key is not recreated
func (rs *RedisStore) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := rs.client.SetXX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, rs.fail("replace", key, err)
	}
	return ok, nil
}

// Get retrieves a value
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, opError("get", ErrNotFound, nil)
		}
		return nil, rs.fail("get", key, err)
	}
	return data, nil
}

// Exists checks if a key exists
func (rs *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rs.client.Exists(ctx, key).Result()
	if err != nil {
		return false, rs.fail("exists", key, err)
	}
	return count > 0, nil
}

// Delete removes keys
func (rs *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := rs.client.Del(ctx, keys...).Err(); err != nil {
		return rs.fail("delete", keys[0], err)
	}
	return nil
}

// Consume uses GETDEL so the existence check and the delete are one command.
func (rs *RedisStore) Consume(ctx context.Context, key string) (bool, error) {
	err := rs.client.GetDel(ctx, key).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, rs.fail("consume", key, err)
	}
	return true, nil
}

// Incr increments an integer counter
func (rs *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := rs.client.Incr(ctx, key).Result()
	if err != nil {
		if isServerReply(err) {
			return 0, opError("incr", ErrInvalidValue, err)
		}
		return 0, rs.fail("incr", key, err)
	}
	return n, nil
}

// Expire resets the TTL of a key
func (rs *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := rs.client.Expire(ctx, key, ttl).Err(); err != nil {
		return rs.fail("expire", key, err)
	}
	return nil
}

// TTL returns the remaining TTL for a key
func (rs *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := rs.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, rs.fail("ttl", key, err)
	}
	switch d {
	case -2:
		return 0, opError("ttl", ErrNotFound, nil)
	case -1:
		return NoExpiry, nil
	}
	return d, nil
}

func (rs *RedisStore) fail(op, key string, err error) error {
	metrics.StoreErrors.WithLabelValues(DriverRedis, op).Inc()
	if rs.logger != nil {
		rs.logger.Errorw("Redis operation failed", "op", op, "key_prefix", keyPrefix(key), "error", err)
	}
	return opError(op, ErrStoreUnavailable, err)
}

// isServerReply reports whether the server answered with an error reply, as
// opposed to a transport failure. For INCR that means the value is not an integer.
func isServerReply(err error) bool {
	var redisErr redis.Error
	return errors.As(err, &redisErr)
}

// keyPrefix returns the namespace part of a key so tokens never reach the logs.
func keyPrefix(key string) string {
	prefix, _, _ := strings.Cut(key, ":")
	return prefix
}
