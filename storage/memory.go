package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"formdesk/util/goroutine"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// MemoryStore is a single-process KVStore for development and tests.
// State is not shared between processes and does not survive a restart.
type MemoryStore struct {
	mu          sync.Mutex
	items       map[string]memoryItem
	cleanupFreq time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore builds an in-memory store and starts its expiry sweeper.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = time.Minute
	}
	s := &MemoryStore{
		items:       make(map[string]memoryItem),
		cleanupFreq: gcInterval,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	goroutine.Go("memory-store-gc", nil, s.gcLoop)
	return s
}

func (s *MemoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, it := range s.items {
		if it.expired(now) {
			delete(s.items, k)
		}
	}
}

// lookup returns the live item for key. Callers hold s.mu.
func (s *MemoryStore) lookup(key string) (memoryItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if it.expired(s.now()) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return it, true
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Driver implements KVStore.
func (s *MemoryStore) Driver() string { return DriverMemory }

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close stops the sweeper. The store must not be used afterwards.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return opError("set", ErrStoreUnavailable, err)
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	s.items[key] = memoryItem{value: buf, expiresAt: s.deadline(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, opError("replace", ErrStoreUnavailable, err)
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); !ok {
		return false, nil
	}
	s.items[key] = memoryItem{value: buf, expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("get", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if !ok {
		return nil, opError("get", ErrNotFound, nil)
	}
	buf := make([]byte, len(it.value))
	copy(buf, it.value)
	return buf, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, opError("exists", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return opError("delete", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return nil
}

// Consume checks and deletes under one lock acquisition.
func (s *MemoryStore) Consume(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, opError("consume", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); !ok {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

// Incr keeps the existing expiry, like INCR in redis.
func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, opError("incr", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return 0, opError("incr", ErrInvalidValue, err)
		}
		n = parsed
	}
	n++
	it.value = []byte(strconv.FormatInt(n, 10))
	s.items[key] = it
	return n, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return opError("expire", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(s.items, key)
		return nil
	}
	it.expiresAt = s.deadline(ttl)
	s.items[key] = it
	return nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, opError("ttl", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if !ok {
		return 0, opError("ttl", ErrNotFound, nil)
	}
	if it.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return it.expiresAt.Sub(s.now()), nil
}
