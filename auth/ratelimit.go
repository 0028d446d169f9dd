package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"formdesk/storage"
)

// LoginLimiter counts failed logins per username in the key-value store.
//
// The check and the increment are separate store calls, so concurrent
// failures for one username can slip a few attempts past the cap. Only
// failures are counted; a success deletes the counter.
type LoginLimiter struct {
	store       storage.KVStore
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter creates a limiter. Zero values fall back to the defaults.
func NewLoginLimiter(store storage.KVStore, maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	if window <= 0 {
		window = DefaultLoginWindow
	}
	return &LoginLimiter{store: store, maxAttempts: maxAttempts, window: window}
}

// MaxAttempts returns the configured cap.
func (l *LoginLimiter) MaxAttempts() int { return l.maxAttempts }

func (l *LoginLimiter) attempts(ctx context.Context, username string) (int64, error) {
	raw, err := l.store.Get(ctx, loginAttemptsKey(username))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, internal(err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}

// CheckAllowed fails with KindTooManyRequests once the counter reached the cap.
// It never increments.
func (l *LoginLimiter) CheckAllowed(ctx context.Context, username string) error {
	n, err := l.attempts(ctx, username)
	if err != nil {
		return err
	}
	if n >= int64(l.maxAttempts) {
		return tooManyRequests()
	}
	return nil
}

// RecordFailure increments the counter and restarts its window.
func (l *LoginLimiter) RecordFailure(ctx context.Context, username string) error {
	key := loginAttemptsKey(username)
	if _, err := l.store.Incr(ctx, key); err != nil {
		return internal(err)
	}
	if err := l.store.Expire(ctx, key, l.window); err != nil {
		return internal(err)
	}
	return nil
}

// Clear deletes the counter.
func (l *LoginLimiter) Clear(ctx context.Context, username string) error {
	if err := l.store.Delete(ctx, loginAttemptsKey(username)); err != nil {
		return internal(err)
	}
	return nil
}

// Remaining returns how many failures are left before the cap.
func (l *LoginLimiter) Remaining(ctx context.Context, username string) (int, error) {
	n, err := l.attempts(ctx, username)
	if err != nil {
		return 0, err
	}
	left := int64(l.maxAttempts) - n
	if left < 0 {
		left = 0
	}
	return int(left), nil
}
