package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formdesk/storage"
)

// ErrSessionNotFound is returned when no live Session Record exists.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the server-side state of one admin login, stored as JSON
// at admin_session:<sessionId>. Timestamps are epoch seconds.
type SessionRecord struct {
	AdminID      string `json:"admin_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
}

// SessionManager persists Session Records and the access-token reverse index.
// Both keys share the session TTL.
type SessionManager struct {
	store storage.KVStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager creates a session manager. ttl should equal the access token lifetime.
func NewSessionManager(store storage.KVStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &SessionManager{store: store, ttl: ttl, now: time.Now}
}

// Create writes a new record and its reverse index. CreatedAt and LastActivity
// are set to now. If the index cannot be written the record is removed again.
func (m *SessionManager) Create(ctx context.Context, sessionID string, rec *SessionRecord) error {
	now := m.now().Unix()
	rec.CreatedAt = now
	rec.LastActivity = now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, sessionKey(sessionID), data, m.ttl); err != nil {
		return err
	}
	if err := m.store.Set(ctx, tokenIndexKey(rec.AccessToken), []byte(sessionID), m.ttl); err != nil {
		// A record without its index could not be found by token on logout.
		if delErr := m.store.Delete(context.WithoutCancel(ctx), sessionKey(sessionID)); delErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back session: %w", delErr))
		}
		return err
	}
	return nil
}

// Get returns the record for sessionID or ErrSessionNotFound.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	data, err := m.store.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &rec, nil
}

// Touch records activity and restarts the TTL of both keys. Identity fields
// and keys are unchanged. A session deleted concurrently stays deleted.
func (m *SessionManager) Touch(ctx context.Context, sessionID string, rec *SessionRecord) error {
	updated := *rec
	updated.LastActivity = m.now().Unix()

	data, err := json.Marshal(&updated)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ok, err := m.store.Replace(ctx, sessionKey(sessionID), data, m.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	if err := m.store.Expire(ctx, tokenIndexKey(rec.AccessToken), m.ttl); err != nil {
		return err
	}
	rec.LastActivity = updated.LastActivity
	return nil
}

// LookupByToken resolves an access token to its session id through the reverse index.
func (m *SessionManager) LookupByToken(ctx context.Context, accessToken string) (string, error) {
	data, err := m.store.Get(ctx, tokenIndexKey(accessToken))
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Delete removes the record and its reverse index.
func (m *SessionManager) Delete(ctx context.Context, sessionID, accessToken string) error {
	keys := []string{sessionKey(sessionID)}
	if accessToken != "" {
		keys = append(keys, tokenIndexKey(accessToken))
	}
	return m.store.Delete(ctx, keys...)
}
