package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"formdesk/metrics"
	"formdesk/storage"

	"go.uber.org/zap"
)

const (
	csrfTokenLength = 32
	alphanumeric    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// CSRFService issues single-use tokens bound to a pre-login session id.
type CSRFService struct {
	store    storage.KVStore
	ttl      time.Duration
	logger   *zap.SugaredLogger
	generate func() (string, error)
}

// NewCSRFService creates a CSRF service. A zero ttl falls back to DefaultCSRFTokenTTL.
func NewCSRFService(store storage.KVStore, ttl time.Duration, logger *zap.SugaredLogger) *CSRFService {
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRFService{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		generate: func() (string, error) { return randomAlphanumeric(csrfTokenLength) },
	}
}

// CreateToken stores a new token for sessionID and returns it with its lifetime.
func (s *CSRFService) CreateToken(ctx context.Context, sessionID string) (string, time.Duration, error) {
	if !validKeyPart(sessionID) {
		return "", 0, unauthorized(MsgMissingSession, nil)
	}
	token, err := s.generate()
	if err != nil {
		return "", 0, internal(err)
	}
	if err := s.store.Set(ctx, csrfKey(sessionID, token), []byte("1"), s.ttl); err != nil {
		return "", 0, internal(err)
	}
	return token, s.ttl, nil
}

// ValidateAndConsume redeems token for sessionID. A token can be redeemed at
// most once, and only for the session it was issued to.
func (s *CSRFService) ValidateAndConsume(ctx context.Context, sessionID, token string) error {
	if !validKeyPart(sessionID) || !validKeyPart(token) {
		metrics.CSRFValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		return unauthorized(MsgInvalidCSRFToken, nil)
	}

	ok, err := s.store.Consume(ctx, csrfKey(sessionID, token))
	if err != nil {
		metrics.CSRFValidations.WithLabelValues(metrics.ResultError).Inc()
		return internal(err)
	}
	if !ok {
		metrics.CSRFValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		s.logger.Debugw("CSRF token rejected", "reason", "not_found")
		return unauthorized(MsgInvalidCSRFToken, nil)
	}
	metrics.CSRFValidations.WithLabelValues(metrics.ResultValid).Inc()
	return nil
}

// validKeyPart rejects values that would let one key alias another.
func validKeyPart(v string) bool {
	return v != "" && len(v) <= 256 && !strings.Contains(v, ":")
}

// randomAlphanumeric draws n characters uniformly from [A-Za-z0-9].
func randomAlphanumeric(n int) (string, error) {
	// 248 is the largest multiple of 62 below 256; rejecting above it removes modulo bias.
	const limit = 256 - 256%len(alphanumeric)

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
