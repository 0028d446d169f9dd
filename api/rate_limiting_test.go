package api

import (
	"net/http"
	"strconv"
	"testing"

	"formdesk/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withIntakeLimit(perMinute, burst int) func(*config.Config) {
	return func(c *config.Config) {
		c.API.IntakeRateLimit = config.RateLimitConfig{RequestsPerMinute: perMinute, Burst: burst, MaxClients: 16}
	}
}

func TestIntakeRateLimit_PerIP(t *testing.T) {
	s := newTestServer(t, withIntakeLimit(1, 2))
	first := withRemoteAddr("203.0.113.7:40000")

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/contact-submissions", validSubmission(), first)
		require.Equal(t, http.StatusCreated, rec.Code, "request %d: %s", i+1, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, "/api/v1/contact-submissions", validSubmission(), first)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp codedResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "RATE_LIMITED", resp.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 60)

	// Another client has its own bucket.
	rec = s.do(t, http.MethodPost, "/api/v1/contact-submissions", validSubmission(), withRemoteAddr("198.51.100.9:40000"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIntakeRateLimit_PreflightNotCounted(t *testing.T) {
	s := newTestServer(t, withIntakeLimit(1, 1))
	addr := withRemoteAddr("203.0.113.8:40000")

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodOptions, "/api/v1/contact-submissions", nil, addr,
			withHeader("Origin", "https://forms.example.org"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/contact-submissions", validSubmission(), addr)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIntakeRateLimit_AdminRoutesUnaffected(t *testing.T) {
	s := newTestServer(t, withIntakeLimit(1, 1))
	cookie := s.loginCookie(t)

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/admin/api/v1/submissions", validSubmission(), withCookie(adminSessionCookie, cookie))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestNewIPRateLimiter(t *testing.T) {
	l, err := newIPRateLimiter(config.RateLimitConfig{})
	require.NoError(t, err)
	assert.Nil(t, l, "zero rate disables the limiter")

	_, err = newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 5, Burst: 1, MaxClients: 0})
	assert.Error(t, err)

	l, err = newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, Burst: 1, MaxClients: 1})
	require.NoError(t, err)
	ok, _ := l.reserve("a")
	assert.True(t, ok)
	ok, wait := l.reserve("a")
	assert.False(t, ok)
	assert.Greater(t, int64(wait), int64(0))

	// Capacity 1: adding "b" evicts "a", which then starts with a full bucket.
	ok, _ = l.reserve("b")
	assert.True(t, ok)
	ok, _ = l.reserve("a")
	assert.True(t, ok)
}
