package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"formdesk/config"
	"formdesk/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP. The LRU bounds memory;
// an evicted client simply starts again with a full bucket.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// newIPRateLimiter returns nil when the configuration disables throttling.
func newIPRateLimiter(cfg config.RateLimitConfig) (*ipRateLimiter, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, *rate.Limiter](cfg.MaxClients)
	if err != nil {
		return nil, err
	}
	return &ipRateLimiter{
		limiters: cache,
		limit:    rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:    cfg.Burst,
	}, nil
}

// reserve takes a token for ip, reporting how long to wait if none is left.
func (l *ipRateLimiter) reserve(ip string) (bool, time.Duration) {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()

	now := time.Now()
	r := limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// intakeRateLimit throttles the public submission endpoint per client IP.
func (a *API) intakeRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if a.intakeLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		ok, retryAfter := a.intakeLimiter.reserve(a.clientIP(r))
		if !ok {
			metrics.SubmissionsThrottled.Inc()
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			a.respondJSON(w, codedResponse{Message: "Too many submissions, try again later", Code: "RATE_LIMITED"}, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
