package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"booking-api/internal/observability"
)

// RateLimiter is an in-process sliding window keyed by client IP. Each
// instance keeps its own counters, so give every protected route its own.
type RateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByIP  map[string][]time.Time
	maxMemory int
	now       func() time.Time
}

func NewRateLimiter(maxHits int, window time.Duration) *RateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		maxHits:   maxHits,
		window:    window,
		hitsByIP:  make(map[string][]time.Time),
		maxMemory: 5000,
		now:       time.Now,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitsByIP[ip]
	recent := hits[:0]
	for _, hit := range hits {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.maxHits {
		retryAfter := recent[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hitsByIP[ip] = recent
		return false, retryAfter
	}

	l.hitsByIP[ip] = append(recent, now)

	if len(l.hitsByIP) > l.maxMemory {
		l.evictIdle(threshold)
	}

	return true, 0
}

func (l *RateLimiter) evictIdle(threshold time.Time) {
	for key, value := range l.hitsByIP {
		if len(value) == 0 || value[len(value)-1].Before(threshold) {
			delete(l.hitsByIP, key)
		}
	}
}
